// Package vectorizer defines the vectorizer registration and its configuration.
package vectorizer

import (
	"slices"
	"time"
)

// PrimaryKeyColumn is one column of a source table's primary key.
type PrimaryKeyColumn struct {
	Ordinal int    `json:"attnum"`
	Name    string `json:"attname"`
	Type    string `json:"typname"`
}

// PrimaryKey is the ordered primary key descriptor of a source table.
type PrimaryKey []PrimaryKeyColumn

// Names returns the column names in key order.
func (p PrimaryKey) Names() []string {
	names := make([]string, len(p))
	for i, c := range p {
		names[i] = c.Name
	}
	return names
}

// Vectorizer is a registered pipeline linking a source table to its derived
// target table, queue, view and trigger.
type Vectorizer struct {
	id         int64
	source     TableRef
	primaryKey PrimaryKey
	names      Names
	config     Config
	createdAt  time.Time
}

// NewVectorizer creates a Vectorizer registration.
func NewVectorizer(id int64, source TableRef, primaryKey PrimaryKey, names Names, config Config) Vectorizer {
	return Vectorizer{
		id:         id,
		source:     source,
		primaryKey: slices.Clone(primaryKey),
		names:      names,
		config:     config,
	}
}

// ReconstructVectorizer rebuilds a Vectorizer from persistence.
func ReconstructVectorizer(
	id int64,
	source TableRef,
	primaryKey PrimaryKey,
	names Names,
	config Config,
	createdAt time.Time,
) Vectorizer {
	v := NewVectorizer(id, source, primaryKey, names, config)
	v.createdAt = createdAt
	return v
}

// ID returns the vectorizer id.
func (v Vectorizer) ID() int64 { return v.id }

// Source returns the source table.
func (v Vectorizer) Source() TableRef { return v.source }

// PrimaryKey returns a copy of the recorded primary key descriptor.
func (v Vectorizer) PrimaryKey() PrimaryKey { return slices.Clone(v.primaryKey) }

// Names returns the generated object names.
func (v Vectorizer) Names() Names { return v.names }

// Target returns the target (store) table.
func (v Vectorizer) Target() TableRef { return v.names.Target }

// View returns the join view.
func (v Vectorizer) View() TableRef { return v.names.View }

// Queue returns the queue table.
func (v Vectorizer) Queue() TableRef { return v.names.Queue }

// TriggerName returns the change-capture trigger name.
func (v Vectorizer) TriggerName() string { return v.names.Trigger }

// Config returns the configuration bundle.
func (v Vectorizer) Config() Config { return v.config }

// CreatedAt returns when the registration was created.
func (v Vectorizer) CreatedAt() time.Time { return v.createdAt }

// WithJobID returns a copy recording the background job id.
func (v Vectorizer) WithJobID(jobID int64) Vectorizer {
	v.config.Scheduling.JobID = jobID
	return v
}

// Status is a row of the status view.
type Status struct {
	ID           int64
	Source       TableRef
	Target       TableRef
	View         TableRef
	// PendingItems is nil when the queue table no longer exists.
	PendingItems *int64
}
