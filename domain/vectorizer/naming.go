package vectorizer

import "fmt"

// CatalogSchema holds registrations, queues and trigger functions.
const CatalogSchema = "ai"

// TableRef is a schema-qualified relation name.
type TableRef struct {
	schema string
	name   string
}

// NewTableRef creates a TableRef.
func NewTableRef(schema, name string) TableRef {
	return TableRef{schema: schema, name: name}
}

// Schema returns the schema name.
func (t TableRef) Schema() string { return t.schema }

// Name returns the relation name.
func (t TableRef) Name() string { return t.name }

// IsZero reports whether the reference is empty.
func (t TableRef) IsZero() bool { return t.schema == "" && t.name == "" }

// String returns schema.name, unquoted.
func (t TableRef) String() string {
	if t.schema == "" {
		return t.name
	}
	return t.schema + "." + t.name
}

// Names are the generated object names for one vectorizer.
type Names struct {
	Target  TableRef
	View    TableRef
	Queue   TableRef
	Trigger string
}

// TriggerFunction returns the trigger's backing function, which shares the
// trigger's name and lives in the queue schema.
func (n Names) TriggerFunction() TableRef {
	return NewTableRef(n.Queue.Schema(), n.Trigger)
}

// NameOverrides are caller-supplied names that replace the defaults.
type NameOverrides struct {
	Destination  string `json:"destination,omitempty" yaml:"destination,omitempty"`
	TargetSchema string `json:"target_schema,omitempty" yaml:"target_schema,omitempty"`
	TargetTable  string `json:"target_table,omitempty" yaml:"target_table,omitempty"`
	ViewSchema   string `json:"view_schema,omitempty" yaml:"view_schema,omitempty"`
	ViewName     string `json:"view_name,omitempty" yaml:"view_name,omitempty"`
	QueueSchema  string `json:"queue_schema,omitempty" yaml:"queue_schema,omitempty"`
	QueueTable   string `json:"queue_table,omitempty" yaml:"queue_table,omitempty"`
}

// DeriveNames computes object names for vectorizer id over source. Explicit
// overrides win over the deterministic defaults.
func DeriveNames(id int64, source TableRef, o NameOverrides) Names {
	destination := o.Destination
	if destination == "" {
		destination = source.Name() + "_embedding"
	}

	target := NewTableRef(
		firstNonEmpty(o.TargetSchema, source.Schema()),
		firstNonEmpty(o.TargetTable, destination+"_store"),
	)
	view := NewTableRef(
		firstNonEmpty(o.ViewSchema, source.Schema()),
		firstNonEmpty(o.ViewName, destination),
	)
	queue := NewTableRef(
		firstNonEmpty(o.QueueSchema, CatalogSchema),
		firstNonEmpty(o.QueueTable, fmt.Sprintf("_vectorizer_q_%d", id)),
	)

	return Names{
		Target:  target,
		View:    view,
		Queue:   queue,
		Trigger: fmt.Sprintf("_vectorizer_src_trg_%d", id),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
