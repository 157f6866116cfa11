// Package schedule provides the background job bound to a vectorizer.
package schedule

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no job exists for the lookup.
var ErrNotFound = errors.New("job not found")

// Job periodically runs one vectorizer.
type Job struct {
	id           int64
	vectorizerID int64
	interval     time.Duration
	nextStart    time.Time
	active       bool
	lastRunAt    *time.Time
	lastError    string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewJob creates an active job for vectorizerID. The first run is at
// initialStart, or immediately when it is zero.
func NewJob(vectorizerID int64, interval time.Duration, initialStart time.Time) Job {
	if initialStart.IsZero() {
		initialStart = time.Now()
	}
	return Job{
		vectorizerID: vectorizerID,
		interval:     interval,
		nextStart:    initialStart.UTC(),
		active:       true,
	}
}

// ReconstructJob rebuilds a Job from persistence.
func ReconstructJob(
	id, vectorizerID int64,
	interval time.Duration,
	nextStart time.Time,
	active bool,
	lastRunAt *time.Time,
	lastError string,
	createdAt, updatedAt time.Time,
) Job {
	return Job{
		id:           id,
		vectorizerID: vectorizerID,
		interval:     interval,
		nextStart:    nextStart,
		active:       active,
		lastRunAt:    lastRunAt,
		lastError:    lastError,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the job id.
func (j Job) ID() int64 { return j.id }

// VectorizerID returns the vectorizer the job runs.
func (j Job) VectorizerID() int64 { return j.vectorizerID }

// Interval returns the time between runs.
func (j Job) Interval() time.Duration { return j.interval }

// NextStart returns when the job is next due.
func (j Job) NextStart() time.Time { return j.nextStart }

// Active reports whether the job is scheduled.
func (j Job) Active() bool { return j.active }

// LastRunAt returns when the job last ran, if ever.
func (j Job) LastRunAt() *time.Time { return j.lastRunAt }

// LastError returns the error of the last run, or empty.
func (j Job) LastError() string { return j.lastError }

// CreatedAt returns the creation time.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns the last update time.
func (j Job) UpdatedAt() time.Time { return j.updatedAt }

// Due reports whether an active job should run at now.
func (j Job) Due(now time.Time) bool {
	return j.active && !j.nextStart.After(now)
}

// Advance returns a copy due one interval after now.
func (j Job) Advance(now time.Time) Job {
	j.nextStart = now.Add(j.interval).UTC()
	return j
}

// WithActive returns a copy with the active flag set.
func (j Job) WithActive(active bool) Job {
	j.active = active
	return j
}

// WithRun returns a copy recording a finished run.
func (j Job) WithRun(at time.Time, err error) Job {
	at = at.UTC()
	j.lastRunAt = &at
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
	return j
}

// Store persists jobs.
type Store interface {
	// Save inserts or updates a job.
	Save(ctx context.Context, j Job) (Job, error)
	// ForVectorizer returns the job of a vectorizer, or ErrNotFound.
	ForVectorizer(ctx context.Context, vectorizerID int64) (Job, error)
	// DeleteForVectorizer removes the job of a vectorizer, if any.
	DeleteForVectorizer(ctx context.Context, vectorizerID int64) error
	// ClaimDue returns up to limit active jobs due at now and advances their
	// next start by one interval. Jobs claimed by a concurrent caller are skipped.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// RecordRun stores the outcome of a run.
	RecordRun(ctx context.Context, id int64, at time.Time, runErr error) error
}
