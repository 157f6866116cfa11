package vectorizer

import (
	"context"
	"sync/atomic"

	"github.com/helixml/vectorizer/application/service"
	domain "github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
)

// Vectorizers manages vectorizer registrations and on-demand processing.
type Vectorizers struct {
	lifecycle *service.Lifecycle
	runner    *service.Runner
	watchdog  *service.Watchdog
	closed    *atomic.Bool
}

// Create provisions a new vectorizer.
func (v *Vectorizers) Create(ctx context.Context, req service.CreateRequest) (domain.Vectorizer, error) {
	if v.closed.Load() {
		return domain.Vectorizer{}, ErrClientClosed
	}
	return v.lifecycle.Create(ctx, req)
}

// Get returns the vectorizer with id.
func (v *Vectorizers) Get(ctx context.Context, id int64) (domain.Vectorizer, error) {
	if v.closed.Load() {
		return domain.Vectorizer{}, ErrClientClosed
	}
	return v.lifecycle.Get(ctx, id)
}

// List returns every vectorizer.
func (v *Vectorizers) List(ctx context.Context) ([]domain.Vectorizer, error) {
	if v.closed.Load() {
		return nil, ErrClientClosed
	}
	return v.lifecycle.List(ctx)
}

// Drop removes a vectorizer. With dropAll the target table and view are
// dropped too.
func (v *Vectorizers) Drop(ctx context.Context, id int64, dropAll bool) error {
	if v.closed.Load() {
		return ErrClientClosed
	}
	return v.lifecycle.Drop(ctx, id, dropAll)
}

// EnableSchedule resumes background processing of a vectorizer.
func (v *Vectorizers) EnableSchedule(ctx context.Context, id int64) error {
	if v.closed.Load() {
		return ErrClientClosed
	}
	return v.lifecycle.EnableSchedule(ctx, id)
}

// DisableSchedule pauses background processing of a vectorizer.
func (v *Vectorizers) DisableSchedule(ctx context.Context, id int64) error {
	if v.closed.Load() {
		return ErrClientClosed
	}
	return v.lifecycle.DisableSchedule(ctx, id)
}

// Execute processes one batch of the vectorizer's queue.
func (v *Vectorizers) Execute(ctx context.Context, id int64) (embedding.Result, error) {
	if v.closed.Load() {
		return embedding.Result{}, ErrClientClosed
	}
	return v.runner.Execute(ctx, id)
}

// Run performs one full scheduler tick for the vectorizer now.
func (v *Vectorizers) Run(ctx context.Context, id int64) (service.RunResult, error) {
	if v.closed.Load() {
		return service.RunResult{}, ErrClientClosed
	}
	return v.runner.Run(ctx, id)
}

// Reconcile deregisters vectorizers whose tables were dropped and returns
// their ids.
func (v *Vectorizers) Reconcile(ctx context.Context) ([]int64, error) {
	if v.closed.Load() {
		return nil, ErrClientClosed
	}
	return v.watchdog.Reconcile(ctx)
}

// Status reports vectorizers with their queue backlog.
type Status struct {
	status *service.Status
	closed *atomic.Bool
}

// List returns the status of every vectorizer.
func (s *Status) List(ctx context.Context) ([]domain.Status, error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}
	return s.status.List(ctx)
}

// Get returns the status of one vectorizer.
func (s *Status) Get(ctx context.Context, id int64) (domain.Status, error) {
	if s.closed.Load() {
		return domain.Status{}, ErrClientClosed
	}
	return s.status.Get(ctx, id)
}

// Pending returns the queue backlog of a vectorizer. Without exact, backlogs
// larger than domain.BacklogCap are reported as domain.BacklogSentinel.
func (s *Status) Pending(ctx context.Context, id int64, exact bool) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClientClosed
	}
	return s.status.Pending(ctx, id, exact)
}
