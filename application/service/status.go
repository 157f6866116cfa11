package service

import (
	"context"
	"fmt"

	"github.com/helixml/vectorizer/domain/vectorizer"
)

// QueueBacklog measures queue depth and tells a missing queue from an empty one.
type QueueBacklog interface {
	Backlog
	Exists(ctx context.Context, queue vectorizer.TableRef) (bool, error)
}

// Status reports registrations together with their queue backlog.
type Status struct {
	vectorizers vectorizer.Store
	backlog     QueueBacklog
}

// NewStatus creates a Status service.
func NewStatus(vectorizers vectorizer.Store, backlog QueueBacklog) *Status {
	return &Status{vectorizers: vectorizers, backlog: backlog}
}

// List returns the status of every vectorizer using bounded backlog counts.
// A queue dropped out of band reports nil pending items instead of failing
// the list.
func (s *Status) List(ctx context.Context) ([]vectorizer.Status, error) {
	all, err := s.vectorizers.Find(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]vectorizer.Status, 0, len(all))
	for _, v := range all {
		st, err := s.status(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Get returns the status of one vectorizer.
func (s *Status) Get(ctx context.Context, id int64) (vectorizer.Status, error) {
	v, err := s.vectorizers.Get(ctx, id)
	if err != nil {
		return vectorizer.Status{}, err
	}
	return s.status(ctx, v)
}

// Pending returns the queue backlog of a vectorizer. Without exact the count
// stops at BacklogCap and larger queues report BacklogSentinel.
func (s *Status) Pending(ctx context.Context, id int64, exact bool) (int64, error) {
	v, err := s.vectorizers.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := s.backlog.Pending(ctx, v.Queue(), exact)
	if err != nil {
		return 0, fmt.Errorf("pending items of vectorizer %d: %w", id, err)
	}
	return n, nil
}

func (s *Status) status(ctx context.Context, v vectorizer.Vectorizer) (vectorizer.Status, error) {
	st := vectorizer.Status{
		ID:     v.ID(),
		Source: v.Source(),
		Target: v.Target(),
		View:   v.View(),
	}

	exists, err := s.backlog.Exists(ctx, v.Queue())
	if err != nil {
		return vectorizer.Status{}, fmt.Errorf("queue of vectorizer %d: %w", v.ID(), err)
	}
	if !exists {
		return st, nil
	}

	n, err := s.backlog.Pending(ctx, v.Queue(), false)
	if err != nil {
		return vectorizer.Status{}, fmt.Errorf("pending items of vectorizer %d: %w", v.ID(), err)
	}
	st.PendingItems = &n
	return st, nil
}
