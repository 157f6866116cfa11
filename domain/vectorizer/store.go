package vectorizer

import (
	"context"
	"time"

	"github.com/helixml/vectorizer/domain/query"
)

// Store persists vectorizer registrations.
type Store interface {
	// NextID reserves the id for a new registration.
	NextID(ctx context.Context) (int64, error)
	// Save inserts or updates a registration.
	Save(ctx context.Context, v Vectorizer) (Vectorizer, error)
	// Get returns the registration with id, or ErrNotFound.
	Get(ctx context.Context, id int64) (Vectorizer, error)
	// Find returns registrations matching the options.
	Find(ctx context.Context, options ...query.Option) ([]Vectorizer, error)
	// Delete removes the registration with id.
	Delete(ctx context.Context, id int64) error
	// MarkIndexBuilt records the index build time of an existing
	// registration. It returns ErrNotFound instead of recreating a deleted one.
	MarkIndexBuilt(ctx context.Context, id int64, at time.Time) error
}
