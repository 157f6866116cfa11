// Package index decides when a vectorizer's target table gets its vector
// index and builds it at most once.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/queue"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
)

// LockNamespace scopes index build locks.
const LockNamespace = "vectorizer.index"

// Catalog answers whether an index already exists.
type Catalog interface {
	VectorIndexExists(ctx context.Context, target vectorizer.TableRef, implementation string) (bool, error)
}

// Builder evaluates index eligibility and builds the index under a
// transaction-scoped advisory lock.
type Builder struct {
	db      database.Database
	catalog Catalog
	probe   queue.Probe
	locks   database.LockManager
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(db database.Database, logger *slog.Logger) Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return Builder{
		db:      db,
		catalog: schema.NewIntrospector(db),
		probe:   queue.NewProbe(db),
		locks:   database.NewLockManager(db, LockNamespace),
		logger:  logger.With("component", "index"),
	}
}

// Eligible reports whether the index of v should be built now, given the
// current bounded backlog of its queue.
func (b Builder) Eligible(ctx context.Context, v vectorizer.Vectorizer, backlog int64) (bool, error) {
	cfg := v.Config().Indexing
	if !cfg.Enabled() {
		return false, nil
	}

	exists, err := b.catalog.VectorIndexExists(ctx, v.Target(), cfg.Implementation)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if cfg.WaitForEmptyQueue() && backlog != 0 {
		return false, nil
	}

	if minRows := cfg.MinRowCount(); minRows > 0 {
		enough, err := b.probe.AtLeast(ctx, v.Target(), minRows)
		if err != nil {
			return false, err
		}
		if !enough {
			return false, nil
		}
	}
	return true, nil
}

// Build creates the index of v unless another session holds the build lock
// or the index appeared since eligibility was checked. It reports whether
// this call built the index. The lock is released when the transaction ends.
func (b Builder) Build(ctx context.Context, v vectorizer.Vectorizer) (bool, error) {
	cfg := v.Config().Indexing
	stmt, err := schema.CreateIndex(v.Target(), cfg)
	if err != nil {
		return false, err
	}

	return database.WithTransactionResult(ctx, b.db, func(ctx context.Context) (bool, error) {
		acquired, err := b.locks.TryAcquire(ctx, v.Target().String())
		if err != nil {
			return false, err
		}
		if !acquired {
			b.logger.Info("index build already running elsewhere, skipping",
				slog.Int64("vectorizer_id", v.ID()),
				slog.String("target", v.Target().String()),
			)
			return false, nil
		}

		exists, err := b.catalog.VectorIndexExists(ctx, v.Target(), cfg.Implementation)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}

		if err := b.db.Session(ctx).Exec(stmt).Error; err != nil {
			return false, fmt.Errorf("create %s index on %s: %w", cfg.Implementation, v.Target(), schema.Classify(err))
		}
		b.logger.Info("built vector index",
			slog.Int64("vectorizer_id", v.ID()),
			slog.String("target", v.Target().String()),
			slog.String("implementation", cfg.Implementation),
		)
		return true, nil
	})
}
