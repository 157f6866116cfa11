package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/helixml/vectorizer/domain/schedule"
	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
)

// DefaultSourceSchema qualifies source tables given without a schema.
const DefaultSourceSchema = "public"

// CreateRequest describes a new vectorizer.
type CreateRequest struct {
	Source  vectorizer.TableRef
	Names   vectorizer.NameOverrides
	Config  vectorizer.Config
	GrantTo []string
	// SkipBackfill leaves existing source rows out of the initial queue.
	SkipBackfill bool
}

// Lifecycle creates, drops and reschedules vectorizers.
type Lifecycle struct {
	db          database.Database
	vectorizers vectorizer.Store
	jobs        schedule.Store
	catalog     Catalog
	provisioner Provisioner
	logger      *slog.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(
	db database.Database,
	vectorizers vectorizer.Store,
	jobs schedule.Store,
	catalog Catalog,
	provisioner Provisioner,
	logger *slog.Logger,
) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		db:          db,
		vectorizers: vectorizers,
		jobs:        jobs,
		catalog:     catalog,
		provisioner: provisioner,
		logger:      logger.With("component", "lifecycle"),
	}
}

// Create validates req and provisions a vectorizer. Every object, the
// registration and the schedule are created in one transaction.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (vectorizer.Vectorizer, error) {
	source := req.Source
	if source.Schema() == "" {
		source = vectorizer.NewTableRef(DefaultSourceSchema, source.Name())
	}
	if err := schema.ValidateRef(source); err != nil {
		return vectorizer.Vectorizer{}, err
	}

	cfg := req.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return vectorizer.Vectorizer{}, err
	}
	for _, role := range req.GrantTo {
		if err := schema.ValidateIdentifier(role); err != nil {
			return vectorizer.Vectorizer{}, fmt.Errorf("grant_to: %w", err)
		}
	}

	v, err := database.WithTransactionResult(ctx, l.db, func(ctx context.Context) (vectorizer.Vectorizer, error) {
		exists, err := l.catalog.RelationExists(ctx, source)
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}
		if !exists {
			return vectorizer.Vectorizer{}, fmt.Errorf("%w: %s", vectorizer.ErrSourceNotFound, source)
		}
		if err := l.checkPrivileges(ctx, source); err != nil {
			return vectorizer.Vectorizer{}, err
		}

		pk, err := l.catalog.PrimaryKey(ctx, source)
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}
		columns, err := l.catalog.Columns(ctx, source)
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}
		if !slices.ContainsFunc(columns, func(c schema.Column) bool { return c.Name == cfg.Chunking.ChunkColumn }) {
			return vectorizer.Vectorizer{}, vectorizer.NewConfigError("chunking.chunk_column",
				fmt.Sprintf("column %q not found on %s", cfg.Chunking.ChunkColumn, source))
		}

		id, err := l.vectorizers.NextID(ctx)
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}
		names := vectorizer.DeriveNames(id, source, req.Names)
		if err := l.provisioner.CheckCollisions(ctx, source, names); err != nil {
			return vectorizer.Vectorizer{}, err
		}

		err = l.provisioner.Provision(ctx, schema.Plan{
			Source:        source,
			PrimaryKey:    pk,
			Names:         names,
			Dimensions:    cfg.Embedding.Dimensions,
			SourceColumns: columns,
			GrantTo:       req.GrantTo,
		})
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}

		v, err := l.vectorizers.Save(ctx, vectorizer.NewVectorizer(id, source, pk, names, cfg))
		if err != nil {
			return vectorizer.Vectorizer{}, err
		}

		if cfg.Scheduling.Scheduled() {
			start := time.Now()
			if cfg.Scheduling.InitialStart != nil {
				start = *cfg.Scheduling.InitialStart
			}
			job, err := l.jobs.Save(ctx, schedule.NewJob(id, cfg.Scheduling.Interval.Std(), start))
			if err != nil {
				return vectorizer.Vectorizer{}, err
			}
			if v, err = l.vectorizers.Save(ctx, v.WithJobID(job.ID())); err != nil {
				return vectorizer.Vectorizer{}, err
			}
		}

		if !req.SkipBackfill {
			if err := l.provisioner.Backfill(ctx, v); err != nil {
				return vectorizer.Vectorizer{}, err
			}
		}
		return v, nil
	})
	if err != nil {
		return vectorizer.Vectorizer{}, err
	}

	l.logger.Info("created vectorizer",
		slog.Int64("vectorizer_id", v.ID()),
		slog.String("source", v.Source().String()),
		slog.String("target", v.Target().String()),
		slog.String("queue", v.Queue().String()),
	)
	return v, nil
}

// checkPrivileges requires the caller to own source or be a superuser.
func (l *Lifecycle) checkPrivileges(ctx context.Context, source vectorizer.TableRef) error {
	super, err := l.catalog.IsSuperuser(ctx)
	if err != nil {
		return err
	}
	if super {
		return nil
	}
	owner, err := l.catalog.IsOwner(ctx, source)
	if err != nil {
		return err
	}
	if !owner {
		return fmt.Errorf("%w: only the owner of %s or a superuser can create a vectorizer", vectorizer.ErrPermissionDenied, source)
	}
	return nil
}

// Get returns the registration with id.
func (l *Lifecycle) Get(ctx context.Context, id int64) (vectorizer.Vectorizer, error) {
	return l.vectorizers.Get(ctx, id)
}

// List returns every registration.
func (l *Lifecycle) List(ctx context.Context) ([]vectorizer.Vectorizer, error) {
	return l.vectorizers.Find(ctx)
}

// Drop unschedules the vectorizer, removes its trigger, trigger function and
// queue (and with dropAll its view and target table) and deletes the
// registration last. Objects already gone are skipped, so a repeated drop
// after a crash completes the cleanup.
func (l *Lifecycle) Drop(ctx context.Context, id int64, dropAll bool) error {
	err := database.WithTransaction(ctx, l.db, func(ctx context.Context) error {
		v, err := l.vectorizers.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := l.jobs.DeleteForVectorizer(ctx, id); err != nil {
			return err
		}
		if err := l.provisioner.Teardown(ctx, v, dropAll); err != nil {
			return err
		}
		return l.vectorizers.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("drop vectorizer %d: %w", id, err)
	}

	l.logger.Info("dropped vectorizer", slog.Int64("vectorizer_id", id), slog.Bool("drop_all", dropAll))
	return nil
}

// Deregister removes a vectorizer whose underlying schema was dropped out of
// band. Remaining generated objects are dropped too. A vectorizer that is
// already gone is not an error.
func (l *Lifecycle) Deregister(ctx context.Context, id int64) error {
	err := l.Drop(ctx, id, true)
	if errors.Is(err, vectorizer.ErrNotFound) {
		return nil
	}
	return err
}

// EnableSchedule reactivates the background job of a vectorizer.
func (l *Lifecycle) EnableSchedule(ctx context.Context, id int64) error {
	return l.setScheduleActive(ctx, id, true)
}

// DisableSchedule pauses the background job of a vectorizer. Queued rows and
// stored embeddings are left as they are.
func (l *Lifecycle) DisableSchedule(ctx context.Context, id int64) error {
	return l.setScheduleActive(ctx, id, false)
}

func (l *Lifecycle) setScheduleActive(ctx context.Context, id int64, active bool) error {
	err := database.WithTransaction(ctx, l.db, func(ctx context.Context) error {
		if _, err := l.vectorizers.Get(ctx, id); err != nil {
			return err
		}
		job, err := l.jobs.ForVectorizer(ctx, id)
		if errors.Is(err, schedule.ErrNotFound) {
			return fmt.Errorf("%w: vectorizer %d", vectorizer.ErrNoSchedule, id)
		}
		if err != nil {
			return err
		}
		if job.Active() == active {
			return nil
		}
		_, err = l.jobs.Save(ctx, job.WithActive(active))
		return err
	})
	if err != nil {
		return err
	}

	l.logger.Info("updated schedule", slog.Int64("vectorizer_id", id), slog.Bool("active", active))
	return nil
}
