package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/watch"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/log"
)

// DropListener delivers catalog drop notifications until ctx is done.
type DropListener interface {
	Listen(ctx context.Context, handle watch.HandlerFunc) error
}

// Deregisterer removes a vectorizer whose schema disappeared.
type Deregisterer interface {
	Deregister(ctx context.Context, id int64) error
}

// RelationChecker reports whether a table or view exists.
type RelationChecker interface {
	RelationExists(ctx context.Context, ref vectorizer.TableRef) (bool, error)
}

var _ DropListener = watch.Listener{}

// Watchdog keeps registrations consistent with the schema. It reacts to drop
// notifications when a listener is available and reconciles periodically.
type Watchdog struct {
	vectorizers vectorizer.Store
	catalog     RelationChecker
	lifecycle   Deregisterer
	listener    DropListener
	logger      *slog.Logger
	interval    time.Duration
	enabled     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWatchdog creates a Watchdog. listener may be nil, in which case only
// periodic reconciliation runs.
func NewWatchdog(
	cfg config.WatchdogConfig,
	vectorizers vectorizer.Store,
	catalog RelationChecker,
	lifecycle Deregisterer,
	listener DropListener,
	logger *slog.Logger,
) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		vectorizers: vectorizers,
		catalog:     catalog,
		lifecycle:   lifecycle,
		listener:    listener,
		logger:      logger.With("component", "watchdog"),
		interval:    cfg.Interval(),
		enabled:     cfg.Enabled(),
	}
}

// Start runs the listener and the reconciliation loop in the background.
// If disabled, this is a no-op.
func (w *Watchdog) Start(ctx context.Context) {
	if !w.enabled {
		w.logger.Info("watchdog disabled")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	if w.listener != nil {
		w.wg.Go(func() {
			err := w.listener.Listen(ctx, w.HandleDrop)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("drop listener stopped", slog.String("error", err.Error()))
			}
		})
	}
	w.wg.Go(func() {
		w.run(ctx)
	})

	w.logger.Info("watchdog started",
		slog.Duration("interval", w.interval),
		slog.Bool("listening", w.listener != nil),
	)
}

// Stop cancels the background goroutines and waits for them to finish.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("watchdog stopped")
}

func (w *Watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Reconcile(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("reconciliation failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HandleDrop deregisters the vectorizer named by a drop notification.
func (w *Watchdog) HandleDrop(ctx context.Context, d watch.Drop) {
	ctx = log.WithCorrelationID(ctx, uuid.NewString())
	ctx = log.WithVectorizerID(ctx, d.VectorizerID)

	w.logger.Info("vectorizer object dropped",
		append(log.ContextAttrs(ctx),
			slog.String("object", vectorizer.NewTableRef(d.Schema, d.Name).String()),
		)...,
	)
	if err := w.lifecycle.Deregister(ctx, d.VectorizerID); err != nil {
		w.logger.Error("failed to deregister vectorizer",
			append(log.ContextAttrs(ctx), slog.String("error", err.Error()))...,
		)
	}
}

// Reconcile deregisters every vectorizer whose source, target or queue table
// is missing. It returns the ids removed.
func (w *Watchdog) Reconcile(ctx context.Context) ([]int64, error) {
	ctx = log.WithCorrelationID(ctx, uuid.NewString())

	all, err := w.vectorizers.Find(ctx)
	if err != nil {
		return nil, err
	}

	var (
		removed []int64
		errs    []error
	)
	for _, v := range all {
		missing, err := w.missingObject(ctx, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if missing.IsZero() {
			continue
		}

		w.logger.Info("vectorizer object missing, deregistering",
			slog.Int64("vectorizer_id", v.ID()),
			slog.String("object", missing.String()),
		)
		if err := w.lifecycle.Deregister(ctx, v.ID()); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, v.ID())
	}
	return removed, errors.Join(errs...)
}

// missingObject returns the first backing table of v that no longer exists,
// or a zero ref.
func (w *Watchdog) missingObject(ctx context.Context, v vectorizer.Vectorizer) (vectorizer.TableRef, error) {
	for _, ref := range []vectorizer.TableRef{v.Source(), v.Target(), v.Queue()} {
		exists, err := w.catalog.RelationExists(ctx, ref)
		if err != nil {
			return vectorizer.TableRef{}, err
		}
		if !exists {
			return ref, nil
		}
	}
	return vectorizer.TableRef{}, nil
}
