package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/internal/log"
	"golang.org/x/sync/errgroup"
)

// RunResult reports one scheduler tick of a vectorizer.
type RunResult struct {
	VectorizerID int64
	Backlog      int64
	FanOut       int
	Processed    int
	Failed       int
	// Err joins the failures of individual fan-out calls. They never fail the run.
	Err        error
	IndexBuilt bool
	Duration   time.Duration
}

// Runner performs one unit of scheduled work for a vectorizer: probe the
// backlog, fan out executor calls and build the vector index when eligible.
// No transaction is held across steps.
type Runner struct {
	vectorizers vectorizer.Store
	backlog     Backlog
	executor    Executor
	indexer     Indexer
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(vectorizers vectorizer.Store, backlog Backlog, executor Executor, indexer Indexer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		vectorizers: vectorizers,
		backlog:     backlog,
		executor:    executor,
		indexer:     indexer,
		logger:      logger.With("component", "runner"),
		now:         time.Now,
	}
}

// Run executes one tick for the vectorizer with id.
func (r *Runner) Run(ctx context.Context, id int64) (RunResult, error) {
	ctx = log.WithVectorizerID(ctx, id)
	start := r.now()
	result := RunResult{VectorizerID: id}

	v, err := r.vectorizers.Get(ctx, id)
	if err != nil {
		return result, err
	}

	backlog, err := r.backlog.Pending(ctx, v.Queue(), false)
	if err != nil {
		return result, fmt.Errorf("probe backlog: %w", err)
	}
	result.Backlog = backlog

	cfg := v.Config().Processing
	result.FanOut = vectorizer.FanOut(backlog, cfg.BatchSize, cfg.Concurrency)
	if result.FanOut > 0 {
		result.Processed, result.Failed, result.Err = r.fanOut(ctx, v, result.FanOut)
		if result.Err != nil {
			r.logger.Warn("executor calls failed",
				append(log.ContextAttrs(ctx),
					slog.Int("failed", result.Failed),
					slog.Int("fan_out", result.FanOut),
					slog.String("error", result.Err.Error()),
				)...,
			)
		}
	}

	built, err := r.maybeBuildIndex(ctx, v, backlog, result.FanOut > 0)
	if err != nil {
		return result, err
	}
	result.IndexBuilt = built
	result.Duration = r.now().Sub(start)

	r.logger.Debug("run complete",
		append(log.ContextAttrs(ctx),
			slog.Int64("backlog", result.Backlog),
			slog.Int("fan_out", result.FanOut),
			slog.Int("processed", result.Processed),
			slog.Bool("index_built", result.IndexBuilt),
		)...,
	)
	return result, nil
}

// Execute runs a single executor call for the vectorizer with id.
func (r *Runner) Execute(ctx context.Context, id int64) (embedding.Result, error) {
	ctx = log.WithVectorizerID(ctx, id)
	v, err := r.vectorizers.Get(ctx, id)
	if err != nil {
		return embedding.Result{}, err
	}
	return r.executor.Execute(ctx, v)
}

// fanOut issues n independent executor calls. A failed call does not cancel
// the others.
func (r *Runner) fanOut(ctx context.Context, v vectorizer.Vectorizer, n int) (processed, failed int, err error) {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for range n {
		g.Go(func() error {
			res, err := r.executor.Execute(ctx, v)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				errs = append(errs, err)
				return nil
			}
			processed += res.Items
			return nil
		})
	}
	_ = g.Wait()
	return processed, failed, errors.Join(errs...)
}

// maybeBuildIndex builds the index when eligible and records the build marker.
// After a fan-out the backlog is probed again.
func (r *Runner) maybeBuildIndex(ctx context.Context, v vectorizer.Vectorizer, backlog int64, reprobe bool) (bool, error) {
	cfg := v.Config().Indexing
	if !cfg.Enabled() || cfg.Built() {
		return false, nil
	}

	if reprobe && cfg.WaitForEmptyQueue() {
		var err error
		backlog, err = r.backlog.Pending(ctx, v.Queue(), false)
		if err != nil {
			return false, fmt.Errorf("probe backlog: %w", err)
		}
	}

	eligible, err := r.indexer.Eligible(ctx, v, backlog)
	if err != nil {
		return false, fmt.Errorf("check index eligibility: %w", err)
	}
	if !eligible {
		return false, nil
	}

	built, err := r.indexer.Build(ctx, v)
	if err != nil {
		return false, err
	}
	if !built {
		return false, nil
	}

	err = r.vectorizers.MarkIndexBuilt(ctx, v.ID(), r.now())
	if errors.Is(err, vectorizer.ErrNotFound) {
		r.logger.Info("vectorizer dropped during run, index marker not recorded", log.ContextAttrs(ctx)...)
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("record index build: %w", err)
	}
	return true, nil
}
