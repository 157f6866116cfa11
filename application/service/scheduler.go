package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixml/vectorizer/domain/schedule"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/log"
	"golang.org/x/sync/errgroup"
)

// JobRunner runs one tick of a vectorizer.
type JobRunner interface {
	Run(ctx context.Context, id int64) (RunResult, error)
}

// Scheduler polls for due jobs and runs their vectorizers.
type Scheduler struct {
	jobs        schedule.Store
	runner      JobRunner
	logger      *slog.Logger
	pollPeriod  time.Duration
	maxParallel int
	enabled     bool
	now         func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a Scheduler from config and dependencies.
func NewScheduler(cfg config.SchedulerConfig, jobs schedule.Store, runner JobRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:        jobs,
		runner:      runner,
		logger:      logger.With("component", "scheduler"),
		pollPeriod:  cfg.PollPeriod(),
		maxParallel: max(cfg.MaxParallel(), 1),
		enabled:     cfg.Enabled(),
		now:         time.Now,
	}
}

// Start begins polling in a background goroutine.
// If disabled, this is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled {
		s.logger.Info("scheduler disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Go(func() {
		s.run(ctx)
	})

	s.logger.Info("scheduler started",
		slog.Duration("poll_period", s.pollPeriod),
		slog.Int("max_parallel", s.maxParallel),
	)
}

// Stop cancels the background goroutine and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.pollPeriod)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("scheduler tick failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims the jobs due now and runs them, at most maxParallel at a
// time. It returns the number of jobs run. Run failures are recorded on the
// job and do not fail the tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	ctx = log.WithCorrelationID(ctx, uuid.NewString())

	due, err := s.jobs.ClaimDue(ctx, s.now(), s.maxParallel)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(s.maxParallel)
	for _, job := range due {
		g.Go(func() error {
			s.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(due), nil
}

func (s *Scheduler) runJob(ctx context.Context, job schedule.Job) {
	runErr := s.safeRun(ctx, job.VectorizerID())
	if runErr != nil {
		s.logger.Error("scheduled run failed",
			append(log.ContextAttrs(ctx),
				slog.Int64("job_id", job.ID()),
				slog.Int64("vectorizer_id", job.VectorizerID()),
				slog.String("error", runErr.Error()),
			)...,
		)
	}

	if err := s.jobs.RecordRun(ctx, job.ID(), s.now(), runErr); err != nil {
		s.logger.Warn("failed to record job run",
			slog.Int64("job_id", job.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, id int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	res, err := s.runner.Run(ctx, id)
	if err != nil {
		return err
	}
	return res.Err
}
