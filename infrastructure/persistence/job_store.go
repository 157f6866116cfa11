package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/vectorizer/domain/query"
	"github.com/helixml/vectorizer/domain/schedule"
	"github.com/helixml/vectorizer/internal/database"
	"gorm.io/gorm/clause"
)

// JobStore implements schedule.Store using GORM.
type JobStore struct {
	database.Repository[schedule.Job, VectorizerJobModel]
	db database.Database
}

// NewJobStore creates a new JobStore.
func NewJobStore(db database.Database) JobStore {
	return JobStore{
		Repository: database.NewRepositoryForTable[schedule.Job, VectorizerJobModel](
			db, JobMapper{}, "vectorizer job", catalogTable(db, "vectorizer_job"),
		),
		db: db,
	}
}

// ForVectorizer returns the job of a vectorizer.
func (s JobStore) ForVectorizer(ctx context.Context, vectorizerID int64) (schedule.Job, error) {
	j, err := s.FindOne(ctx, query.WithCondition("vectorizer_id", vectorizerID))
	if errors.Is(err, database.ErrNotFound) {
		return schedule.Job{}, fmt.Errorf("%w: vectorizer %d", schedule.ErrNotFound, vectorizerID)
	}
	return j, err
}

// DeleteForVectorizer removes the job of a vectorizer, if any.
func (s JobStore) DeleteForVectorizer(ctx context.Context, vectorizerID int64) error {
	_, err := s.DeleteBy(ctx, query.WithCondition("vectorizer_id", vectorizerID))
	return err
}

// ClaimDue locks due jobs with SKIP LOCKED, so concurrent schedulers never
// claim the same job, and pushes their next start one interval past now.
func (s JobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]schedule.Job, error) {
	now = now.UTC()
	return database.WithTransactionResult(ctx, s.db, func(ctx context.Context) ([]schedule.Job, error) {
		db := s.DB(ctx).
			Where("active = ? AND next_start <= ?", true, now).
			Order("next_start ASC")
		if limit > 0 {
			db = db.Limit(limit)
		}
		if s.db.IsPostgres() {
			db = db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var models []VectorizerJobModel
		if err := db.Find(&models).Error; err != nil {
			return nil, fmt.Errorf("find due jobs: %w", err)
		}

		mapper := JobMapper{}
		jobs := make([]schedule.Job, 0, len(models))
		for _, m := range models {
			j, err := mapper.ToDomain(m)
			if err != nil {
				return nil, err
			}
			j = j.Advance(now)
			err = s.DB(ctx).
				Where("id = ?", j.ID()).
				Updates(map[string]any{"next_start": j.NextStart(), "updated_at": now}).Error
			if err != nil {
				return nil, fmt.Errorf("advance job %d: %w", j.ID(), err)
			}
			jobs = append(jobs, j)
		}
		return jobs, nil
	})
}

// RecordRun stores the outcome of a run.
func (s JobStore) RecordRun(ctx context.Context, id int64, at time.Time, runErr error) error {
	lastError := ""
	if runErr != nil {
		lastError = runErr.Error()
	}
	at = at.UTC()
	err := s.DB(ctx).
		Where("id = ?", id).
		Updates(map[string]any{"last_run_at": at, "last_error": lastError, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	return nil
}
