package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixml/vectorizer/domain/schedule"
	"github.com/helixml/vectorizer/domain/vectorizer"
)

// VectorizerMapper maps between domain Vectorizer and persistence VectorizerModel.
type VectorizerMapper struct{}

// ToDomain converts a VectorizerModel to a domain Vectorizer.
func (m VectorizerMapper) ToDomain(e VectorizerModel) (vectorizer.Vectorizer, error) {
	var pk vectorizer.PrimaryKey
	if err := json.Unmarshal(e.SourcePK, &pk); err != nil {
		return vectorizer.Vectorizer{}, fmt.Errorf("failed to unmarshal source primary key: %w", err)
	}

	var cfg vectorizer.Config
	if err := json.Unmarshal(e.Config, &cfg); err != nil {
		return vectorizer.Vectorizer{}, fmt.Errorf("failed to unmarshal vectorizer config: %w", err)
	}

	names := vectorizer.Names{
		Target:  vectorizer.NewTableRef(e.TargetSchema, e.TargetTable),
		View:    vectorizer.NewTableRef(e.ViewSchema, e.ViewName),
		Queue:   vectorizer.NewTableRef(e.QueueSchema, e.QueueTable),
		Trigger: e.TriggerName,
	}

	return vectorizer.ReconstructVectorizer(
		e.ID,
		vectorizer.NewTableRef(e.SourceSchema, e.SourceTable),
		pk,
		names,
		cfg,
		e.CreatedAt,
	), nil
}

// ToModel converts a domain Vectorizer to a VectorizerModel.
func (m VectorizerMapper) ToModel(v vectorizer.Vectorizer) (VectorizerModel, error) {
	pk, err := json.Marshal(v.PrimaryKey())
	if err != nil {
		return VectorizerModel{}, fmt.Errorf("failed to marshal source primary key: %w", err)
	}
	cfg, err := json.Marshal(v.Config())
	if err != nil {
		return VectorizerModel{}, fmt.Errorf("failed to marshal vectorizer config: %w", err)
	}

	createdAt := v.CreatedAt()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return VectorizerModel{
		ID:           v.ID(),
		SourceSchema: v.Source().Schema(),
		SourceTable:  v.Source().Name(),
		SourcePK:     pk,
		TargetSchema: v.Target().Schema(),
		TargetTable:  v.Target().Name(),
		ViewSchema:   v.View().Schema(),
		ViewName:     v.View().Name(),
		QueueSchema:  v.Queue().Schema(),
		QueueTable:   v.Queue().Name(),
		TriggerName:  v.TriggerName(),
		Config:       cfg,
		CreatedAt:    createdAt,
	}, nil
}

// JobMapper maps between domain Job and persistence VectorizerJobModel.
type JobMapper struct{}

// ToDomain converts a VectorizerJobModel to a domain Job.
func (m JobMapper) ToDomain(e VectorizerJobModel) (schedule.Job, error) {
	return schedule.ReconstructJob(
		e.ID,
		e.VectorizerID,
		time.Duration(e.IntervalMS)*time.Millisecond,
		e.NextStart.UTC(),
		e.Active,
		e.LastRunAt,
		e.LastError,
		e.CreatedAt,
		e.UpdatedAt,
	), nil
}

// ToModel converts a domain Job to a VectorizerJobModel.
func (m JobMapper) ToModel(j schedule.Job) (VectorizerJobModel, error) {
	now := time.Now().UTC()
	createdAt := j.CreatedAt()
	if createdAt.IsZero() {
		createdAt = now
	}
	return VectorizerJobModel{
		ID:           j.ID(),
		VectorizerID: j.VectorizerID(),
		IntervalMS:   j.Interval().Milliseconds(),
		NextStart:    j.NextStart().UTC(),
		Active:       j.Active(),
		LastRunAt:    j.LastRunAt(),
		LastError:    j.LastError(),
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}, nil
}
