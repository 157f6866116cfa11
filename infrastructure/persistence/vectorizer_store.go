package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/vectorizer/domain/query"
	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/internal/database"
	"gorm.io/gorm"
)

// VectorizerStore implements vectorizer.Store using GORM.
type VectorizerStore struct {
	database.Repository[vectorizer.Vectorizer, VectorizerModel]
	db database.Database
}

// NewVectorizerStore creates a new VectorizerStore.
func NewVectorizerStore(db database.Database) VectorizerStore {
	return VectorizerStore{
		Repository: database.NewRepositoryForTable[vectorizer.Vectorizer, VectorizerModel](
			db, VectorizerMapper{}, "vectorizer", catalogTable(db, "vectorizer"),
		),
		db: db,
	}
}

// NextID reserves the id for a new registration. On PostgreSQL this consumes
// a value from the id sequence so generated names can embed it before the
// row exists.
func (s VectorizerStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	var err error
	if s.db.IsPostgres() {
		err = s.db.Session(ctx).
			Raw(`SELECT pg_catalog.nextval(pg_catalog.pg_get_serial_sequence('ai.vectorizer', 'id'))`).
			Scan(&id).Error
	} else {
		err = s.DB(ctx).Select("COALESCE(MAX(id), 0) + 1").Scan(&id).Error
	}
	if err != nil {
		return 0, fmt.Errorf("reserve vectorizer id: %w", err)
	}
	return id, nil
}

// Get returns the registration with id.
func (s VectorizerStore) Get(ctx context.Context, id int64) (vectorizer.Vectorizer, error) {
	v, err := s.FindOne(ctx, query.WithID(id))
	if errors.Is(err, database.ErrNotFound) {
		return vectorizer.Vectorizer{}, fmt.Errorf("%w: id %d", vectorizer.ErrNotFound, id)
	}
	return v, err
}

// Find returns registrations matching options, ordered by id.
func (s VectorizerStore) Find(ctx context.Context, options ...query.Option) ([]vectorizer.Vectorizer, error) {
	return s.Repository.Find(ctx, append(options, query.WithOrderAsc("id"))...)
}

// Delete removes the registration with id.
func (s VectorizerStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.DeleteBy(ctx, query.WithID(id)); err != nil {
		return err
	}
	return nil
}

// MarkIndexBuilt sets indexing.built_at in the stored config of id. Only the
// marker changes and a missing row is never recreated: it returns ErrNotFound
// when the registration was deleted.
func (s VectorizerStore) MarkIndexBuilt(ctx context.Context, id int64, at time.Time) error {
	value, err := json.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("marshal index build time: %w", err)
	}

	expr := gorm.Expr(`jsonb_set(config, '{indexing,built_at}', ?::jsonb)`, string(value))
	if !s.db.IsPostgres() {
		expr = gorm.Expr(`json_set(CAST(config AS TEXT), '$.indexing.built_at', json(?))`, string(value))
	}

	n, err := s.UpdateColumns(ctx, map[string]any{"config": expr}, query.WithID(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", vectorizer.ErrNotFound, id)
	}
	return nil
}
