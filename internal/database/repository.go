package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixml/vectorizer/domain/query"
	"gorm.io/gorm"
)

// ErrNotFound indicates the requested entity was not found.
var ErrNotFound = errors.New("entity not found")

// EntityMapper defines the interface for mapping between domain and database model types.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) (D, error)
	ToModel(domain D) (E, error)
}

// Repository maps catalog rows to domain values and runs query.Option
// lookups against them.
type Repository[D any, E any] struct {
	db        Database
	mapper    EntityMapper[D, E]
	label     string
	tableName string
}

// NewRepositoryForTable creates a Repository that targets a specific table name.
// GORM caches schemas by type, so a dynamic TableName() does not work when the
// same struct maps to a schema-qualified table on Postgres and a bare table on
// SQLite. The name is applied via .Table() after .Model() in every operation.
func NewRepositoryForTable[D any, E any](db Database, mapper EntityMapper[D, E], label string, tableName string) Repository[D, E] {
	return Repository[D, E]{
		db:        db,
		mapper:    mapper,
		label:     label,
		tableName: tableName,
	}
}

// modelDB returns a GORM session scoped to the entity model and optional table.
// The trailing Session call resets the clone counter so callers get a fresh
// chainable session.
func (r Repository[D, E]) modelDB(ctx context.Context) *gorm.DB {
	db := r.db.Session(ctx).Model(new(E))
	if r.tableName != "" {
		db = db.Table(r.tableName).Session(&gorm.Session{})
	}
	return db
}

func (r Repository[D, E]) sessionDB(ctx context.Context) *gorm.DB {
	db := r.db.Session(ctx)
	if r.tableName != "" {
		db = db.Table(r.tableName).Session(&gorm.Session{})
	}
	return db
}

// Find retrieves entities matching the given options.
func (r Repository[D, E]) Find(ctx context.Context, options ...query.Option) ([]D, error) {
	var entities []E
	db := ApplyOptions(r.modelDB(ctx), options...)
	if err := db.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	domains := make([]D, 0, len(entities))
	for _, entity := range entities {
		d, err := r.mapper.ToDomain(entity)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", r.label, err)
		}
		domains = append(domains, d)
	}
	return domains, nil
}

// FindOne retrieves a single entity matching the given options.
func (r Repository[D, E]) FindOne(ctx context.Context, options ...query.Option) (D, error) {
	var zero D
	var entity E
	db := ApplyOptions(r.sessionDB(ctx), options...)
	if err := db.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
		}
		return zero, fmt.Errorf("find one %s: %w", r.label, err)
	}
	d, err := r.mapper.ToDomain(entity)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	return d, nil
}

// Save inserts or updates d and returns the stored value with generated fields.
func (r Repository[D, E]) Save(ctx context.Context, d D) (D, error) {
	var zero D
	entity, err := r.mapper.ToModel(d)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	if err := r.sessionDB(ctx).Save(&entity).Error; err != nil {
		return zero, fmt.Errorf("save %s: %w", r.label, err)
	}
	saved, err := r.mapper.ToDomain(entity)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	return saved, nil
}

// DeleteBy removes entities matching the given options and reports how many were removed.
func (r Repository[D, E]) DeleteBy(ctx context.Context, options ...query.Option) (int64, error) {
	db := ApplyConditions(r.sessionDB(ctx), options...)
	result := db.Delete(new(E))
	if result.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", r.label, result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateColumns sets columns on rows matching options without touching other
// columns or inserting, and reports how many rows changed.
func (r Repository[D, E]) UpdateColumns(ctx context.Context, values map[string]any, options ...query.Option) (int64, error) {
	db := ApplyConditions(r.sessionDB(ctx), options...)
	result := db.UpdateColumns(values)
	if result.Error != nil {
		return 0, fmt.Errorf("update %s: %w", r.label, result.Error)
	}
	return result.RowsAffected, nil
}

// DB returns a GORM session scoped to the optional dynamic table.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	return r.sessionDB(ctx)
}
