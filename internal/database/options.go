package database

import (
	"github.com/helixml/vectorizer/domain/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyOptions adds the WHERE and ORDER BY clauses described by options.
func ApplyOptions(db *gorm.DB, options ...query.Option) *gorm.DB {
	q := query.Build(options...)
	db = where(db, q)
	for _, column := range q.OrderBy() {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}})
	}
	return db
}

// ApplyConditions adds only the WHERE clause, for deletes.
func ApplyConditions(db *gorm.DB, options ...query.Option) *gorm.DB {
	return where(db, query.Build(options...))
}

func where(db *gorm.DB, q query.Query) *gorm.DB {
	for _, c := range q.Conditions() {
		db = db.Where(clause.Eq{Column: clause.Column{Name: c.Column}, Value: c.Value})
	}
	return db
}
