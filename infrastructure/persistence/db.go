// Package persistence provides the vectorizer catalog storage.
package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/internal/database"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the catalog schema up to date. PostgreSQL runs the embedded
// goose migrations; SQLite, used by tests, gets the tables from AutoMigrate.
func Migrate(ctx context.Context, db database.Database, logger *slog.Logger) error {
	if !db.IsPostgres() {
		return AutoMigrate(db)
	}

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	sqlDB, err := db.GORM().DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// AutoMigrate creates the catalog tables through GORM. It is used for SQLite,
// which has no schemas, triggers or event triggers.
func AutoMigrate(db database.Database) error {
	return db.GORM().AutoMigrate(
		&VectorizerModel{},
		&VectorizerJobModel{},
	)
}

// catalogTable returns the table name for the current dialect.
func catalogTable(db database.Database, name string) string {
	if db.IsPostgres() {
		return vectorizer.CatalogSchema + "." + name
	}
	return name
}
