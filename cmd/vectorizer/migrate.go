package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixml/vectorizer/infrastructure/persistence"
	"github.com/helixml/vectorizer/internal/database"
	"github.com/helixml/vectorizer/internal/log"
)

func migrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := log.NewLogger(cfg).Slog()
			ctx := context.Background()

			db, err := database.NewDatabaseWithLogger(ctx, cfg.DBURL(), logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := persistence.Migrate(ctx, db, logger); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "catalog is up to date")
			return nil
		},
	}
}
