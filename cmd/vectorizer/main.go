// Package main is the entry point for the vectorizer CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/vectorizer/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "vectorizer",
		Short: "Keep pgvector embeddings in sync with their source tables",
		Long: `vectorizer watches PostgreSQL tables, queues changed rows, embeds them with the
configured provider and maintains the embedding store, view and vector index.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	load := func() (config.AppConfig, error) {
		return loadConfig(envFile)
	}

	cmd.AddCommand(serveCmd(load))
	cmd.AddCommand(migrateCmd(load))
	cmd.AddCommand(createCmd(load))
	cmd.AddCommand(dropCmd(load))
	cmd.AddCommand(enableCmd(load))
	cmd.AddCommand(disableCmd(load))
	cmd.AddCommand(statusCmd(load))
	cmd.AddCommand(pendingCmd(load))
	cmd.AddCommand(executeCmd(load))
	cmd.AddCommand(runCmd(load))
	cmd.AddCommand(mcpCmd(load))
	cmd.AddCommand(versionCmd())

	return cmd
}

// configLoader defers configuration loading until a command runs, after
// persistent flags are parsed.
type configLoader func() (config.AppConfig, error)

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.DBURL() == "" {
		return config.AppConfig{}, fmt.Errorf("DB_URL is required")
	}
	return cfg, nil
}
