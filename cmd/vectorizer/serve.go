package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/api"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/log"
)

func serveCmd(load configLoader) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler, watchdog and HTTP API",
		Long: `Start the background scheduler and watchdog together with the HTTP API.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DB_URL                       PostgreSQL connection URL (required)
  DB_MAX_OPEN_CONNS            Connection pool size (default: 20)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated keys required for mutating requests

  EMBEDDING_ENDPOINT_*         Defaults for embedding providers
    BASE_URL                   Base URL override
    API_KEY                    Used when a vectorizer names no credential
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)

  SCHEDULER_ENABLED            Run due jobs in the background (default: true)
  SCHEDULER_POLL_SECONDS       Due-job poll period (default: 5)
  SCHEDULER_MAX_PARALLEL_JOBS  Concurrent vectorizer jobs (default: 4)

  WATCHDOG_ENABLED             Deregister vectorizers whose tables vanish (default: true)
  WATCHDOG_INTERVAL_SECONDS    Reconciliation period (default: 60)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(applyServeOverrides(cfg, host, port))
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(cfg config.AppConfig) error {
	slogger := log.Configure(cfg).Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting vectorizer", attrs...)

	client, err := vectorizer.New(clientOptions(cfg, slogger)...)
	if err != nil {
		return fmt.Errorf("create vectorizer client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close vectorizer client", slog.Any("error", err))
		}
	}()

	apiServer := api.NewAPIServer(client, client.APIKeys(), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slogger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("shutdown error", slog.Any("error", err))
	}
	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
