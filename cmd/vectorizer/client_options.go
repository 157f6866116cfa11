package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/log"
)

// clientOptions returns the vectorizer.Option slice derived from AppConfig.
// Callers append entrypoint-specific options before calling vectorizer.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) []vectorizer.Option {
	opts := []vectorizer.Option{
		vectorizer.WithDatabaseURL(cfg.DBURL()),
		vectorizer.WithLogger(logger),
		vectorizer.WithEmbeddingEndpoint(cfg.EmbeddingEndpoint()),
		vectorizer.WithSchedulerConfig(cfg.Scheduler()),
		vectorizer.WithWatchdogConfig(cfg.Watchdog()),
	}
	if cfg.MaxOpenConns() > 0 {
		opts = append(opts, vectorizer.WithMaxOpenConns(cfg.MaxOpenConns()))
	}
	if keys := cfg.APIKeys(); len(keys) > 0 {
		opts = append(opts, vectorizer.WithAPIKeys(keys...))
	}
	return opts
}

// withClient opens a client without background loops for one-shot commands
// and closes it afterwards.
func withClient(load configLoader, fn func(ctx context.Context, client *vectorizer.Client) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	logger := log.NewLogger(cfg).Slog()

	opts := append(clientOptions(cfg, logger), vectorizer.WithoutBackground())
	client, err := vectorizer.New(opts...)
	if err != nil {
		return fmt.Errorf("create vectorizer client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close vectorizer client", slog.Any("error", err))
		}
	}()

	return fn(context.Background(), client)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid vectorizer id %q", arg)
	}
	return id, nil
}
