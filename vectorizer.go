// Package vectorizer keeps vector embeddings of PostgreSQL tables up to date.
//
// A vectorizer watches a source table through a trigger-fed queue, embeds
// changed rows in the background and stores the chunks in a target table
// exposed through a joined view.
//
// Basic usage:
//
//	client, err := vectorizer.New(
//	    vectorizer.WithDatabaseURL(os.Getenv("DB_URL")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	v, err := client.Vectorizers.Create(ctx, service.CreateRequest{
//	    Source: domain.NewTableRef("public", "documents"),
//	    Config: domain.Config{
//	        Embedding: domain.EmbeddingConfig{Implementation: "openai", Model: "text-embedding-3-small", Dimensions: 768},
//	        Chunking:  domain.ChunkingConfig{ChunkColumn: "body"},
//	    },
//	})
//
//	pending, err := client.Status.Pending(ctx, v.ID(), false)
package vectorizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/vectorizer/application/service"
	domain "github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/infrastructure/index"
	"github.com/helixml/vectorizer/infrastructure/persistence"
	"github.com/helixml/vectorizer/infrastructure/provider"
	"github.com/helixml/vectorizer/infrastructure/queue"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/infrastructure/watch"
	"github.com/helixml/vectorizer/internal/config"
	"github.com/helixml/vectorizer/internal/database"
)

// Client is the main entry point for the vectorizer library.
// The scheduler and watchdog start automatically on creation unless disabled.
//
// Access resources via struct fields:
//
//	client.Vectorizers.List(ctx)
//	client.Status.Pending(ctx, id, false)
type Client struct {
	Vectorizers *Vectorizers
	Status      *Status

	db        database.Database
	scheduler *service.Scheduler
	watchdog  *service.Watchdog
	closers   []io.Closer
	logger    *slog.Logger
	apiKeys   []string
	closed    atomic.Bool
	mu        sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	ctx := context.Background()
	db, err := database.NewDatabaseWithLogger(ctx, cfg.dbURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.maxOpenConns > 0 {
		if err := db.ConfigurePool(cfg.maxOpenConns, cfg.maxOpenConns, time.Hour); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("configure pool: %w", err), errClose)
		}
	}

	if !cfg.skipMigrations {
		if err := persistence.Migrate(ctx, db, logger); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("migrate: %w", err), errClose)
		}
	}

	embedders := cfg.embedders
	if embedders == nil {
		lookup := cfg.lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		endpoint := cfg.endpoint
		embedders = func(ec domain.EmbeddingConfig) (provider.Embedder, error) {
			return provider.ForEmbedding(ec, endpoint, lookup)
		}
	}

	vectorizerStore := persistence.NewVectorizerStore(db)
	jobStore := persistence.NewJobStore(db)
	introspector := schema.NewIntrospector(db)
	probe := queue.NewProbe(db)

	lifecycle := service.NewLifecycle(db, vectorizerStore, jobStore, introspector, schema.NewProvisioner(db, logger), logger)
	runner := service.NewRunner(vectorizerStore, probe, embedding.NewExecutor(db, embedders, logger), index.NewBuilder(db, logger), logger)

	var listener service.DropListener
	if db.IsPostgres() {
		listener = watch.NewListener(cfg.dbURL, logger)
	}
	watchdog := service.NewWatchdog(cfg.watchdog, vectorizerStore, introspector, lifecycle, listener, logger)
	scheduler := service.NewScheduler(cfg.scheduler, jobStore, runner, logger)

	client := &Client{
		db:        db,
		scheduler: scheduler,
		watchdog:  watchdog,
		closers:   cfg.closers,
		logger:    logger,
		apiKeys:   cfg.apiKeys,
	}
	client.Vectorizers = &Vectorizers{
		lifecycle: lifecycle,
		runner:    runner,
		watchdog:  watchdog,
		closed:    &client.closed,
	}
	client.Status = &Status{
		status: service.NewStatus(vectorizerStore, probe),
		closed: &client.closed,
	}

	scheduler.Start(ctx)
	watchdog.Start(ctx)

	return client, nil
}

// Close stops background work and releases all resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduler.Stop()
	c.watchdog.Stop()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("vectorizer client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// APIKeys returns the keys that protect mutating HTTP routes.
func (c *Client) APIKeys() []string {
	return c.apiKeys
}
