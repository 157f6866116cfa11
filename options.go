package vectorizer

import (
	"io"
	"log/slog"

	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/infrastructure/provider"
	"github.com/helixml/vectorizer/internal/config"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	dbURL          string
	maxOpenConns   int
	skipMigrations bool
	endpoint       config.Endpoint
	lookup         provider.LookupFunc
	embedders      embedding.EmbedderFactory
	scheduler      config.SchedulerConfig
	watchdog       config.WatchdogConfig
	logger         *slog.Logger
	apiKeys        []string
	closers        []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		endpoint:  config.NewEndpoint(),
		scheduler: config.NewSchedulerConfig(),
		watchdog:  config.NewWatchdogConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithDatabaseURL sets the database. PostgreSQL URLs (postgres://) are
// required for provisioning and embedding; sqlite:/// URLs only support the
// registration catalog and are meant for tests.
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithMaxOpenConns caps the connection pool. Values <= 0 are ignored.
func WithMaxOpenConns(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithSkipMigrations leaves the catalog schema untouched on startup.
func WithSkipMigrations() Option {
	return func(c *clientConfig) {
		c.skipMigrations = true
	}
}

// WithEmbeddingEndpoint sets the fallback key, timeout and retry policy used
// for embedding providers.
func WithEmbeddingEndpoint(e config.Endpoint) Option {
	return func(c *clientConfig) {
		c.endpoint = e
	}
}

// WithEnvLookup replaces os.LookupEnv for resolving provider credentials
// named by api_key_name.
func WithEnvLookup(lookup provider.LookupFunc) Option {
	return func(c *clientConfig) {
		c.lookup = lookup
	}
}

// WithEmbedderFactory replaces the provider factory used by the executor.
func WithEmbedderFactory(f embedding.EmbedderFactory) Option {
	return func(c *clientConfig) {
		c.embedders = f
	}
}

// WithSchedulerConfig sets the background scheduler configuration.
func WithSchedulerConfig(cfg config.SchedulerConfig) Option {
	return func(c *clientConfig) {
		c.scheduler = cfg
	}
}

// WithWatchdogConfig sets the drop watchdog configuration.
func WithWatchdogConfig(cfg config.WatchdogConfig) Option {
	return func(c *clientConfig) {
		c.watchdog = cfg
	}
}

// WithoutBackground disables the scheduler and the watchdog. One-shot
// commands use it so opening a client never starts work.
func WithoutBackground() Option {
	return func(c *clientConfig) {
		c.scheduler = c.scheduler.WithEnabled(false)
		c.watchdog = c.watchdog.WithEnabled(false)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithAPIKeys sets the API keys for HTTP API authentication.
func WithAPIKeys(keys ...string) Option {
	return func(c *clientConfig) {
		c.apiKeys = keys
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(c io.Closer) Option {
	return func(cfg *clientConfig) {
		cfg.closers = append(cfg.closers, c)
	}
}
