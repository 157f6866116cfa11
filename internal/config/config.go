// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                  = "0.0.0.0"
	DefaultPort                  = 8080
	DefaultLogLevel              = "INFO"
	DefaultMaxOpenConns          = 20
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0
	DefaultSchedulerPollPeriod   = 5 * time.Second
	DefaultSchedulerMaxParallel  = 4
	DefaultWatchdogInterval      = time.Minute
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures the default embedding service used when a vectorizer
// does not name its own base URL.
type Endpoint struct {
	baseURL       string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// APIKey returns the fallback API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithAPIKey sets the fallback API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// SchedulerConfig configures the background job scheduler.
type SchedulerConfig struct {
	enabled     bool
	pollPeriod  time.Duration
	maxParallel int
}

// NewSchedulerConfig creates a SchedulerConfig with defaults.
func NewSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		enabled:     true,
		pollPeriod:  DefaultSchedulerPollPeriod,
		maxParallel: DefaultSchedulerMaxParallel,
	}
}

// Enabled returns whether the scheduler runs in the background.
func (s SchedulerConfig) Enabled() bool { return s.enabled }

// PollPeriod returns how often due jobs are checked.
func (s SchedulerConfig) PollPeriod() time.Duration { return s.pollPeriod }

// MaxParallel returns how many vectorizer jobs may run at once.
func (s SchedulerConfig) MaxParallel() int { return s.maxParallel }

// WithEnabled returns a new config with the specified enabled state.
func (s SchedulerConfig) WithEnabled(enabled bool) SchedulerConfig {
	s.enabled = enabled
	return s
}

// WithPollPeriod returns a new config with the specified poll period.
func (s SchedulerConfig) WithPollPeriod(d time.Duration) SchedulerConfig {
	if d > 0 {
		s.pollPeriod = d
	}
	return s
}

// WithMaxParallel returns a new config with the specified parallelism.
func (s SchedulerConfig) WithMaxParallel(n int) SchedulerConfig {
	if n > 0 {
		s.maxParallel = n
	}
	return s
}

// WatchdogConfig configures drop detection and reconciliation.
type WatchdogConfig struct {
	enabled  bool
	interval time.Duration
}

// NewWatchdogConfig creates a WatchdogConfig with defaults.
func NewWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		enabled:  true,
		interval: DefaultWatchdogInterval,
	}
}

// Enabled returns whether the watchdog runs in the background.
func (w WatchdogConfig) Enabled() bool { return w.enabled }

// Interval returns the reconciliation period.
func (w WatchdogConfig) Interval() time.Duration { return w.interval }

// WithEnabled returns a new config with the specified enabled state.
func (w WatchdogConfig) WithEnabled(enabled bool) WatchdogConfig {
	w.enabled = enabled
	return w
}

// WithInterval returns a new config with the specified interval.
func (w WatchdogConfig) WithInterval(d time.Duration) WatchdogConfig {
	if d > 0 {
		w.interval = d
	}
	return w
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dbURL             string
	maxOpenConns      int
	logLevel          string
	logFormat         LogFormat
	apiKeys           []string
	embeddingEndpoint Endpoint
	scheduler         SchedulerConfig
	watchdog          WatchdogConfig
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		maxOpenConns:      DefaultMaxOpenConns,
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		apiKeys:           []string{},
		embeddingEndpoint: NewEndpoint(),
		scheduler:         NewSchedulerConfig(),
		watchdog:          NewWatchdogConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// MaxOpenConns returns the connection pool size.
func (c AppConfig) MaxOpenConns() int { return c.maxOpenConns }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// EmbeddingEndpoint returns the default embedding endpoint.
func (c AppConfig) EmbeddingEndpoint() Endpoint { return c.embeddingEndpoint }

// Scheduler returns the scheduler config.
func (c AppConfig) Scheduler() SchedulerConfig { return c.scheduler }

// Watchdog returns the watchdog config.
func (c AppConfig) Watchdog() WatchdogConfig { return c.watchdog }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithMaxOpenConns sets the connection pool size.
func WithMaxOpenConns(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithEmbeddingEndpoint sets the default embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = e }
}

// WithSchedulerConfig sets the scheduler config.
func WithSchedulerConfig(s SchedulerConfig) AppConfigOption {
	return func(c *AppConfig) { c.scheduler = s }
}

// WithWatchdogConfig sets the watchdog config.
func WithWatchdogConfig(w WatchdogConfig) AppConfigOption {
	return func(c *AppConfig) { c.watchdog = w }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Credentials are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_base_url", c.embeddingEndpoint.BaseURL()),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Bool("scheduler_enabled", c.scheduler.Enabled()),
		slog.Duration("scheduler_poll_period", c.scheduler.PollPeriod()),
		slog.Bool("watchdog_enabled", c.watchdog.Enabled()),
		slog.Duration("watchdog_interval", c.watchdog.Interval()),
	}
}

func (c AppConfig) maskedDBURL() string {
	switch {
	case c.dbURL == "":
		return "(not configured)"
	case strings.HasPrefix(c.dbURL, "sqlite:"):
		return c.dbURL
	default:
		return "postgres://***@***"
	}
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
