package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	DBURL string `envconfig:"DB_URL"`

	// DBMaxOpenConns caps the connection pool.
	// Env: DB_MAX_OPEN_CONNS (default: 20)
	DBMaxOpenConns int `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of valid API keys.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// EmbeddingEndpoint configures the default embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// Scheduler configures the background job scheduler.
	Scheduler SchedulerEnv `envconfig:"SCHEDULER"`

	// Watchdog configures drop detection.
	Watchdog WatchdogEnv `envconfig:"WATCHDOG"`
}

// EndpointEnv holds environment configuration for the embedding endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: EMBEDDING_ENDPOINT_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// APIKey is used when a vectorizer's credential reference is unset.
	// Env: EMBEDDING_ENDPOINT_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: EMBEDDING_ENDPOINT_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: EMBEDDING_ENDPOINT_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: EMBEDDING_ENDPOINT_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: EMBEDDING_ENDPOINT_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// SchedulerEnv holds environment configuration for the scheduler.
type SchedulerEnv struct {
	// Enabled controls whether due jobs run in the background.
	// Env: SCHEDULER_ENABLED (default: true)
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// PollSeconds is how often due jobs are checked.
	// Env: SCHEDULER_POLL_SECONDS (default: 5)
	PollSeconds float64 `envconfig:"POLL_SECONDS" default:"5"`

	// MaxParallelJobs caps concurrently running vectorizer jobs.
	// Env: SCHEDULER_MAX_PARALLEL_JOBS (default: 4)
	MaxParallelJobs int `envconfig:"MAX_PARALLEL_JOBS" default:"4"`
}

// WatchdogEnv holds environment configuration for the watchdog.
type WatchdogEnv struct {
	// Enabled controls whether drop detection runs.
	// Env: WATCHDOG_ENABLED (default: true)
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// IntervalSeconds is the reconciliation period.
	// Env: WATCHDOG_INTERVAL_SECONDS (default: 60)
	IntervalSeconds float64 `envconfig:"INTERVAL_SECONDS" default:"60"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "VECTORIZER" would require VECTORIZER_DB_URL instead of DB_URL.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	cfg = applyOption(cfg, WithMaxOpenConns(e.DBMaxOpenConns))
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}

	cfg = applyOption(cfg, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	cfg = applyOption(cfg, WithSchedulerConfig(e.Scheduler.ToSchedulerConfig()))
	cfg = applyOption(cfg, WithWatchdogConfig(e.Watchdog.ToWatchdogConfig()))

	return cfg
}

func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	return NewEndpointWithOptions(opts...)
}

// ToSchedulerConfig converts SchedulerEnv to SchedulerConfig.
func (s SchedulerEnv) ToSchedulerConfig() SchedulerConfig {
	return NewSchedulerConfig().
		WithEnabled(s.Enabled).
		WithPollPeriod(seconds(s.PollSeconds)).
		WithMaxParallel(s.MaxParallelJobs)
}

// ToWatchdogConfig converts WatchdogEnv to WatchdogConfig.
func (w WatchdogEnv) ToWatchdogConfig() WatchdogConfig {
	return NewWatchdogConfig().
		WithEnabled(w.Enabled).
		WithInterval(seconds(w.IntervalSeconds))
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
