// Package config provides configuration management for the reactor runtime.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for the reactor service and CLI.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Executor holds the defaults applied to every workflow run.
	Executor ExecutorConfig `mapstructure:"executor"`

	// Server is the HTTP API configuration.
	Server ServerConfig `mapstructure:"server"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Ledger is the step transition ledger configuration.
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Events is the in-process event bus configuration.
	Events EventsConfig `mapstructure:"events"`

	// Workflows lists where workflow definitions are loaded from.
	Workflows WorkflowsConfig `mapstructure:"workflows"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the log output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the log destination (stdout, stderr, discard, or a file path).
	Output string `mapstructure:"output"`
}

// ExecutorConfig holds run-level defaults for the executor.
type ExecutorConfig struct {
	// MaxConcurrency bounds the number of steps running at once. Zero means
	// one slot per step of the workflow.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=0"`

	// Timeout bounds a whole run. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// DefaultStepTimeout applies to steps that do not set their own.
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" validate:"min=0"`

	// Backoff is the retry delay used by steps without their own policy.
	Backoff BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig holds exponential retry backoff settings.
type BackoffConfig struct {
	Initial time.Duration `mapstructure:"initial" validate:"min=0"`
	Max     time.Duration `mapstructure:"max" validate:"min=0"`
	Factor  float64       `mapstructure:"factor" validate:"gte=1"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// Enabled starts the API when the CLI runs in serve mode.
	Enabled bool `mapstructure:"enabled"`

	// Host is the bind address.
	Host string `mapstructure:"host" validate:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit is the number of run submissions allowed per second.
	// Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// RateBurst is the token bucket burst size.
	RateBurst int `mapstructure:"rate_burst" validate:"min=0"`
}

// Address returns the host:port the API listens on.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the standalone metrics server port. The API also serves Path.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlp).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlp"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds exporter calls.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler is the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0) for the ratio sampler.
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// LedgerConfig holds step ledger settings.
type LedgerConfig struct {
	// Enabled attaches a ledger observer to every run.
	Enabled bool `mapstructure:"enabled"`

	// Backend is the ledger storage (file, badger, redis).
	Backend string `mapstructure:"backend" validate:"oneof=file badger redis"`

	// Role prefixes the step name in every ledger record.
	Role string `mapstructure:"role"`

	// Path is the ledger file for the file backend, or the database
	// directory for the badger backend.
	Path string `mapstructure:"path"`

	// SyncWrites flushes every write to disk (file and badger backends).
	SyncWrites bool `mapstructure:"sync_writes"`

	// Redis is the redis backend configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces ledger keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	// Enabled publishes step transitions on the event bus.
	Enabled bool `mapstructure:"enabled"`

	// BufferSize is the per-subscriber channel size.
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`
}

// WorkflowsConfig lists workflow definition sources.
type WorkflowsConfig struct {
	// Dir is scanned for *.yaml and *.yml definitions.
	Dir string `mapstructure:"dir" validate:"dir_exists"`

	// Files are loaded in addition to Dir.
	Files []string `mapstructure:"files"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return validateCrossField(c)
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Ledger: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Ledger.Backend)
}
