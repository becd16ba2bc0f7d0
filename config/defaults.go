package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "reactor",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Executor: ExecutorConfig{
			MaxConcurrency:     0,
			Timeout:            0,
			DefaultStepTimeout: 30 * time.Second,
			Backoff: BackoffConfig{
				Initial: 100 * time.Millisecond,
				Max:     5 * time.Second,
				Factor:  2,
			},
		},
		Server: ServerConfig{
			Enabled:         false,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
		Ledger: LedgerConfig{
			Enabled:    false,
			Backend:    "file",
			Role:       "reactor",
			Path:       "./data/ledger.log",
			SyncWrites: true,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				DB:        0,
				KeyPrefix: "reactor:ledger",
			},
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}
