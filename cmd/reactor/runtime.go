package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/api"
	"github.com/goclaw/reactor/pkg/api/handlers"
	"github.com/goclaw/reactor/pkg/api/middleware"
	"github.com/goclaw/reactor/pkg/eventbus"
	"github.com/goclaw/reactor/pkg/ledger"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/metrics"
	"github.com/goclaw/reactor/pkg/observe"
	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/telemetry/tracing"
	"github.com/goclaw/reactor/pkg/version"
	"github.com/goclaw/reactor/pkg/workflow"
)

// runtime owns every long-lived component of the process.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *metrics.Manager
	bus     *eventbus.MemoryBus
	ledger  ledger.Ledger
	catalog *workflow.Catalog
	runner  *runner
	limiter *middleware.RateLimiter

	closers []func(context.Context) error
}

func newRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	defaults := metrics.DefaultConfig()
	rt.metrics = metrics.NewManager(metrics.Config{
		Enabled:             cfg.Metrics.Enabled,
		Port:                cfg.Metrics.Port,
		Path:                cfg.Metrics.Path,
		RunDurationBuckets:  defaults.RunDurationBuckets,
		StepDurationBuckets: defaults.StepDurationBuckets,
		HTTPDurationBuckets: defaults.HTTPDurationBuckets,
	})

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.closers = append(rt.closers, shutdownTracing)

	observers := []reactor.Observer{
		observe.NewLogging(log),
		observe.NewTelemetry(rt.metrics),
	}

	rt.bus = eventbus.NewMemoryBus()
	rt.closers = append(rt.closers, func(context.Context) error { return rt.bus.Close() })
	if cfg.Events.Enabled {
		publisher, err := eventbus.NewPublisher(eventSource(cfg), rt.bus, eventbus.DefaultRetryConfig(), rt.metrics)
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		observers = append(observers, eventbus.NewBusObserver(publisher, log))
	}

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		rt.ledger = l
		rt.closers = append(rt.closers, func(context.Context) error { return l.Close() })
		observers = append(observers, ledger.NewObserver(l, cfg.Ledger.Role,
			ledger.WithObserverLogger(log),
			ledger.WithObserverMetrics(rt.metrics),
		))
		log.Info("Ledger attached", "backend", cfg.Ledger.Backend, "role", cfg.Ledger.Role)
	}

	rt.catalog, err = workflow.LoadCatalog(cfg.Workflows, workflow.DefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}
	log.Info("Workflows loaded", "count", rt.catalog.Len(), "names", rt.catalog.Names())

	exec := reactor.NewExecutor(
		reactor.WithLogger(log),
		reactor.WithDefaultBackoff(reactor.BackoffPolicy{
			Initial: cfg.Executor.Backoff.Initial,
			Max:     cfg.Executor.Backoff.Max,
			Factor:  cfg.Executor.Backoff.Factor,
		}),
		reactor.WithMiddleware(observers...),
	)
	rt.runner = newRunner(exec, config.ExtractHotReloadable(cfg))
	rt.limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	return rt, nil
}

// applyReload pushes hot-reloadable settings into the live components.
func (rt *runtime) applyReload(next *config.Config) {
	hot := config.ExtractHotReloadable(next)
	prev := rt.runner.Settings()
	if !hot.Changed(prev) {
		return
	}
	if hot.LogLevel != prev.LogLevel {
		rt.log.SetLevel(logger.ParseLevel(hot.LogLevel))
	}
	if hot.RateLimit != prev.RateLimit || hot.RateBurst != prev.RateBurst {
		rt.limiter.SetLimit(hot.RateLimit, hot.RateBurst)
	}
	rt.runner.SetSettings(hot)
	rt.log.Info("Applied configuration reload",
		"log_level", hot.LogLevel,
		"max_concurrency", hot.MaxConcurrency,
		"run_timeout", hot.RunTimeout,
		"step_timeout", hot.DefaultStepTimeout,
		"rate_limit", hot.RateLimit,
	)
}

// serve runs the HTTP API, the metrics endpoint, the event stream and the
// config watcher until ctx is done or the server fails. Reloads of
// configPath re-apply overrides.
func (rt *runtime) serve(ctx context.Context, configPath string, overrides map[string]interface{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	if rt.metrics.Enabled() && rt.cfg.Metrics.Port != rt.cfg.Server.Port {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.log.Info("Starting metrics server", "port", rt.cfg.Metrics.Port, "path", rt.cfg.Metrics.Path)
			if err := rt.metrics.StartServer(ctx, rt.cfg.Metrics.Port, rt.cfg.Metrics.Path); err != nil {
				rt.log.Error("Metrics server error", "error", err)
			}
		}()
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath,
			config.WithWatcherLogger(rt.log),
			config.WithOverrides(overrides),
		)
		if err != nil {
			rt.log.Warn("Config hot reload disabled", "error", err)
		} else {
			watcher.OnChange(rt.applyReload)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					rt.log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	events := handlers.NewEventsHandler(rt.bus, rt.log, handlers.EventsConfig{BusBuffer: rt.cfg.Events.BufferSize})
	defer events.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := events.Run(ctx); err != nil {
			rt.log.Warn("Event stream stopped", "error", err)
		}
	}()

	h := &api.Handlers{
		Runs:        handlers.NewRunHandler(rt.catalog, rt.runner, rt.log),
		Health:      handlers.NewHealthHandler(rt.catalog),
		Events:      events,
		RateLimiter: rt.limiter,
	}
	if rt.metrics.Enabled() {
		h.Metrics = rt.metrics
		h.MetricsHandler = rt.metrics.Handler()
	}
	server := api.NewHTTPServer(rt.cfg.Server, rt.log, h)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	rt.log.Info("Reactor is running", "address", rt.cfg.Server.Address(), "workflows", rt.catalog.Len())

	var serveErr error
	select {
	case <-ctx.Done():
		rt.log.Info("Shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), rt.shutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	cancel()
	return serveErr
}

func (rt *runtime) shutdownTimeout() time.Duration {
	if rt.cfg.Server.ShutdownTimeout > 0 {
		return rt.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases components in reverse order of creation.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.log.Warn("Error during shutdown", "error", err)
		}
	}
	rt.closers = nil
}

func eventSource(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return cfg.App.Name
	}
	return cfg.App.Name + "@" + host
}

// runner applies the current hot-reloadable run defaults to every run.
type runner struct {
	exec     *reactor.Executor
	settings atomic.Pointer[config.HotReloadableConfig]
}

func newRunner(exec *reactor.Executor, settings config.HotReloadableConfig) *runner {
	r := &runner{exec: exec}
	r.SetSettings(settings)
	return r
}

// Settings returns the run defaults in effect.
func (r *runner) Settings() config.HotReloadableConfig {
	return *r.settings.Load()
}

// SetSettings replaces the run defaults. Runs already started keep theirs.
func (r *runner) SetSettings(s config.HotReloadableConfig) {
	r.settings.Store(&s)
}

// Execute runs wf with the current defaults. Explicit options win.
func (r *runner) Execute(ctx context.Context, wf *reactor.Workflow, inputs map[string]any, opts ...reactor.RunOption) *reactor.ExecutionResult {
	s := r.Settings()
	base := []reactor.RunOption{
		reactor.MaxConcurrency(s.MaxConcurrency),
		reactor.RunTimeout(s.RunTimeout),
		reactor.StepTimeout(s.DefaultStepTimeout),
	}
	return r.exec.Execute(ctx, wf, inputs, append(base, opts...)...)
}
