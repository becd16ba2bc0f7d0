// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/api/handlers"
	"github.com/goclaw/reactor/pkg/api/middleware"
	"github.com/goclaw/reactor/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Runs serves the workflow catalog and starts runs
	Runs *handlers.RunHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams lifecycle envelopes over websocket
	Events *handlers.EventsHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the Prometheus exposition on /metrics
	MetricsHandler http.Handler

	// RateLimiter guards run submission. Built from the server config when nil.
	RateLimiter *middleware.RateLimiter
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg config.ServerConfig, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))

	limiter := h.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	RegisterRoutes(r, h, limiter)
	return r
}

// RegisterRoutes registers all API routes. Only run submission is rate
// limited.
func RegisterRoutes(r chi.Router, h *Handlers, limiter *middleware.RateLimiter) {
	if h.Runs != nil {
		r.Get("/workflows", h.Runs.ListWorkflows)
		r.Get("/workflows/{workflow}", h.Runs.GetWorkflow)
		r.With(middleware.RateLimit(limiter)).Post("/runs/{workflow}", h.Runs.StartRun)
	}

	if h.Events != nil {
		r.Get("/events", h.Events.ServeHTTP)
	}

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/version", h.Health.Version)
	}

	if h.MetricsHandler != nil {
		r.Handle("/metrics", h.MetricsHandler)
	}
}
