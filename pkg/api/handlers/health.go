// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/goclaw/reactor/pkg/api/response"
	"github.com/goclaw/reactor/pkg/version"
	"github.com/goclaw/reactor/pkg/workflow"
)

// HealthHandler handles health and version endpoints.
type HealthHandler struct {
	catalog *workflow.Catalog
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(catalog *workflow.Catalog) *HealthHandler {
	return &HealthHandler{
		catalog: catalog,
		started: time.Now(),
	}
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string  `json:"status"`
	Workflows int     `json:"workflows"`
	UptimeSec float64 `json:"uptime_seconds"`
}

// Health handles the /health endpoint (liveness check).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, HealthStatus{
		Status:    "ok",
		Workflows: h.catalog.Len(),
		UptimeSec: time.Since(h.started).Seconds(),
	})
}

// Ready handles the /ready endpoint. The server is ready once at least
// one workflow is loaded.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.catalog.Len() > 0 {
		response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	response.JSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
}

// Version handles the /version endpoint.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, version.Get())
}
