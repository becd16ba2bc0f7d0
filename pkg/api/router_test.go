package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/api/handlers"
	"github.com/goclaw/reactor/pkg/eventbus"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/metrics"
	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/workflow"
)

const greetYAML = `
name: greet
inputs: [who]
steps:
  - name: hello
    type: script
    args: {who: "input:who"}
    config: {code: "return 'hello ' + who;"}
return: hello
`

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
}

func createTestHandlers(t *testing.T) (*Handlers, *metrics.Manager) {
	t.Helper()
	log := testLogger()

	def, err := workflow.Parse([]byte(greetYAML), "greet.yaml")
	require.NoError(t, err)
	catalog := workflow.NewCatalog()
	require.NoError(t, catalog.Add(def, workflow.DefaultRegistry()))

	m := metrics.NewManager(metrics.DefaultConfig())
	events := handlers.NewEventsHandler(eventbus.NewMemoryBus(), log, handlers.EventsConfig{})
	t.Cleanup(events.Close)

	return &Handlers{
		Runs:           handlers.NewRunHandler(catalog, reactor.NewExecutor(reactor.WithLogger(log)), log),
		Health:         handlers.NewHealthHandler(catalog),
		Events:         events,
		Metrics:        m,
		MetricsHandler: m.Handler(),
	}, m
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.4:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_Routes(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.ServerConfig{}, testLogger(), h)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodGet, "/workflows", "", http.StatusOK},
		{http.MethodGet, "/workflows/greet", "", http.StatusOK},
		{http.MethodGet, "/workflows/nope", "", http.StatusNotFound},
		{http.MethodPost, "/runs/greet", `{"inputs":{"who":"reactor"}}`, http.StatusOK},
		{http.MethodGet, "/events", "", http.StatusBadRequest},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestNewRouter_RunReturnsScriptValue(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.ServerConfig{}, testLogger(), h)

	rec := serve(router, http.MethodPost, "/runs/greet", `{"inputs":{"who":"reactor"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"return_value":"hello reactor"`)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestNewRouter_RateLimitsRunsOnly(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.ServerConfig{RateLimit: 0.01, RateBurst: 1}, testLogger(), h)

	body := `{"inputs":{"who":"a"}}`
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/runs/greet", body).Code)

	limited := serve(router, http.MethodPost, "/runs/greet", body)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/workflows", "").Code)
	}
}

func TestNewRouter_RecordsRouteMetrics(t *testing.T) {
	h, _ := createTestHandlers(t)
	router := NewRouter(config.ServerConfig{}, testLogger(), h)

	serve(router, http.MethodPost, "/runs/greet", `{"inputs":{"who":"a"}}`)
	serve(router, http.MethodGet, "/workflows/greet", "")

	rec := serve(router, http.MethodGet, "/metrics", "")
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	exposition := string(body)
	assert.Contains(t, exposition, `reactor_http_requests_total{method="POST",path="/runs/{workflow}",status="200"} 1`)
	assert.Contains(t, exposition, `reactor_http_requests_total{method="GET",path="/workflows/{workflow}",status="200"} 1`)
	assert.NotContains(t, exposition, `path="/metrics"`)
}
