// Package middleware provides the HTTP middleware chain of the API server.
package middleware

import (
	"net/http"
	"time"

	"github.com/goclaw/reactor/pkg/logger"
)

// Logger logs one record per request. Server errors are logged at warn.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", routePattern(r),
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", rec.size,
				"remote_addr", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			}
			if rec.status >= http.StatusInternalServerError {
				log.WarnContext(r.Context(), "http request", args...)
				return
			}
			log.InfoContext(r.Context(), "http request", args...)
		})
	}
}
