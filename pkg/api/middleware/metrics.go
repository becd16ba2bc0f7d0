package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder records one finished HTTP request.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
}

// Metrics records request count and latency labelled by route pattern.
// The metrics endpoint itself is not recorded.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newStatusRecorder(w)
			defer func() {
				if p := recover(); p != nil {
					recorder.RecordHTTPRequest(r.Method, routeLabel(r), "500", time.Since(start))
					panic(p)
				}
			}()

			next.ServeHTTP(rec, r)
			recorder.RecordHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(rec.status), time.Since(start))
		})
	}
}

// routeLabel prefers the chi route pattern so path parameters do not
// explode label cardinality.
func routeLabel(r *http.Request) string {
	if pattern := routePattern(r); pattern != r.URL.Path {
		return pattern
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces UUIDs and numeric segments with :id.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = ":id"
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && part != "" {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
