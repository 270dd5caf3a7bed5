package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openintent-ai/openintent/pkg/telemetry"
)

// metricsCapture records the status code an inner handler wrote, the
// same pattern responseCapture uses for idempotency replay.
type metricsCapture struct {
	http.ResponseWriter
	statusCode int
}

func (c *metricsCapture) WriteHeader(code int) {
	c.statusCode = code
	c.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records openintent_http_requests_total and
// openintent_http_request_duration_seconds for every request it wraps,
// labeled by the route's mux pattern rather than the raw path so
// per-intent-id traffic aggregates into one series. Requests with no
// matched route (the router's NotFoundHandler) are labeled "unmatched".
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		capture := &metricsCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(capture, r)

		route := "unmatched"
		if m := mux.CurrentRoute(r); m != nil {
			if tmpl, err := m.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(capture.statusCode)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
