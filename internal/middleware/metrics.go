package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jgutierrezgil/guardiapass/internal/metrics"
)

// unmatchedRoute labels requests no route matched, so probes for random
// paths do not each create a series.
const unmatchedRoute = "unmatched"

// routeLabel returns the chi route pattern, e.g. /api/v1/passwords/{id}.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

// Metrics returns middleware that records Prometheus metrics for each
// request, labeled by route pattern rather than raw path so record IDs
// stay out of label values.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
