package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jgutierrezgil/guardiapass/internal/metrics"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/api/v1/passwords/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/passwords/{id}", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a1", "b2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/passwords/"+id, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests counted under route pattern = %v, want 2", got)
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/health", okHandler().ServeHTTP)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("unmatched requests counted = %v, want 1", got)
	}
}

func TestRouteLabel_NoRouteContext(t *testing.T) {
	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/x", nil)); got != unmatchedRoute {
		t.Errorf("routeLabel() = %q, want %q", got, unmatchedRoute)
	}
}

func TestRateLimit_CountsRejections(t *testing.T) {
	counter := metrics.RateLimitRejections.WithLabelValues("limited")
	before := testutil.ToFloat64(counter)

	handler := RateLimit(NewMemoryRateLimiter(1, time.Hour))(okHandler())
	for range 3 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
}
