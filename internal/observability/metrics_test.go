package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/habana-express/market-engine/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestRegistryCarriesJobAndRuntimeCollectors(t *testing.T) {
	m := NewMetrics()
	jobs := jobmetrics.NewMetrics(m.Registerer())
	_ = jobs.Track("pricing:refresh").End(nil)

	body := scrape(t, m)
	for _, want := range []string{
		`market_jobs_total{job="pricing:refresh",status="success"} 1`,
		"go_goroutines",
		"market_http_requests_in_flight 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rc := chi.NewRouteContext()
	rc.RoutePatterns = append(rc.RoutePatterns, "/api/sales/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/sales/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status passthrough: got %d", rr.Code)
	}

	body := scrape(t, m)
	if !strings.Contains(body, `market_http_requests_total{code="418",method="GET",route="/api/sales/{id}"} 1`) {
		t.Fatalf("request not counted:\n%s", body)
	}
	if !strings.Contains(body, `market_http_request_duration_seconds_bucket{route="/api/sales/{id}"`) {
		t.Fatalf("latency histogram missing:\n%s", body)
	}
	if !strings.Contains(body, `market_http_response_size_bytes_sum{route="/api/sales/{id}"} 15`) {
		t.Fatalf("response size not observed:\n%s", body)
	}
}

func TestMiddlewareWithoutRouterUsesUnmatched(t *testing.T) {
	m := NewMetrics()
	m.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nowhere", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `market_http_requests_total{code="404",method="POST",route="unmatched"} 1`) {
		t.Fatalf("expected unmatched label:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
