package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/observability"
)

func useFakeCollector(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	previous := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = previous })
	return collector
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsPerRequestSeries(t *testing.T) {
	collector := useFakeCollector(t)

	r := chi.NewRouter()
	r.Use(RequestMetrics)
	r.Post("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	rec := serve(r, http.MethodPost, "/v1/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, name := range []string{
		"http_requests_total",
		"http_request_duration_ms",
		"http_request_size_bytes",
		"http_response_size_bytes",
	} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, name)
	}
	assert.Zero(t, collector.CountMetricsByName("http_errors_total"))
}

func TestRequestMetricsCountsErrors(t *testing.T) {
	collector := useFakeCollector(t)

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	rec := serve(h, http.MethodPost, "/v1/generate", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Greater(t, collector.CountMetricsByName("http_errors_total"), 0)
}

func TestRequestMetricsWithoutTelemetry(t *testing.T) {
	previous := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = previous })

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "/health", "").Code)
}

func TestGetEndpointPatternFallbacks(t *testing.T) {
	cases := map[string]string{
		"/health":                    "/health/*",
		"/health/ready":              "/health/*",
		"/version":                   "/version",
		"/metrics":                   "/metrics",
		"/":                          "/",
		"/v1/analyze/strategic-plan": "/v1/*",
		"/wp-admin/setup.php":        "/unknown",
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, getEndpointPattern(httptest.NewRequest(http.MethodGet, path, nil)))
		})
	}
}

func TestGetEndpointPatternUsesChiRoute(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Post("/v1/analyze/{slug}", func(w http.ResponseWriter, r *http.Request) {
		pattern = getEndpointPattern(r)
	})

	serve(r, http.MethodPost, "/v1/analyze/decision-analysis", "")
	assert.Equal(t, "/v1/analyze/{slug}", pattern)
}

func TestRequestIDHeaderHandling(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "line-4-batch-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "line-4-batch-7", seen)
	assert.Equal(t, "line-4-batch-7", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "has spaces\tand tabs")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "has spaces\tand tabs", seen)
	assert.Len(t, seen, 36, "replaced with a UUID")
}
