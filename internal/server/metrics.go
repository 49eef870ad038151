package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/observability"
)

const defaultPrometheusContentType = "text/plain; version=0.0.4"

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// metricsFallbackPort is used until the exporter reports its bound port.
var metricsFallbackPort = 9090

// skipProxyHeader reports whether an upstream header must not be forwarded.
func skipProxyHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade":
		return true
	}
	return false
}

func exporterURL() string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = metricsFallbackPort
	}
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/metrics"
}

func metricsFailure(code, message, target string, cause error) error {
	env := errors.NewErrorEnvelope(code, message)
	if cause == nil {
		return env
	}
	withCtx, err := env.WithContext(map[string]interface{}{
		"metrics_url":    target,
		"original_error": cause.Error(),
	})
	if err != nil {
		return env
	}
	return withCtx
}

// MetricsHandler serves the Prometheus exporter's scrape output on the API
// port.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, metricsFailure("SERVICE_UNAVAILABLE", "Metrics exporter not initialized", "", nil))
		return
	}

	target := exporterURL()
	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		HandleError(w, r, metricsFailure("INTERNAL_ERROR", "Unable to construct metrics request", target, err))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		upstream.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(upstream)
	if err != nil {
		HandleError(w, r, metricsFailure("SERVICE_UNAVAILABLE", "Prometheus exporter unavailable", target, err))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	for key, values := range resp.Header {
		if skipProxyHeader(key) {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", defaultPrometheusContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to copy metrics response", zap.Error(err))
	}
}
