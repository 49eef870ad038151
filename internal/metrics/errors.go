package metrics

import (
	"strconv"

	"github.com/forgeiq/forgeiq/internal/observability"
)

const (
	ErrorsTotal = "errors_total"
	PanicsTotal = "panics_total"
)

// RecordError counts an error envelope written to a client. Labels are the
// envelope code, the HTTP status and the request method; raw paths never
// become label values.
func RecordError(code string, status int, method string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotal, 1, map[string]string{
		"error_code":  code,
		"http_status": strconv.Itoa(status),
		"method":      method,
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotal, 1, nil)
	}
}
