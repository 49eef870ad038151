package metrics

import (
	"strconv"
	"time"

	"github.com/forgeiq/forgeiq/internal/observability"
)

// Metric names, Prometheus style. The exporter namespace is prepended.
const (
	AdmissionDecisionsTotal = "admission_decisions_total"
	AdmissionWaitDuration   = "admission_wait_duration_ms"
	AdmissionSlotsUsed      = "admission_slots_used"

	AttemptsTotal   = "ailink_attempts_total"
	BackoffSeconds  = "ailink_backoff_seconds"
	InvocationTotal = "ailink_invocations_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordAdmission records the outcome of one Acquire call and how long the
// caller was held.
func RecordAdmission(outcome string, waited time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(AdmissionDecisionsTotal, 1, map[string]string{"outcome": outcome})
	_ = observability.TelemetrySystem.Histogram(AdmissionWaitDuration, waited, map[string]string{"outcome": outcome})
}

// SetAdmissionSlotsUsed publishes the current number of records in the window.
func SetAdmissionSlotsUsed(used, limit int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(AdmissionSlotsUsed, float64(used), map[string]string{
		"limit": strconv.Itoa(limit),
	})
}

// RecordAttempt counts one remote call by provider and classified outcome.
func RecordAttempt(provider, outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(AttemptsTotal, 1, map[string]string{
		"provider": provider,
		"outcome":  outcome,
	})
}

// RecordBackoff records the sleep taken before a retry.
func RecordBackoff(provider string, delay time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(BackoffSeconds, delay.Seconds(), map[string]string{"provider": provider})
}

// RecordInvocation counts a finished generate call by its terminal result.
func RecordInvocation(provider, result string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(InvocationTotal, 1, map[string]string{
		"provider": provider,
		"result":   result,
	})
}

// RecordHealthCheck records one checker run. status is healthy, degraded,
// unhealthy or timeout.
func RecordHealthCheck(check, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{"check": check, "status": status})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": check})
}

// SetServerStartTime publishes the process start as a Unix timestamp.
func SetServerStartTime(t time.Time) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(t.Unix()), nil)
	}
}
