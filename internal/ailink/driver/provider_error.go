package driver

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// RawResponse holds the provider response body and must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RetryAfter  time.Duration
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// MaxRetryAfter bounds any parsed Retry-After hint.
const MaxRetryAfter = time.Hour

// ParseRetryAfter reads a Retry-After header value in either delta-seconds or
// HTTP-date form. Unparseable or past values yield 0; values beyond
// MaxRetryAfter yield MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return scaleRetryAfter(secs, time.Second)
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, MaxRetryAfter)
		}
	}
	return 0
}

// scaleRetryAfter converts v units to a duration, clamping before the
// conversion so huge inputs cannot overflow.
func scaleRetryAfter(v float64, unit time.Duration) time.Duration {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(MaxRetryAfter/unit):
		return MaxRetryAfter
	}
	return time.Duration(v * float64(unit))
}

// RetryAfterFromHeader extracts Retry-After (or retry-after-ms) from h.
func RetryAfterFromHeader(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	if ms := strings.TrimSpace(h.Get("Retry-After-Ms")); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return scaleRetryAfter(v, time.Millisecond)
		}
	}
	return ParseRetryAfter(h.Get("Retry-After"), now)
}
