package ailink

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

// Outcome is the per-attempt classification of a remote call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// AttemptOutcome carries the classification plus any server-requested delay.
type AttemptOutcome struct {
	Kind       Outcome
	Status     int
	RetryAfter time.Duration
	Cause      error
}

// Substrings that mark a status-less error as worth retrying.
var transientMarkers = []string{
	"429",
	"quota",
	"rate limit",
	"resource exhausted",
	"resource has been exhausted",
	"too many requests",
	"unavailable",
	"timeout",
	"deadline exceeded",
	"connection reset",
}

// classify maps the result of one driver call onto an Outcome. The caller
// handles its own context cancellation before calling this.
func classify(resp *driver.Response, err error) AttemptOutcome {
	if err == nil {
		if strings.TrimSpace(resp.Text()) == "" {
			return AttemptOutcome{Kind: OutcomePermanent, Cause: driver.ErrEmptyResponse}
		}
		return AttemptOutcome{Kind: OutcomeSuccess}
	}

	if errors.Is(err, driver.ErrEmptyResponse) {
		return AttemptOutcome{Kind: OutcomePermanent, Cause: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil && perr.StatusCode > 0 {
		out := AttemptOutcome{Status: perr.StatusCode, Cause: err}
		switch status := perr.StatusCode; {
		case status == http.StatusTooManyRequests:
			out.Kind = OutcomeTransient
			out.RetryAfter = perr.RetryAfter
		case status >= 500:
			out.Kind = OutcomeTransient
			out.RetryAfter = perr.RetryAfter
		case status >= 400:
			out.Kind = OutcomePermanent
		default:
			out.Kind = heuristic(err)
		}
		return out
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return AttemptOutcome{Kind: OutcomeTransient, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return AttemptOutcome{Kind: OutcomeTransient, Cause: err}
	}

	return AttemptOutcome{Kind: heuristic(err), Cause: err}
}

func heuristic(err error) Outcome {
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return OutcomeTransient
		}
	}
	return OutcomePermanent
}
