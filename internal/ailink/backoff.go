package ailink

import "time"

const (
	DefaultBackoffBase   = 2 * time.Second
	DefaultBackoffOffset = 5 * time.Second
	DefaultMaxAttempts   = 5

	// Attempts above this are clamped so the delay cannot overflow.
	maxBackoffExponent = 16
)

// Backoff computes the delay before a retry: Base·2^attempt + Offset.
type Backoff struct {
	Base   time.Duration
	Offset time.Duration
}

// DefaultBackoff yields 7, 9, 13, 21, 37 seconds for attempts 0..4.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Offset: DefaultBackoffOffset}
}

// Delay returns the wait before the attempt after the given one.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	return b.Base*time.Duration(1<<uint(attempt)) + b.Offset
}

// Wait is the sleep after a transient failure on attempt. A server-requested
// retryAfter raises it, but never past the schedule's delay for lastAttempt.
func (b Backoff) Wait(attempt, lastAttempt int, retryAfter time.Duration) time.Duration {
	delay := b.Delay(attempt)
	if retryAfter <= delay {
		return delay
	}
	return min(retryAfter, max(b.Delay(lastAttempt), delay))
}
