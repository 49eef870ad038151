// Package admission implements a process-wide sliding-window admission gate for
// outbound model calls.
//
// A Controller records the start time of every admitted call and refuses new
// admissions while the trailing window already holds Quota.MaxRequests starts.
// Unlike a fixed-reset counter this never lets a window straddling a reset
// boundary see twice the quota.
package admission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/forgeiq/forgeiq/internal/clock"
)

const (
	// DefaultMaxRequests leaves headroom below the 30/min upstream free-tier quota.
	DefaultMaxRequests = 25
	DefaultWindow      = 60 * time.Second

	// maxSleepStep bounds each wait increment so cancellation is observed promptly.
	maxSleepStep = time.Second
)

// ErrAdmissionTimeout is returned by Acquire when no slot frees up within the timeout.
var ErrAdmissionTimeout = errors.New("admission timeout: rate limit window is full")

// Quota is the admission budget: at most MaxRequests starts per Window.
type Quota struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultQuota returns 25 requests per 60 seconds.
func DefaultQuota() Quota {
	return Quota{MaxRequests: DefaultMaxRequests, Window: DefaultWindow}
}

// Validate reports whether the quota is usable.
func (q Quota) Validate() error {
	if q.MaxRequests <= 0 {
		return fmt.Errorf("admission quota: max requests must be positive, got %d", q.MaxRequests)
	}
	if q.Window <= 0 {
		return fmt.Errorf("admission quota: window must be positive, got %s", q.Window)
	}
	return nil
}

// Usage is a read-only view of the current window.
type Usage struct {
	Used          int     `json:"used"`
	Limit         int     `json:"limit"`
	Available     int     `json:"available"`
	WindowSeconds float64 `json:"window_seconds"`
	WaitSeconds   float64 `json:"wait_seconds"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock substitutes the time source.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		if c != nil {
			ctrl.clock = c
		}
	}
}

// Controller is the shared admission gate. The zero value is not usable; build
// one with New and share it by pointer.
type Controller struct {
	quota Quota
	clock clock.Clock

	mu sync.Mutex
	// records holds admitted start times, oldest first.
	records []time.Time
}

// New builds a controller for quota.
func New(quota Quota, opts ...Option) (*Controller, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		quota:   quota,
		clock:   clock.System{},
		records: make([]time.Time, 0, quota.MaxRequests),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Quota returns the configured budget.
func (c *Controller) Quota() Quota {
	return c.quota
}

// CurrentWaitTime returns how long until a new call could be admitted. Zero
// means an Acquire at this instant would succeed.
func (c *Controller) CurrentWaitTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitLocked(c.clock.Now())
}

// TryAcquire admits and records a call if a slot is free right now.
func (c *Controller) TryAcquire() bool {
	_, ok := c.tryRecord()
	return ok
}

// Acquire blocks until a slot is admitted, the timeout would be exceeded, or
// ctx is done. It fails early with ErrAdmissionTimeout as soon as the known
// wait cannot fit in the remaining budget. A non-positive timeout admits only
// if a slot is free immediately.
//
// The lock is held only for the check-and-record step, never while sleeping.
func (c *Controller) Acquire(ctx context.Context, timeout time.Duration) error {
	start := c.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := c.tryRecord()
		if ok {
			return nil
		}

		elapsed := c.clock.Now().Sub(start)
		if timeout <= 0 || elapsed+wait > timeout {
			return ErrAdmissionTimeout
		}

		step := wait
		if step > maxSleepStep {
			step = maxSleepStep
		}
		if err := c.clock.Sleep(ctx, step); err != nil {
			return err
		}
	}
}

// Usage trims expired records and reports the current window.
func (c *Controller) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	wait := c.waitLocked(now)
	used := len(c.records)
	return Usage{
		Used:          used,
		Limit:         c.quota.MaxRequests,
		Available:     c.quota.MaxRequests - used,
		WindowSeconds: c.quota.Window.Seconds(),
		WaitSeconds:   roundSeconds(wait),
	}
}

// tryRecord is the single decide-and-record critical section. On refusal it
// returns the positive wait until the oldest record expires.
func (c *Controller) tryRecord() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	wait := c.waitLocked(now)
	if wait > 0 {
		return wait, false
	}
	c.records = append(c.records, now)
	return 0, true
}

// waitLocked trims the head of the window and computes the wait. Callers hold mu.
func (c *Controller) waitLocked(now time.Time) time.Duration {
	c.trimLocked(now)
	if len(c.records) < c.quota.MaxRequests {
		return 0
	}
	wait := c.quota.Window - now.Sub(c.records[0])
	if wait < 0 {
		return 0
	}
	return wait
}

// trimLocked drops records at or before now-window. Records are appended in
// non-decreasing order so only the head needs inspecting.
func (c *Controller) trimLocked(now time.Time) {
	cutoff := now.Add(-c.quota.Window)
	drop := 0
	for drop < len(c.records) && !c.records[drop].After(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}
	n := copy(c.records, c.records[drop:])
	c.records = c.records[:n]
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
