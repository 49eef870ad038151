package handlers

import (
	"context"
	"fmt"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/metrics"
)

// UsageReporter exposes the admission window.
type UsageReporter interface {
	Usage() admission.Usage
}

// AdmissionChecker reports degraded while the window is full.
type AdmissionChecker struct {
	Controller UsageReporter
}

func (c AdmissionChecker) CheckHealth(context.Context) error {
	if c.Controller == nil {
		return fmt.Errorf("admission controller not initialized")
	}
	u := c.Controller.Usage()
	metrics.SetAdmissionSlotsUsed(u.Used, u.Limit)
	if u.Available <= 0 {
		return fmt.Errorf("%w: %d/%d slots used, next in %.1fs", ErrDegraded, u.Used, u.Limit, u.WaitSeconds)
	}
	return nil
}

// ProviderReporter answers whether a role has a usable provider.
type ProviderReporter interface {
	Configured(role string) bool
}

// ProviderChecker reports degraded when the default provider has no
// credential. The server still answers, every model call fails Unconfigured.
type ProviderChecker struct {
	Providers ProviderReporter
}

func (c ProviderChecker) CheckHealth(context.Context) error {
	if c.Providers == nil || !c.Providers.Configured("") {
		return fmt.Errorf("%w: no configured provider", ErrDegraded)
	}
	return nil
}
