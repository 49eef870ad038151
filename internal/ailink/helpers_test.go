package ailink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
	"github.com/forgeiq/forgeiq/internal/clock"
)

var testEpoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type step struct {
	text string
	err  error
}

// scriptedDriver replays steps in order; the last step repeats.
type scriptedDriver struct {
	mu       sync.Mutex
	steps    []step
	requests []*driver.Request
}

func (d *scriptedDriver) Name() string { return "scripted" }

func (d *scriptedDriver) Generate(_ context.Context, req *driver.Request) (*driver.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.requests)
	d.requests = append(d.requests, req)
	if idx >= len(d.steps) {
		idx = len(d.steps) - 1
	}
	s := d.steps[idx]
	if s.err != nil {
		return nil, s.err
	}
	return &driver.Response{Content: textBlocks(s.text), FinishReason: "stop"}, nil
}

func (d *scriptedDriver) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *scriptedDriver) lastRequest() *driver.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		return nil
	}
	return d.requests[len(d.requests)-1]
}

func providerConfig(creds ...CredentialConfig) Config {
	if len(creds) == 0 {
		creds = []CredentialConfig{{Enabled: true, Label: "main", APIKey: "test-key"}}
	}
	return Config{
		DefaultProvider: "primary",
		Providers: map[string]ProviderInstanceConfig{
			"primary": {Enabled: true, AIProvider: "gemini", Credentials: creds},
		},
	}
}

func registryWith(cfg Config, drv driver.Driver) *Registry {
	reg := NewRegistry(cfg)
	reg.Getenv = func(string) string { return "" }
	reg.Factory = func(string, ProviderInstanceConfig, string, Config) (driver.Driver, error) {
		return drv, nil
	}
	return reg
}

type fixture struct {
	clock   *clock.Manual
	ctrl    *admission.Controller
	drv     *scriptedDriver
	invoker *Invoker
}

func newFixture(t *testing.T, quota admission.Quota, steps ...step) *fixture {
	t.Helper()
	clk := clock.NewManual(testEpoch)
	ctrl, err := admission.New(quota, admission.WithClock(clk))
	require.NoError(t, err)

	drv := &scriptedDriver{steps: steps}
	return &fixture{
		clock: clk,
		ctrl:  ctrl,
		drv:   drv,
		invoker: &Invoker{
			Providers: registryWith(providerConfig(), drv),
			Admission: ctrl,
			Clock:     clk,
		},
	}
}
