package ailink

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

func textBlocks(text string) []content.ContentBlock {
	return []content.ContentBlock{{Type: content.ContentTypeText, Text: text}}
}

func unavailable() step {
	return step{err: &driver.ProviderError{Provider: "scripted", StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
}

func userTurns() []content.Message {
	return []content.Message{content.User("hello")}
}

func requireKind(t *testing.T, err error, kind Kind) *InvokeError {
	t.Helper()
	var ie *InvokeError
	require.True(t, errors.As(err, &ie), "expected InvokeError, got %v", err)
	require.Equal(t, kind, ie.Kind, ie.Error())
	return ie
}

func TestGenerateBacksOffOnScheduleUntilSuccess(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), unavailable(), unavailable(), unavailable(), unavailable(), step{text: "done"})

	res, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), MaxAttempts: 5})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, "primary", res.Provider)

	assert.Equal(t, []time.Duration{7 * time.Second, 9 * time.Second, 13 * time.Second, 21 * time.Second}, f.clock.Sleeps())
	assert.Equal(t, 5, f.drv.calls())
	assert.Equal(t, 5, f.ctrl.Usage().Used)
}

func TestGenerateHonoursRetryAfter(t *testing.T) {
	limited := step{err: &driver.ProviderError{StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}}
	f := newFixture(t, admission.DefaultQuota(), limited, step{text: "ok"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, f.clock.Sleeps())
}

func TestGenerateCapsRetryAfterAtSchedule(t *testing.T) {
	limited := step{err: &driver.ProviderError{StatusCode: http.StatusTooManyRequests, RetryAfter: 24 * time.Hour}}
	f := newFixture(t, admission.DefaultQuota(), limited, step{text: "ok"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)
	// Largest delay of the default five-attempt schedule.
	assert.Equal(t, []time.Duration{37 * time.Second}, f.clock.Sleeps())
}

func TestGenerateRejectsAttemptBudgetAboveConfigured(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), step{text: "unused"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), MaxAttempts: 1_000_000})
	ie := requireKind(t, err, KindPermanentFailure)
	assert.True(t, ie.Validation)
	assert.Contains(t, ie.Message, "exceeds the configured limit of 5")

	_, err = f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), MaxAttempts: -1})
	requireKind(t, err, KindPermanentFailure)

	assert.Equal(t, 0, f.drv.calls())
	assert.Equal(t, 0, f.ctrl.Usage().Used)
}

func TestGeneratePermanentFailureDoesNotRetry(t *testing.T) {
	rejected := step{err: &driver.ProviderError{StatusCode: http.StatusBadRequest, Message: "invalid argument"}}
	f := newFixture(t, admission.DefaultQuota(), rejected, step{text: "never"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	ie := requireKind(t, err, KindPermanentFailure)
	assert.False(t, ie.Validation)
	assert.Equal(t, 1, ie.Attempts)
	assert.Contains(t, ie.Message, "invalid argument")

	assert.Empty(t, f.clock.Sleeps())
	assert.Equal(t, 1, f.drv.calls())
}

func TestGenerateRetriesExhausted(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), unavailable())

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), MaxAttempts: 3})
	ie := requireKind(t, err, KindRetriesExhausted)
	assert.Equal(t, 3, ie.Attempts)
	assert.Equal(t, 3, f.drv.calls())
	assert.Equal(t, []time.Duration{7 * time.Second, 9 * time.Second}, f.clock.Sleeps())
}

func TestGenerateUnconfiguredMakesNoCallsAndNoAdmission(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), step{text: "hi"})
	reg := registryWith(providerConfig(CredentialConfig{Enabled: true, Label: "env", APIKeyEnv: "FORGEIQ_TEST_MISSING_KEY"}), f.drv)
	f.invoker.Providers = reg

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	requireKind(t, err, KindUnconfigured)
	assert.Equal(t, 0, f.drv.calls())
	assert.Equal(t, 0, f.ctrl.Usage().Used)
	assert.False(t, reg.Configured(""))

	require.NoError(t, reg.SetCredential("", "late-key"))
	assert.True(t, reg.Configured(""))

	res, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
	assert.Equal(t, 1, f.ctrl.Usage().Used)
}

func TestGenerateValidationFailsBeforeAdmission(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), step{text: "unused"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{})
	ie := requireKind(t, err, KindPermanentFailure)
	assert.True(t, ie.Validation)

	bad := 3.5
	_, err = f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), Temperature: &bad})
	requireKind(t, err, KindPermanentFailure)

	assert.Equal(t, 0, f.drv.calls())
	assert.Equal(t, 0, f.ctrl.Usage().Used)
}

func TestGenerateRateLimitTimeoutIsTerminal(t *testing.T) {
	f := newFixture(t, admission.Quota{MaxRequests: 1, Window: time.Minute}, step{text: "first"})
	f.invoker.AdmissionTimeout = 10 * time.Second

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)

	_, err = f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	ie := requireKind(t, err, KindRateLimitTimeout)
	assert.ErrorIs(t, ie, admission.ErrAdmissionTimeout)
	assert.Equal(t, 1, f.drv.calls())
	assert.Empty(t, f.clock.Sleeps())
}

func TestGenerateWaitsForAdmissionSlot(t *testing.T) {
	f := newFixture(t, admission.Quota{MaxRequests: 1, Window: 5 * time.Second}, step{text: "ok"})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)

	_, err = f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	require.NoError(t, err)
	assert.Equal(t, 2, f.drv.calls())
	assert.Len(t, f.clock.Sleeps(), 5)
}

func TestGenerateCanceledDuringBackoff(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), unavailable())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.clock.OnSleep(func(time.Duration) { cancel() })

	_, err := f.invoker.Generate(ctx, GenerateRequest{Turns: userTurns()})
	ie := requireKind(t, err, KindCanceled)
	assert.ErrorIs(t, ie, context.Canceled)
	assert.Equal(t, 1, f.drv.calls())
}

func TestGenerateEmptyContentIsPermanent(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), step{text: "  "})

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns()})
	ie := requireKind(t, err, KindPermanentFailure)
	assert.ErrorIs(t, ie, driver.ErrEmptyResponse)
	assert.Equal(t, 1, f.drv.calls())
}

func TestGeneratePassesSamplingSettings(t *testing.T) {
	f := newFixture(t, admission.DefaultQuota(), step{text: "ok"})
	temp := 0.3
	max := 128

	_, err := f.invoker.Generate(context.Background(), GenerateRequest{Turns: userTurns(), Temperature: &temp, MaxTokens: &max, Model: "gemini-test"})
	require.NoError(t, err)

	req := f.drv.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gemini-test", req.Model)
	assert.Equal(t, 0.3, *req.Temperature)
	assert.Equal(t, 128, *req.MaxTokens)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindCanceled, KindOf(&InvokeError{Kind: KindCanceled}))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{7, 9, 13, 21, 37}
	for attempt, secs := range want {
		assert.Equal(t, secs*time.Second, b.Delay(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, b.Delay(0), b.Delay(-1))
}

func TestBackoffWait(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 7*time.Second, b.Wait(0, 4, 0))
	assert.Equal(t, 30*time.Second, b.Wait(0, 4, 30*time.Second))
	assert.Equal(t, 37*time.Second, b.Wait(0, 4, time.Hour))
	assert.Equal(t, 13*time.Second, b.Wait(2, 4, 3*time.Second))
	assert.Equal(t, 9*time.Second, b.Wait(0, 1, time.Minute))
}
