package ailink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
	"github.com/forgeiq/forgeiq/internal/clock"
	"github.com/forgeiq/forgeiq/internal/metrics"
)

// DefaultAdmissionTimeout bounds how long one attempt waits for a local slot.
const DefaultAdmissionTimeout = 120 * time.Second

// Admitter grants permission to make one remote call.
type Admitter interface {
	Acquire(ctx context.Context, timeout time.Duration) error
}

// Invoker performs one logical generate operation with admission control and
// bounded retry. The zero value is not usable; Providers and Admission are
// required, the remaining fields have defaults.
type Invoker struct {
	Providers        *Registry
	Admission        Admitter
	Clock            clock.Clock
	Backoff          Backoff
	MaxAttempts      int
	AdmissionTimeout time.Duration
	Logger           *logging.Logger
}

// GenerateRequest is one generate call.
type GenerateRequest struct {
	Role        string
	Model       string
	Turns       []content.Message
	Temperature *float64
	MaxTokens   *int
	MaxAttempts int

	// Prompt, when set, contributes model hints and the trace slug.
	Prompt *prompt.Prompt
}

// GenerateResult is a successful generate call.
type GenerateResult struct {
	Text         string        `json:"text"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Attempts     int           `json:"attempts"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *driver.Usage `json:"usage,omitempty"`
}

// Generate runs the admission, call and classify loop. Every failure is an
// *InvokeError.
func (inv *Invoker) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if inv == nil || inv.Providers == nil {
		return nil, &InvokeError{Kind: KindUnconfigured, Message: "ailink provider registry not configured"}
	}

	resolved, err := inv.Providers.Resolve(req.Role, req.Prompt, req.Model)
	if err != nil {
		metrics.RecordInvocation("", string(KindUnconfigured))
		return nil, &InvokeError{Kind: KindUnconfigured, Message: err.Error(), Cause: err}
	}
	provider := resolved.ProviderID

	ceiling := inv.attemptCeiling()
	if err := validateRequest(req, ceiling); err != nil {
		metrics.RecordInvocation(provider, string(KindPermanentFailure))
		return nil, &InvokeError{Kind: KindPermanentFailure, Provider: provider, Message: err.Error(), Cause: err, Validation: true}
	}

	dreq := &driver.Request{
		Model:       resolved.Model,
		Messages:    req.Turns,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Prompt != nil {
		dreq.PromptSlug = req.Prompt.Config.Slug
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = ceiling
	}

	fail := func(kind Kind, attempts int, cause error) (*GenerateResult, error) {
		metrics.RecordInvocation(provider, string(kind))
		msg := kind.UserMessage()
		if cause != nil {
			msg = cause.Error()
		}
		return nil, &InvokeError{Kind: kind, Provider: provider, Attempts: attempts, Message: msg, Cause: cause}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(KindCanceled, attempt, err)
		}

		if err := inv.admit(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(KindCanceled, attempt, ctxErr)
			}
			return fail(KindRateLimitTimeout, attempt, err)
		}

		resp, err := resolved.Driver.Generate(ctx, dreq)
		if err != nil && ctx.Err() != nil {
			metrics.RecordAttempt(provider, "canceled")
			return fail(KindCanceled, attempt+1, ctx.Err())
		}

		outcome := classify(resp, err)
		metrics.RecordAttempt(provider, outcome.Kind.String())

		switch outcome.Kind {
		case OutcomeSuccess:
			metrics.RecordInvocation(provider, "success")
			return &GenerateResult{
				Text:         resp.Text(),
				Provider:     provider,
				Model:        resolved.Model,
				Attempts:     attempt + 1,
				FinishReason: resp.FinishReason,
				Usage:        resp.Usage,
			}, nil

		case OutcomePermanent:
			inv.logWarn("Provider rejected request",
				zap.String("provider", provider),
				zap.Int("attempt", attempt+1),
				zap.Int("status", outcome.Status),
				zap.Error(outcome.Cause))
			return fail(KindPermanentFailure, attempt+1, outcome.Cause)
		}

		if attempt == maxAttempts-1 {
			inv.logWarn("Provider retries exhausted",
				zap.String("provider", provider),
				zap.Int("attempts", maxAttempts),
				zap.Error(outcome.Cause))
			return fail(KindRetriesExhausted, maxAttempts, outcome.Cause)
		}

		delay := inv.backoff().Wait(attempt, maxAttempts-1, outcome.RetryAfter)
		inv.logWarn("Transient provider failure, backing off",
			zap.String("provider", provider),
			zap.Int("attempt", attempt+1),
			zap.Int("status", outcome.Status),
			zap.Duration("delay", delay),
			zap.Error(outcome.Cause))
		metrics.RecordBackoff(provider, delay)

		if err := inv.clock().Sleep(ctx, delay); err != nil {
			return fail(KindCanceled, attempt+1, err)
		}
	}

	// Unreachable: the loop returns on its final attempt.
	return fail(KindRetriesExhausted, maxAttempts, errors.New("attempt budget exhausted"))
}

func (inv *Invoker) admit(ctx context.Context) error {
	if inv.Admission == nil {
		return nil
	}
	timeout := inv.AdmissionTimeout
	if timeout == 0 {
		timeout = DefaultAdmissionTimeout
	}

	start := inv.clock().Now()
	err := inv.Admission.Acquire(ctx, timeout)
	waited := inv.clock().Now().Sub(start)
	switch {
	case err == nil:
		metrics.RecordAdmission("granted", waited)
		return nil
	case errors.Is(err, admission.ErrAdmissionTimeout):
		metrics.RecordAdmission("timeout", waited)
		inv.logWarn("Admission not granted within timeout", zap.Duration("timeout", timeout), zap.Duration("waited", waited))
	default:
		metrics.RecordAdmission("canceled", waited)
	}
	return err
}

// checkConfigured reports Unconfigured when role does not resolve to a
// provider with a credential. It builds no driver and touches no admission
// state.
func (inv *Invoker) checkConfigured(role string) error {
	if inv == nil || inv.Providers == nil {
		return &InvokeError{Kind: KindUnconfigured, Message: "ailink provider registry not configured"}
	}
	providerID, providerCfg, err := inv.Providers.resolveProvider(role)
	if err == nil {
		if _, _, key := inv.Providers.peekCredential(providerID, providerCfg); key == "" {
			err = fmt.Errorf("provider %q: %w", providerID, ErrNoCredential)
		}
	}
	if err != nil {
		metrics.RecordInvocation(providerID, string(KindUnconfigured))
		return &InvokeError{Kind: KindUnconfigured, Provider: providerID, Message: err.Error(), Cause: err}
	}
	return nil
}

// attemptCeiling is the configured attempt budget. Requests may lower it but
// never raise it.
func (inv *Invoker) attemptCeiling() int {
	if inv.MaxAttempts > 0 {
		return inv.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (inv *Invoker) backoff() Backoff {
	if inv.Backoff == (Backoff{}) {
		return DefaultBackoff()
	}
	return inv.Backoff
}

func (inv *Invoker) clock() clock.Clock {
	if inv.Clock == nil {
		return clock.System{}
	}
	return inv.Clock
}

func (inv *Invoker) logWarn(msg string, fields ...zap.Field) {
	if inv.Logger != nil {
		inv.Logger.Warn(msg, fields...)
	}
}

func validateRequest(req GenerateRequest, maxAttempts int) error {
	if err := content.Validate(req.Turns); err != nil {
		return err
	}
	if req.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if req.MaxAttempts > maxAttempts {
		return fmt.Errorf("max_attempts %d exceeds the configured limit of %d", req.MaxAttempts, maxAttempts)
	}
	if t := req.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *t)
	}
	if m := req.MaxTokens; m != nil && *m <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}
