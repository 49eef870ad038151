package ailink

import (
	"errors"
	"fmt"
)

// Kind is the terminal classification of a failed generate call.
type Kind string

const (
	// KindUnconfigured means no credential is available; nothing was admitted or sent.
	KindUnconfigured Kind = "unconfigured"
	// KindRateLimitTimeout means local admission was not granted within its timeout.
	KindRateLimitTimeout Kind = "rate_limit_timeout"
	// KindRetriesExhausted means every attempt failed transiently.
	KindRetriesExhausted Kind = "retries_exhausted"
	// KindPermanentFailure means the request was rejected and must not be retried.
	KindPermanentFailure Kind = "permanent_failure"
	// KindCanceled means the caller's context ended the operation.
	KindCanceled Kind = "canceled"
)

// InvokeError is the only error type returned by Invoker.Generate.
type InvokeError struct {
	Kind     Kind
	Provider string
	Attempts int
	Message  string
	Cause    error

	// Validation is set for permanent failures caused by bad caller input,
	// detected before any admission or network call.
	Validation bool
}

func (e *InvokeError) Error() string {
	if e == nil {
		return "ailink: invoke error"
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("ailink %s (%s, %d attempts): %s", e.Kind, e.Provider, e.Attempts, msg)
	}
	return fmt.Sprintf("ailink %s: %s", e.Kind, msg)
}

func (e *InvokeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf returns the Kind carried by err, or "" when err is not an InvokeError.
func KindOf(err error) Kind {
	var ie *InvokeError
	if errors.As(err, &ie) && ie != nil {
		return ie.Kind
	}
	return ""
}

// UserMessage is the caller-facing text for a kind.
func (k Kind) UserMessage() string {
	switch k {
	case KindUnconfigured:
		return "AI service not configured. Add an API key for the provider and try again."
	case KindRateLimitTimeout:
		return "Request budget exhausted. Wait for the usage window to free up and try again."
	case KindRetriesExhausted:
		return "The AI provider is throttling or unavailable. Please wait a few minutes before trying again."
	case KindPermanentFailure:
		return "The AI provider rejected the request."
	case KindCanceled:
		return "The request was cancelled before it completed."
	default:
		return "AI request failed."
	}
}
