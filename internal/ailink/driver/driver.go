package driver

import (
	"context"
	"errors"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
)

// Driver performs a single text-generation call against one remote model
// provider. Drivers never retry; retry and admission belong to the caller.
type Driver interface {
	// Generate sends one request and returns the provider's reply.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "gemini").
	Name() string
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic generation request.
type Request struct {
	Model       string
	Messages    []content.Message
	Temperature *float64
	MaxTokens   *int
	PromptSlug  string
}

// Response is a provider-agnostic generation response.
type Response struct {
	Content      []content.ContentBlock
	Model        string
	FinishReason string
	Usage        *Usage
}

// Text returns the concatenated text content of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return content.JoinText(r.Content)
}

// ErrEmptyResponse is returned when a provider answers successfully but the
// reply carries no usable text.
var ErrEmptyResponse = errors.New("provider returned empty content")
