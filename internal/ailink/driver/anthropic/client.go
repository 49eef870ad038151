package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

const (
	// Name is the ai_provider identifier for this driver.
	Name = "anthropic"

	// The Messages API requires max_tokens on every request.
	defaultMaxTokens = 1024
)

// Client adapts the official Anthropic SDK to driver.Driver.
type Client struct {
	BaseURL string
	Timeout time.Duration

	sdk *sdk.Client
}

// NewClient builds a client with SDK retries disabled.
func NewClient(baseURL, apiKey string, extra ...option.RequestOption) *Client {
	baseURL = strings.TrimSpace(baseURL)
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	client := sdk.NewClient(opts...)
	return &Client{BaseURL: baseURL, sdk: &client}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return Name
}

// Generate sends one Messages API request.
func (c *Client) Generate(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil || c.sdk == nil {
		return nil, fmt.Errorf("anthropic client not configured")
	}
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	trace := driver.NewEntry(Name, req.Model, params)
	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr != nil {
			perr := &driver.ProviderError{
				Provider:   Name,
				StatusCode: apiErr.StatusCode,
				Message:    strings.TrimSpace(apiErr.Error()),
			}
			if apiErr.Response != nil {
				perr.RetryAfter = driver.RetryAfterFromHeader(apiErr.Response.Header, time.Now())
			}
			trace.Finish(nil, perr.StatusCode, err)
			return nil, perr
		}
		trace.Finish(nil, 0, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	trace.Finish(msg, 200, nil)

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return nil, driver.ErrEmptyResponse
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: strings.Join(parts, "")}},
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage:        &driver.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

func buildParams(req *driver.Request) (sdk.MessageNewParams, error) {
	if req == nil {
		return sdk.MessageNewParams{}, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return sdk.MessageNewParams{}, fmt.Errorf("model is required")
	}

	system, turns := content.SplitSystem(req.Messages)
	if len(turns) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("at least one user or assistant turn is required")
	}

	messages := make([]sdk.MessageParam, 0, len(turns))
	for _, turn := range turns {
		block := sdk.NewTextBlock(turn.PlainText())
		if turn.Role == content.RoleAssistant {
			messages = append(messages, sdk.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, sdk.NewUserMessage(block))
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params, nil
}
