package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

// Name is the ai_provider identifier for this driver.
const Name = "openai"

// Client adapts the official OpenAI SDK to driver.Driver.
//
// SDK retries are disabled; the invoker owns retry and backoff.
type Client struct {
	BaseURL string
	Timeout time.Duration

	sdk *oai.Client
}

// NewClient builds a client. Extra options are appended after the defaults,
// which lets tests inject an HTTP client.
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

	sdk := oai.NewClient(opts...)
	return &Client{BaseURL: baseURL, sdk: &sdk}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return Name
}

// Generate sends one chat completion request.
func (c *Client) Generate(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil || c.sdk == nil {
		return nil, fmt.Errorf("openai client not configured")
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
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		perr := toProviderError(err)
		trace.Finish(nil, statusOf(perr), err)
		if perr != nil {
			return nil, perr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	trace.Finish(resp, 200, nil)

	if len(resp.Choices) == 0 {
		return nil, driver.ErrEmptyResponse
	}
	choice := resp.Choices[0]
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: choice.Message.Content}},
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: &driver.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func buildParams(req *driver.Request) (oai.ChatCompletionNewParams, error) {
	if req == nil {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("messages are required")
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		text := msg.PlainText()
		switch msg.Role {
		case content.RoleSystem:
			messages = append(messages, oai.SystemMessage(text))
		case content.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(text))
		case content.RoleUser:
			messages = append(messages, oai.UserMessage(text))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = oai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	return params, nil
}

func toProviderError(err error) *driver.ProviderError {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) || apiErr == nil {
		return nil
	}
	perr := &driver.ProviderError{
		Provider:   Name,
		StatusCode: apiErr.StatusCode,
		Message:    strings.TrimSpace(apiErr.Message),
	}
	if perr.Message == "" {
		perr.Message = strings.TrimSpace(apiErr.Error())
	}
	if apiErr.Response != nil {
		perr.RetryAfter = driver.RetryAfterFromHeader(apiErr.Response.Header, time.Now())
	}
	return perr
}

func statusOf(perr *driver.ProviderError) int {
	if perr == nil {
		return 0
	}
	return perr.StatusCode
}
