package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

// Name is the ai_provider identifier for this driver.
const Name = "gemini"

// Client adapts the Gemini SDK to driver.Driver. The underlying SDK client is
// created lazily on first use and reused; a GenerativeModel is built per call
// so concurrent requests never share generation settings.
type Client struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	opts []option.ClientOption

	mu  sync.Mutex
	sdk *genai.Client
}

// NewClient returns a client for apiKey. baseURL overrides the API endpoint.
func NewClient(baseURL, apiKey string, extra ...option.ClientOption) *Client {
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: strings.TrimSpace(baseURL),
		opts:    extra,
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return Name
}

// Close releases the SDK client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk == nil {
		return nil
	}
	err := c.sdk.Close()
	c.sdk = nil
	return err
}

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk != nil {
		return c.sdk, nil
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(c.BaseURL))
	}
	opts = append(opts, c.opts...)

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.sdk = client
	return client, nil
}

// Generate replays the conversation as chat history and sends the final user
// turn as the prompt.
func (c *Client) Generate(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}
	system, history, prompt, err := splitConversation(req)
	if err != nil {
		return nil, err
	}

	sdk, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	model := sdk.GenerativeModel(req.Model)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(*req.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = history

	trace := driver.NewEntry(Name, req.Model, map[string]any{
		"system":  system,
		"history": len(history),
		"prompt":  prompt,
	})
	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		perr := toProviderError(err)
		if perr != nil {
			trace.Finish(nil, perr.StatusCode, err)
			return nil, perr
		}
		trace.Finish(nil, 0, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	trace.Finish(resp, 200, nil)

	return toDriverResponse(req.Model, resp)
}

func splitConversation(req *driver.Request) (string, []*genai.Content, string, error) {
	if req == nil {
		return "", nil, "", fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return "", nil, "", fmt.Errorf("model is required")
	}

	system, turns := content.SplitSystem(req.Messages)
	if len(turns) == 0 {
		return "", nil, "", fmt.Errorf("at least one user turn is required")
	}
	last := turns[len(turns)-1]
	if last.Role != content.RoleUser {
		return "", nil, "", fmt.Errorf("final turn must be from the user, got %q", last.Role)
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, turn := range turns[:len(turns)-1] {
		role := "user"
		if turn.Role == content.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(turn.PlainText())}})
	}
	return system, history, last.PlainText(), nil
}

func toDriverResponse(model string, resp *genai.GenerateContentResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, driver.ErrEmptyResponse
	}
	cand := resp.Candidates[0]

	var parts []string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				parts = append(parts, string(text))
			}
		}
	}
	if len(parts) == 0 {
		return nil, driver.ErrEmptyResponse
	}

	out := &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: strings.Join(parts, "")}},
		Model:        model,
		FinishReason: strings.ToLower(cand.FinishReason.String()),
	}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return out, nil
}

// toProviderError extracts an HTTP status from googleapi errors. Errors
// without one are left for heuristic classification.
func toProviderError(err error) *driver.ProviderError {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr == nil {
		return nil
	}
	msg := strings.TrimSpace(gerr.Message)
	if msg == "" {
		msg = strings.TrimSpace(gerr.Error())
	}
	return &driver.ProviderError{
		Provider:   Name,
		StatusCode: gerr.Code,
		Message:    msg,
		RetryAfter: driver.RetryAfterFromHeader(gerr.Header, time.Now()),
	}
}
