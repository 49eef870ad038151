package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/driver"
)

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "gpt-4o-mini", payload["model"])
		require.Equal(t, 0.7, payload["temperature"])
		require.Len(t, payload["messages"], 3)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	temp := 0.7
	resp, err := client.Generate(context.Background(), &driver.Request{
		Model:       "gpt-4o-mini",
		Messages:    []content.Message{content.System("sys"), content.User("q"), content.Assistant("a")},
		Temperature: &temp,
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Text())
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 6, resp.Usage.TotalTokens)
	require.Equal(t, 1, calls)
}

func TestClientDoesNotRetryRateLimits(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded","type":"requests","param":null,"code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Generate(context.Background(), &driver.Request{Model: "gpt-4o-mini", Messages: []content.Message{content.User("hi")}})

	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	require.Equal(t, 3*time.Second, perr.RetryAfter)
	require.Equal(t, 1, calls)
}

func TestBuildParamsRejectsMissingModel(t *testing.T) {
	_, err := buildParams(&driver.Request{Messages: []content.Message{content.User("hi")}})
	require.Error(t, err)
}
