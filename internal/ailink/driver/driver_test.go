package driver

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-4", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))

	date := now.Add(45 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 45*time.Second, ParseRetryAfter(date, now))
}

func TestParseRetryAfterClampsLargeValues(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, MaxRetryAfter, ParseRetryAfter("86400", now))
	assert.Equal(t, MaxRetryAfter, ParseRetryAfter("1e12", now))
	assert.Equal(t, MaxRetryAfter, ParseRetryAfter("+Inf", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("NaN", now))
	assert.Equal(t, MaxRetryAfter, ParseRetryAfter(now.Add(72*time.Hour).Format(http.TimeFormat), now))

	h := http.Header{}
	h.Set("Retry-After-Ms", "1e300")
	assert.Equal(t, MaxRetryAfter, RetryAfterFromHeader(h, now))
}

func TestRetryAfterFromHeaderPrefersMilliseconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "10")
	h.Set("Retry-After-Ms", "250")
	assert.Equal(t, 250*time.Millisecond, RetryAfterFromHeader(h, time.Now()))

	assert.Equal(t, time.Duration(0), RetryAfterFromHeader(nil, time.Now()))
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "groq", StatusCode: 429, Message: "slow down"}
	assert.Equal(t, "groq request failed: status 429: slow down", err.Error())

	var perr *ProviderError
	require.True(t, errors.As(error(err), &perr))
}

func TestResponseText(t *testing.T) {
	var nilResp *Response
	assert.Equal(t, "", nilResp.Text())

	resp := &Response{Content: []content.ContentBlock{{Type: content.ContentTypeText, Text: "hello"}}}
	assert.Equal(t, "hello", resp.Text())
}

func TestTracingWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	cleanup, err := EnableTracing(path)
	require.NoError(t, err)

	require.True(t, IsTracingEnabled())
	NewEntry("gemini", "gemini-2.0-flash", map[string]string{"prompt": "hi"}).Finish(map[string]string{"text": "ok"}, 200, nil)
	NewEntry("gemini", "gemini-2.0-flash", nil).Finish(nil, 503, errors.New("unavailable"))
	cleanup()
	require.False(t, IsTracingEnabled())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry TraceEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, 200, entries[0].StatusCode)
	assert.JSONEq(t, `{"prompt":"hi"}`, string(entries[0].RequestBody))
	assert.Equal(t, "unavailable", entries[1].Error)
}
