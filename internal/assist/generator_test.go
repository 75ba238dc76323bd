package assist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const responseBody = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1700000000,
  "model": "gpt-4o-mini",
  "status": "completed",
  "output": [{
    "type": "message",
    "id": "msg_1",
    "role": "assistant",
    "status": "completed",
    "content": [{"type": "output_text", "text": "  Para one\n\nPara two  ", "annotations": []}]
  }]
}`

func newFakeProvider(t *testing.T, handler http.HandlerFunc) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIGenerator(OpenAIConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "gpt-4o-mini",
		MaxTokens:   500,
		Temperature: 0.7,
	})
}

func TestOpenAIGenerator_SendsParamsAndReadsText(t *testing.T) {
	var got map[string]any
	var auth string
	gen := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/responses"), r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responseBody)
	})

	text, err := gen.Generate(context.Background(), "write a haiku")
	require.NoError(t, err)
	require.Equal(t, "Para one\n\nPara two", text)
	require.Equal(t, "Bearer sk-test", auth)
	require.Equal(t, "gpt-4o-mini", got["model"])
	require.Equal(t, "write a haiku", got["input"])
	require.EqualValues(t, 500, got["max_output_tokens"])
	require.InDelta(t, 0.7, got["temperature"], 1e-9)
}

func TestOpenAIGenerator_ProviderError(t *testing.T) {
	var calls atomic.Int32
	gen := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := gen.Generate(context.Background(), "x")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	require.EqualValues(t, 1, calls.Load(), "retries are disabled")
}

func TestOpenAIGenerator_HonorsContext(t *testing.T) {
	release := make(chan struct{})
	gen := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gen.Generate(ctx, "slow")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestCannedGenerator(t *testing.T) {
	text, err := (&CannedGenerator{}).Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Draft for: hi", text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&CannedGenerator{Delay: time.Hour}).Generate(ctx, "hi")
	require.ErrorIs(t, err, context.Canceled)
}
