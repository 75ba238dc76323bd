// Package assist drafts note content with a remote text-generation API.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kuitang/notelytic/internal/logutil"
	"github.com/kuitang/notelytic/internal/obs"
)

// Generator turns a prompt into text. Implementations must honor ctx
// cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when the provider answered without text.
var ErrEmptyResponse = errors.New("generation returned no text")

// ProviderError is a non-2xx answer from the generation provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generation provider returned %d: %s", e.StatusCode, e.Message)
}

// OpenAIConfig configures OpenAIGenerator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAIGenerator calls the OpenAI Responses API.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator builds a generator. Retries are disabled: the caller's
// timeout bounds the whole request.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithMiddleware(logRequests),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(g.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	}
	if g.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(g.maxTokens)
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("generate: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// logRequests logs provider calls at debug level with credentials redacted
// and the prompt truncated.
func logRequests(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	logger := obs.From(req.Context()).With("component", "assist")
	start := time.Now()
	if logger.Enabled(req.Context(), slog.LevelDebug) {
		logger.Debug("generation_request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", logutil.FormatHeadersForLog(req.Header),
		)
	}
	resp, err := next(req)
	if err != nil {
		logger.Warn("generation_transport_error", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
	logger.Debug("generation_response", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// CannedGenerator answers without a network call. It backs --no-ai and tests.
type CannedGenerator struct {
	// Text is returned verbatim when set; otherwise the prompt is echoed.
	Text  string
	Err   error
	Delay time.Duration
}

var _ Generator = (*CannedGenerator)(nil)

// Generate implements Generator.
func (c *CannedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Err != nil {
		return "", c.Err
	}
	if c.Text != "" {
		return c.Text, nil
	}
	return "Draft for: " + logutil.TruncateForLog(prompt, 200), nil
}
