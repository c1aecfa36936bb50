package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// defaultMaxTokens applies when neither the request nor the config sets one.
const defaultMaxTokens = 2048

// AnthropicConfig configures an AnthropicCompleter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	SmallModel string
	MaxTokens  int64

	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// AnthropicCompleter implements Completer against the Anthropic Messages API.
// Calls are throttled client-side so that extraction bursts do not trip the
// provider's rate limit. The SDK's own retry loop is disabled: failures are
// surfaced to the caller.
type AnthropicCompleter struct {
	client     *anthropic.Client
	model      string
	smallModel string
	maxTokens  int64
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewAnthropicCompleter creates a completer for the given configuration.
func NewAnthropicCompleter(cfg AnthropicConfig, logger *slog.Logger) *AnthropicCompleter {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	small := cfg.SmallModel
	if small == "" {
		small = cfg.Model
	}

	return &AnthropicCompleter{
		client:     &client,
		model:      cfg.Model,
		smallModel: small,
		maxTokens:  maxTokens,
		limiter:    limiter,
		logger:     logger,
	}
}

// Complete sends the request and returns the first text block of the reply.
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: waiting for rate limiter: %w", err)
	}

	model := a.model
	if req.Small {
		model = a.smallModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = strings.TrimSpace(resp.Content[i].Text)
			break
		}
	}
	if responseText == "" {
		return "", ErrEmptyResponse
	}

	a.logger.Debug("llm completion", "model", model, "response_len", len(responseText))
	return responseText, nil
}
