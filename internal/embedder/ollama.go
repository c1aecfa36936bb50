package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const ollamaHTTPTimeout = 60 * time.Second

// OllamaEmbedder implements Embedder using the Ollama /api/embed endpoint,
// which accepts a batch of inputs per call.
type OllamaEmbedder struct {
	url       string
	model     string
	dimension int
	client    *http.Client
	logger    *slog.Logger
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder for the Ollama server at baseURL.
func NewOllamaEmbedder(baseURL, model string, dimension int, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaEmbedder{
		url:       strings.TrimRight(baseURL, "/") + "/api/embed",
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: ollamaHTTPTimeout},
		logger:    logger,
	}
}

// Embed returns a vector embedding for the given text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(o.EmbedBatch(ctx, []string{text}))
}

// EmbedBatch embeds all texts in one request.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaEmbedResponse
	if err := postJSON(ctx, o.client, o.url, "", ollamaEmbedRequest{Model: o.model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	if err := checkDimension(result.Embeddings, o.dimension); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	o.logger.Debug("embedded texts", "provider", "ollama", "model", o.model, "count", len(texts))
	return result.Embeddings, nil
}

// Dimension returns the configured embedding dimension.
func (o *OllamaEmbedder) Dimension() int {
	return o.dimension
}
