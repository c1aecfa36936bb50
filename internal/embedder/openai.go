package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIHTTPTimeout    = 30 * time.Second
	openAIDefaultModel   = "text-embedding-3-small"
	openAIDefaultDim     = 1024
)

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// /embeddings endpoint. The dimensions parameter is always sent so the
// provider truncates to the size the graph vector indexes expect.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	url        string
	client     *http.Client
	logger     *slog.Logger
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedData `json:"data"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates an embedder for the API rooted at baseURL
// (e.g. "https://api.openai.com/v1"). Empty model, dimension or baseURL fall
// back to defaults.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, logger *slog.Logger) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	if model == "" {
		model = openAIDefaultModel
	}
	if dimensions <= 0 {
		dimensions = openAIDefaultDim
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		url:        strings.TrimRight(baseURL, "/") + "/embeddings",
		client:     &http.Client{Timeout: openAIHTTPTimeout},
		logger:     logger,
	}
}

// Embed returns a vector embedding for the given text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(o.EmbedBatch(ctx, []string{text}))
}

// EmbedBatch returns embeddings for multiple texts in a single API call,
// ordered by the response's index field.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result openAIEmbedResponse
	req := openAIEmbedRequest{Model: o.model, Input: texts, Dimensions: o.dimensions}
	if err := postJSON(ctx, o.client, o.url, o.apiKey, req, &result); err != nil {
		var apiErr *apiError
		var body openAIErrorBody
		if errors.As(err, &apiErr) && json.Unmarshal(apiErr.Body, &body) == nil && body.Error.Message != "" {
			return nil, fmt.Errorf("openai embedder: API error %d: %s", apiErr.Status, body.Error.Message)
		}
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: got %d embeddings for %d inputs", len(result.Data), len(texts))
	}

	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	vecs := make([][]float32, len(result.Data))
	for i := range result.Data {
		vecs[i] = result.Data[i].Embedding
	}
	if err := checkDimension(vecs, o.dimensions); err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	o.logger.Debug("embedded texts", "provider", "openai", "model", o.model, "count", len(vecs))
	return vecs, nil
}

// Dimension returns the configured embedding dimension.
func (o *OpenAIEmbedder) Dimension() int {
	return o.dimensions
}
