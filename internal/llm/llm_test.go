package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `[1,2]`, `[1,2]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`},
		{"no json", "nothing", "nothing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestCompleterFunc(t *testing.T) {
	var got Request
	c := CompleterFunc(func(_ context.Context, req Request) (string, error) {
		got = req
		return "ok", nil
	})
	out, err := c.Complete(context.Background(), Request{Prompt: "hi", Small: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.True(t, got.Small)
}

// anthropicStub serves a minimal Messages API response and records the model
// requested.
func anthropicStub(t *testing.T, text string, models *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		*models = append(*models, body.Model)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         body.Model,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicCompleter_RoutesSmallModel(t *testing.T) {
	var models []string
	srv := anthropicStub(t, "  hello  ", &models)

	c := NewAnthropicCompleter(AnthropicConfig{
		APIKey:     "test",
		BaseURL:    srv.URL,
		Model:      "big-model",
		SmallModel: "small-model",
	}, nil)

	out, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = c.Complete(context.Background(), Request{Prompt: "x", Small: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"big-model", "small-model"}, models)
}

func TestAnthropicCompleter_EmptyResponse(t *testing.T) {
	var models []string
	srv := anthropicStub(t, "", &models)
	c := NewAnthropicCompleter(AnthropicConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}, nil)

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicCompleter_HonoursCancelledContext(t *testing.T) {
	var models []string
	srv := anthropicStub(t, "x", &models)
	c := NewAnthropicCompleter(AnthropicConfig{APIKey: "test", BaseURL: srv.URL, Model: "m", RequestsPerSecond: 0.001, Burst: 1}, nil)

	// First call consumes the only token.
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.Len(t, models, 1, "throttled call must not reach the server")
}
