// Package llm wraps the text-to-text language model calls used by extraction,
// reranking and community summaries. Every call is a pure prompt→text
// function; callers own the JSON contract of the response.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no text block.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is one completion call.
type Request struct {
	// System is the system prompt.
	System string
	// Prompt is the single user turn.
	Prompt string
	// MaxTokens caps the response length; zero uses the completer default.
	MaxTokens int64
	// Small routes the call to the cheaper model when one is configured.
	Small bool
}

// Completer produces a text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ExtractJSON returns the JSON payload of a model response, tolerating
// markdown code fences and leading/trailing prose. It returns the input
// trimmed when no object or array delimiters are found.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
