package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ajitpratap0/floortime-memory/internal/llm"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/pkg/xmlutil"
)

const (
	// defaultRerankCandidates is how many top candidates are sent to the model.
	defaultRerankCandidates = 20

	// rerankMaxTokens caps the ranking response.
	rerankMaxTokens = 512
)

// LLMReranker asks the small model to order facts by relevance to the query.
// On any failure it logs and returns the candidates in their original order,
// so search always gets a usable answer.
type LLMReranker struct {
	llm           llm.Completer
	maxCandidates int
	logger        *slog.Logger
}

// NewLLMReranker creates a reranker. maxCandidates <= 0 uses the default.
func NewLLMReranker(c llm.Completer, maxCandidates int, logger *slog.Logger) *LLMReranker {
	if maxCandidates <= 0 {
		maxCandidates = defaultRerankCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMReranker{llm: c, maxCandidates: maxCandidates, logger: logger}
}

// Rerank reorders the top maxCandidates; the rest are appended unchanged.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []models.ScoredEdge) ([]models.ScoredEdge, error) {
	if len(candidates) < 2 || strings.TrimSpace(query) == "" {
		return candidates, nil
	}

	head := candidates
	var tail []models.ScoredEdge
	if len(candidates) > r.maxCandidates {
		head = candidates[:r.maxCandidates]
		tail = candidates[r.maxCandidates:]
	}

	var sb strings.Builder
	for i := range head {
		fmt.Fprintf(&sb, "[%d] %s\n", i, xmlutil.Escape(head[i].Edge.Fact))
	}

	prompt := fmt.Sprintf(`You rank observations about a child's play sessions by relevance to a caregiver's question.

Given the query and a numbered list of facts, output a JSON array of the indices ordered from MOST to LEAST relevant. Include every index exactly once.

Output ONLY a valid JSON array of integers, nothing else. Example: [2, 0, 3, 1]

%s

<facts>
%s</facts>`, xmlutil.Tag("query", query), sb.String())

	text, err := r.llm.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: rerankMaxTokens, Small: true})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("reranker: model call failed, using fused order", "error", err)
		return candidates, nil
	}

	var order []int
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &order); err != nil {
		r.logger.Warn("reranker: could not parse response, using fused order", "response", text, "error", err)
		return candidates, nil
	}

	seen := make([]bool, len(head))
	out := make([]models.ScoredEdge, 0, len(candidates))
	for _, idx := range order {
		if idx >= 0 && idx < len(head) && !seen[idx] {
			out = append(out, head[idx])
			seen[idx] = true
		}
	}
	for i := range head {
		if !seen[i] {
			out = append(out, head[i])
		}
	}

	r.logger.Debug("reranker: reordered facts", "candidates", len(head), "order", order)
	return append(out, tail...), nil
}
