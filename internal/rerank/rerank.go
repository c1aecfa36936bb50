// Package rerank orders fact candidates for a query: Reciprocal Rank Fusion
// merges the semantic and lexical lists, and a Reranker reorders the fused
// list.
package rerank

import (
	"context"
	"sort"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// DefaultRRFK is the rank offset used by Reciprocal Rank Fusion.
const DefaultRRFK = 60

// Reranker reorders candidates by relevance to query. Implementations must
// return every input edge exactly once.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.ScoredEdge) ([]models.ScoredEdge, error)
}

// PassThrough keeps the fused order.
type PassThrough struct{}

// Rerank returns candidates unchanged.
func (PassThrough) Rerank(_ context.Context, _ string, candidates []models.ScoredEdge) ([]models.ScoredEdge, error) {
	return candidates, nil
}

// FuseRRF merges ranked lists by Reciprocal Rank Fusion: each edge scores
// sum(1 / (k + rank)) over the lists containing it, rank starting at 1.
// Edges are identified by UUID. Ties keep first-seen order. A k <= 0 uses
// DefaultRRFK.
func FuseRRF(k int, lists ...[]models.ScoredEdge) []models.ScoredEdge {
	if k <= 0 {
		k = DefaultRRFK
	}
	index := make(map[string]int)
	var fused []models.ScoredEdge
	for _, list := range lists {
		for rank, c := range list {
			contribution := 1.0 / float64(k+rank+1)
			if i, ok := index[c.Edge.UUID]; ok {
				fused[i].Score += contribution
				continue
			}
			index[c.Edge.UUID] = len(fused)
			fused = append(fused, models.ScoredEdge{Edge: c.Edge, Score: contribution})
		}
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}
