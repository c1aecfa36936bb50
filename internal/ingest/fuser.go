package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/floortime-memory/internal/extract"
	"github.com/ajitpratap0/floortime-memory/internal/metrics"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// Searcher runs graph retrieval for one namespace.
type Searcher interface {
	Search(ctx context.Context, in extract.SearchInput) ([]models.ScoredEdge, error)
}

// Fuser answers a search by placing pending observations ahead of graph
// facts.
type Fuser struct {
	graph Searcher
}

// NewFuser creates a fuser over the given graph searcher.
func NewFuser(s Searcher) *Fuser {
	return &Fuser{graph: s}
}

// Fuse returns every pending observation in enqueue order, followed by up to
// limit graph facts in ranked order. pending must be snapshotted before Fuse
// is called. Pending rows are not matched against the query.
func (f *Fuser) Fuse(ctx context.Context, pending []models.Observation, in extract.SearchInput) ([]models.FactResult, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	edges, err := f.graph.Search(ctx, in)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("searching graph: %w", ErrCancelled)
		}
		return nil, fmt.Errorf("searching graph: %w", err)
	}

	out := make([]models.FactResult, 0, len(pending)+len(edges))
	for _, o := range pending {
		out = append(out, models.FactResult{
			ID:      o.ID,
			Text:    o.Content,
			ValidAt: models.FormatISO(o.ReferenceTime),
			Pending: true,
		})
	}
	for _, s := range edges {
		out = append(out, models.FactResult{
			ID:        s.Edge.UUID,
			Text:      s.Edge.Fact,
			ValidAt:   models.FormatISO(s.Edge.ValidAt),
			InvalidAt: models.FormatISOPtr(s.Edge.InvalidAt),
		})
	}
	return out, nil
}
