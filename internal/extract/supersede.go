package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// DefaultFunctionalPredicates are single-valued: a subject holds at most one
// active object for each of them, so a new object always supersedes the old.
var DefaultFunctionalPredicates = []string{
	"CURRENT_FAVORITE",
	"FAVORITE_TOY",
	"FAVORITE_ACTIVITY",
	"HAS_AGE",
	"HAS_DEVELOPMENTAL_LEVEL",
	"CURRENT_GOAL",
	"ATTENDS",
}

// supersessions computes the invalidations a batch of new edges causes, and
// closes new edges that are already outdated by a later episode in the graph.
//
// An existing edge E is invalidated by a new edge N when they share subject
// and predicate, point at different objects, E's episode is strictly earlier
// than N's, and E.valid_at <= N.valid_at. E.invalid_at becomes N.valid_at.
//
// Conversely, when a strictly later episode already asserted a different
// object with valid_at >= N.valid_at, N is written with invalid_at set to the
// earliest such valid_at.
func (e *Engine) supersessions(ctx context.Context, ns string, edges []models.FactEdge, flagged []bool) ([]graph.Invalidation, error) {
	type lookup struct {
		subject   graph.EntityKey
		predicate string
	}
	cache := make(map[lookup][]models.FactEdge)
	invalidAt := make(map[string]time.Time)
	var order []string

	for i := range edges {
		n := &edges[i]
		if !flagged[i] && !e.functional[n.Predicate] {
			continue
		}
		key := lookup{
			subject:   graph.EntityKey{Type: n.SourceType, CanonicalName: models.CanonicalName(n.SourceName)},
			predicate: n.Predicate,
		}
		existing, ok := cache[key]
		if !ok {
			var err error
			existing, err = e.store.ActiveEdgesFor(ctx, ns, key.subject, key.predicate)
			if err != nil {
				return nil, fmt.Errorf("reading active edges for %s %s: %w", n.SourceName, n.Predicate, err)
			}
			cache[key] = existing
		}

		for j := range existing {
			old := &existing[j]
			if sameObject(old, n) {
				continue
			}
			switch {
			case old.ReferenceTime.Before(n.ReferenceTime) && !old.ValidAt.After(n.ValidAt):
				if prev, seen := invalidAt[old.UUID]; !seen || n.ValidAt.Before(prev) {
					if !seen {
						order = append(order, old.UUID)
					}
					invalidAt[old.UUID] = n.ValidAt
				}
			case old.ReferenceTime.After(n.ReferenceTime) && !old.ValidAt.Before(n.ValidAt):
				if n.InvalidAt == nil || old.ValidAt.Before(*n.InvalidAt) {
					t := old.ValidAt
					n.InvalidAt = &t
				}
			}
		}
	}

	out := make([]graph.Invalidation, 0, len(order))
	for _, id := range order {
		out = append(out, graph.Invalidation{EdgeUUID: id, InvalidAt: invalidAt[id]})
	}
	return out, nil
}

func sameObject(a, b *models.FactEdge) bool {
	return a.TargetType == b.TargetType &&
		models.CanonicalName(a.TargetName) == models.CanonicalName(b.TargetName)
}
