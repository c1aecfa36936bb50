package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/viterin/vek/vek32"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// MemStore is an in-memory implementation of Store for tests and the
// "memory" graph backend. Semantic scores are cosine similarity and lexical
// scores are the fraction of query terms present in the fact.
type MemStore struct {
	mu          sync.RWMutex
	episodes    map[string]models.Episode
	entities    map[string]*models.Entity // by uuid
	entityKeys  map[memKey]string         // -> uuid
	edges       []*models.FactEdge        // insertion order
	communities map[string][]models.Community
	unavailable bool
}

type memKey struct {
	namespace string
	key       EntityKey
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		episodes:    make(map[string]models.Episode),
		entities:    make(map[string]*models.Entity),
		entityKeys:  make(map[memKey]string),
		communities: make(map[string][]models.Community),
	}
}

// SetUnavailable makes every subsequent call fail with ErrGraphUnavailable
// until it is cleared.
func (m *MemStore) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

func (m *MemStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.unavailable {
		return ErrGraphUnavailable
	}
	return nil
}

// EnsureIndices is a no-op for the in-memory store.
func (m *MemStore) EnsureIndices(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

// AddEpisode validates the whole write before applying any of it.
func (m *MemStore) AddEpisode(ctx context.Context, w EpisodeWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	ns := w.Episode.Namespace
	if _, ok := m.episodes[w.Episode.UUID]; ok {
		return fmt.Errorf("episode %s already exists", w.Episode.UUID)
	}

	// Resolve entity keys to uuids: existing entities keep theirs.
	resolved := make(map[EntityKey]string, len(w.Entities))
	var fresh []models.Entity
	for _, e := range w.Entities {
		k := KeyOf(e)
		if id, ok := m.entityKeys[memKey{ns, k}]; ok {
			resolved[k] = id
			continue
		}
		if _, ok := resolved[k]; ok {
			continue
		}
		e.Namespace = ns
		e.CanonicalName = k.CanonicalName
		resolved[k] = e.UUID
		fresh = append(fresh, e)
	}
	lookup := func(t models.EntityType, name string) (string, bool) {
		k := EntityKey{Type: t, CanonicalName: models.CanonicalName(name)}
		if id, ok := resolved[k]; ok {
			return id, true
		}
		id, ok := m.entityKeys[memKey{ns, k}]
		return id, ok
	}

	newEdges := make([]*models.FactEdge, 0, len(w.Edges))
	for i := range w.Edges {
		e := w.Edges[i]
		src, ok := lookup(e.SourceType, e.SourceName)
		if !ok {
			return fmt.Errorf("edge %s: source entity %q missing", e.UUID, e.SourceName)
		}
		dst, ok := lookup(e.TargetType, e.TargetName)
		if !ok {
			return fmt.Errorf("edge %s: target entity %q missing", e.UUID, e.TargetName)
		}
		e.Namespace = ns
		e.SourceUUID = src
		e.TargetUUID = dst
		e.EpisodeUUID = w.Episode.UUID
		newEdges = append(newEdges, &e)
	}

	// Apply.
	m.episodes[w.Episode.UUID] = w.Episode
	for i := range fresh {
		e := fresh[i]
		m.entities[e.UUID] = &e
		m.entityKeys[memKey{ns, KeyOf(e)}] = e.UUID
	}
	for _, e := range w.Entities {
		if existing := m.entities[resolved[KeyOf(e)]]; existing != nil {
			if e.Summary != "" {
				existing.Summary = e.Summary
			}
			if len(e.NameEmbedding) > 0 {
				existing.NameEmbedding = e.NameEmbedding
			}
		}
	}
	m.edges = append(m.edges, newEdges...)
	for _, inv := range w.Invalidations {
		for _, e := range m.edges {
			if e.UUID == inv.EdgeUUID && e.Namespace == ns && e.InvalidAt == nil {
				t := inv.InvalidAt.UTC()
				e.InvalidAt = &t
			}
		}
	}
	return nil
}

// SearchEdges scores every namespace edge against the query.
func (m *MemStore) SearchEdges(ctx context.Context, q EdgeQuery) (*Candidates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	terms := lexicalTerms(q.Text)

	out := &Candidates{}
	for _, e := range m.edges {
		if e.Namespace != q.Namespace {
			continue
		}
		if !q.IncludeHistory && !e.ActiveAt(asOf) {
			continue
		}
		if len(q.Vector) > 0 && len(e.FactEmbedding) == len(q.Vector) {
			out.Semantic = append(out.Semantic, models.ScoredEdge{
				Edge:  m.describe(e),
				Score: cosine(q.Vector, e.FactEmbedding),
			})
		}
		if len(terms) > 0 {
			if score := overlap(terms, e.Fact+" "+e.Predicate); score > 0 {
				out.Lexical = append(out.Lexical, models.ScoredEdge{Edge: m.describe(e), Score: score})
			}
		}
	}
	out.Semantic = topScored(out.Semantic, limit)
	out.Lexical = topScored(out.Lexical, limit)
	return out, nil
}

// GetEdgesForChild returns Child→InterestDimension edges by valid_at.
func (m *MemStore) GetEdgesForChild(ctx context.Context, namespace string) ([]models.FactEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []models.FactEdge
	for _, e := range m.edges {
		if e.Namespace != namespace {
			continue
		}
		d := m.describe(e)
		if d.SourceType == models.EntityTypeChild && d.TargetType == models.EntityTypeInterestDimension {
			out = append(out, d)
		}
	}
	sortByValidAt(out)
	return out, nil
}

// ActiveEdgesFor returns active edges leaving subject with predicate.
func (m *MemStore) ActiveEdgesFor(ctx context.Context, namespace string, subject EntityKey, predicate string) ([]models.FactEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	src, ok := m.entityKeys[memKey{namespace, subject}]
	if !ok {
		return nil, nil
	}
	var out []models.FactEdge
	for _, e := range m.edges {
		if e.Namespace == namespace && e.SourceUUID == src && e.Predicate == predicate && e.InvalidAt == nil {
			out = append(out, m.describe(e))
		}
	}
	sortByValidAt(out)
	return out, nil
}

// RecentEpisodes returns up to limit episodes, newest reference time first.
func (m *MemStore) RecentEpisodes(ctx context.Context, namespace string, limit int) ([]models.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []models.Episode
	for _, ep := range m.episodes {
		if ep.Namespace == namespace {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReferenceTime.Equal(out[j].ReferenceTime) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ReferenceTime.After(out[j].ReferenceTime)
	})
	if len(out) > limit {
		out = out[:max(limit, 0)]
	}
	return out, nil
}

// ListEntities returns the namespace's entities ordered by type and name.
func (m *MemStore) ListEntities(ctx context.Context, namespace string) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []models.Entity
	for _, e := range m.entities {
		if e.Namespace == namespace {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].CanonicalName < out[j].CanonicalName
	})
	return out, nil
}

// ListEdges returns the namespace's edges ordered by valid_at.
func (m *MemStore) ListEdges(ctx context.Context, namespace string, includeInvalid bool) ([]models.FactEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []models.FactEdge
	for _, e := range m.edges {
		if e.Namespace != namespace || (!includeInvalid && e.InvalidAt != nil) {
			continue
		}
		out = append(out, m.describe(e))
	}
	sortByValidAt(out)
	return out, nil
}

// DeleteNamespace removes everything belonging to namespace.
func (m *MemStore) DeleteNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	for id, ep := range m.episodes {
		if ep.Namespace == namespace {
			delete(m.episodes, id)
		}
	}
	for id, e := range m.entities {
		if e.Namespace == namespace {
			delete(m.entities, id)
			delete(m.entityKeys, memKey{namespace, KeyOf(*e)})
		}
	}
	kept := m.edges[:0]
	for _, e := range m.edges {
		if e.Namespace != namespace {
			kept = append(kept, e)
		}
	}
	m.edges = kept
	delete(m.communities, namespace)
	return nil
}

// ReplaceCommunities swaps the namespace's communities.
func (m *MemStore) ReplaceCommunities(ctx context.Context, namespace string, cs []models.Community) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	stored := make([]models.Community, len(cs))
	for i, c := range cs {
		c.Namespace = namespace
		c.MemberUUIDs = append([]string(nil), c.MemberUUIDs...)
		stored[i] = c
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Name < stored[j].Name })
	m.communities[namespace] = stored
	return nil
}

// ListCommunities returns the namespace's communities ordered by name.
func (m *MemStore) ListCommunities(ctx context.Context, namespace string) ([]models.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return append([]models.Community(nil), m.communities[namespace]...), nil
}

// Ping reports availability.
func (m *MemStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close(_ context.Context) error {
	return nil
}

// describe returns a copy of e with endpoint names and types filled in.
// Callers must hold m.mu.
func (m *MemStore) describe(e *models.FactEdge) models.FactEdge {
	out := *e
	out.FactEmbedding = nil
	if e.InvalidAt != nil {
		t := *e.InvalidAt
		out.InvalidAt = &t
	}
	if s := m.entities[e.SourceUUID]; s != nil {
		out.SourceName, out.SourceType = s.Name, s.Type
	}
	if t := m.entities[e.TargetUUID]; t != nil {
		out.TargetName, out.TargetType = t.Name, t.Type
	}
	return out
}

// cosine returns the cosine similarity of a and b, or 0 for zero vectors.
func cosine(a, b []float32) float64 {
	s := float64(vek32.CosineSimilarity(a, b))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

func overlap(terms []string, text string) float64 {
	have := make(map[string]struct{})
	for _, t := range lexicalTerms(text) {
		have[t] = struct{}{}
	}
	hits := 0
	for _, t := range terms {
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func topScored(in []models.ScoredEdge, limit int) []models.ScoredEdge {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Score > in[j].Score })
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}

func sortByValidAt(edges []models.FactEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].ValidAt.Before(edges[j].ValidAt)
	})
}
