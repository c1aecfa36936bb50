package graph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func entity(id string, typ models.EntityType, name string) models.Entity {
	return models.Entity{UUID: id, Name: name, Type: typ, CreatedAt: t0}
}

func edge(id, pred, fact string, src, dst models.Entity, validAt time.Time, vec []float32) models.FactEdge {
	return models.FactEdge{
		UUID:          id,
		Predicate:     pred,
		Fact:          fact,
		SourceName:    src.Name,
		SourceType:    src.Type,
		TargetName:    dst.Name,
		TargetType:    dst.Type,
		ReferenceTime: validAt,
		ValidAt:       validAt,
		CreatedAt:     validAt,
		FactEmbedding: vec,
	}
}

func episode(id, ns string, ref time.Time) models.Episode {
	return models.Episode{UUID: id, Namespace: ns, Name: id, Content: "c", Kind: models.KindText, ReferenceTime: ref, CreatedAt: ref}
}

func seed(t *testing.T, s *MemStore) {
	t.Helper()
	ctx := context.Background()
	child := entity("e-child", models.EntityTypeChild, "Maya")
	motor := entity("e-motor", models.EntityTypeInterestDimension, "Motor")
	visual := entity("e-visual", models.EntityTypeInterestDimension, "Visual")

	require.NoError(t, s.AddEpisode(ctx, EpisodeWrite{
		Episode:  episode("ep1", "fam", t0),
		Entities: []models.Entity{child, motor, visual},
		Edges: []models.FactEdge{
			edge("r1", "SHOWS_ENGAGEMENT", "Maya enjoyed climbing (valence: strongly positive)", child, motor, t0, []float32{1, 0, 0}),
			edge("r2", "SHOWS_ENGAGEMENT", "Maya watched bubbles (valence: neutral)", child, visual, t0, []float32{0, 1, 0}),
		},
	}))
}

func TestMemStore_AddEpisodeUpsertsEntitiesByKey(t *testing.T) {
	s := NewMemStore()
	seed(t, s)
	ctx := context.Background()

	// Same child under a different uuid and casing must resolve to e-child.
	again := entity("other-uuid", models.EntityTypeChild, "  maya ")
	motor := entity("x", models.EntityTypeInterestDimension, "motor")
	require.NoError(t, s.AddEpisode(ctx, EpisodeWrite{
		Episode:  episode("ep2", "fam", t0.Add(24*time.Hour)),
		Entities: []models.Entity{again, motor},
		Edges:    []models.FactEdge{edge("r3", "SHOWS_ENGAGEMENT", "Maya ran", again, motor, t0.Add(24*time.Hour), nil)},
	}))

	ents, err := s.ListEntities(ctx, "fam")
	require.NoError(t, err)
	assert.Len(t, ents, 3)

	edges, err := s.ListEdges(ctx, "fam", true)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, "e-child", edges[2].SourceUUID)
	assert.Equal(t, "e-motor", edges[2].TargetUUID)
	assert.Equal(t, "ep2", edges[2].EpisodeUUID)
}

func TestMemStore_AddEpisodeIsAtomic(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	child := entity("c", models.EntityTypeChild, "Maya")
	ghost := entity("g", models.EntityTypeObject, "ghost")

	err := s.AddEpisode(ctx, EpisodeWrite{
		Episode:  episode("ep1", "fam", t0),
		Entities: []models.Entity{child},
		Edges:    []models.FactEdge{edge("r1", "PLAYS_WITH", "Maya plays with ghost", child, ghost, t0, nil)},
	})
	require.Error(t, err)

	eps, err := s.RecentEpisodes(ctx, "fam", 10)
	require.NoError(t, err)
	assert.Empty(t, eps)
	ents, err := s.ListEntities(ctx, "fam")
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestMemStore_Invalidation(t *testing.T) {
	s := NewMemStore()
	seed(t, s)
	ctx := context.Background()
	later := t0.Add(48 * time.Hour)

	require.NoError(t, s.AddEpisode(ctx, EpisodeWrite{
		Episode:       episode("ep2", "fam", later),
		Invalidations: []Invalidation{{EdgeUUID: "r1", InvalidAt: later}},
	}))

	active, err := s.ActiveEdgesFor(ctx, "fam", EntityKey{Type: models.EntityTypeChild, CanonicalName: "maya"}, "SHOWS_ENGAGEMENT")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "r2", active[0].UUID)

	all, err := s.ListEdges(ctx, "fam", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].InvalidAt)
	assert.True(t, all[0].InvalidAt.Equal(later))

	// Search as of before the invalidation still sees r1.
	c, err := s.SearchEdges(ctx, EdgeQuery{Namespace: "fam", Text: "climbing", AsOf: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, c.Lexical, 1)
	assert.Equal(t, "r1", c.Lexical[0].Edge.UUID)

	c, err = s.SearchEdges(ctx, EdgeQuery{Namespace: "fam", Text: "climbing"})
	require.NoError(t, err)
	assert.Empty(t, c.Lexical)

	c, err = s.SearchEdges(ctx, EdgeQuery{Namespace: "fam", Text: "climbing", IncludeHistory: true})
	require.NoError(t, err)
	assert.Len(t, c.Lexical, 1)
}

func TestMemStore_SearchEdgesSemanticAndLexical(t *testing.T) {
	s := NewMemStore()
	seed(t, s)

	c, err := s.SearchEdges(context.Background(), EdgeQuery{
		Namespace: "fam",
		Text:      "bubbles",
		Vector:    []float32{0.1, 0.9, 0},
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, c.Semantic, 2)
	assert.Equal(t, "r2", c.Semantic[0].Edge.UUID)
	assert.Greater(t, c.Semantic[0].Score, c.Semantic[1].Score)
	assert.Equal(t, "Visual", c.Semantic[0].Edge.TargetName)
	assert.Nil(t, c.Semantic[0].Edge.FactEmbedding)

	require.Len(t, c.Lexical, 1)
	assert.Equal(t, "r2", c.Lexical[0].Edge.UUID)
}

func TestMemStore_NamespaceIsolation(t *testing.T) {
	s := NewMemStore()
	seed(t, s)
	ctx := context.Background()

	c, err := s.SearchEdges(ctx, EdgeQuery{Namespace: "other", Text: "climbing", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Empty(t, c.Semantic)
	assert.Empty(t, c.Lexical)

	edges, err := s.GetEdgesForChild(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemStore_GetEdgesForChild(t *testing.T) {
	s := NewMemStore()
	seed(t, s)
	ctx := context.Background()
	child := entity("c2", models.EntityTypeChild, "Maya")
	ball := entity("b", models.EntityTypeObject, "ball")
	require.NoError(t, s.AddEpisode(ctx, EpisodeWrite{
		Episode:  episode("ep2", "fam", t0.Add(time.Hour)),
		Entities: []models.Entity{child, ball},
		Edges:    []models.FactEdge{edge("r3", "PLAYS_WITH", "Maya plays with ball", child, ball, t0.Add(time.Hour), nil)},
	}))

	edges, err := s.GetEdgesForChild(ctx, "fam")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, models.EntityTypeInterestDimension, e.TargetType)
	}
}

func TestMemStore_DeleteNamespace(t *testing.T) {
	s := NewMemStore()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.ReplaceCommunities(ctx, "fam", []models.Community{{UUID: "c1", Name: "Motor"}}))

	require.NoError(t, s.DeleteNamespace(ctx, "fam"))

	edges, err := s.ListEdges(ctx, "fam", true)
	require.NoError(t, err)
	assert.Empty(t, edges)
	cs, err := s.ListCommunities(ctx, "fam")
	require.NoError(t, err)
	assert.Empty(t, cs)

	// Re-adding after delete starts clean.
	seed(t, s)
	ents, err := s.ListEntities(ctx, "fam")
	require.NoError(t, err)
	assert.Len(t, ents, 3)
}

func TestMemStore_RecentEpisodesNewestFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AddEpisode(ctx, EpisodeWrite{Episode: episode(id, "fam", t0.Add(time.Duration(i)*time.Hour))}))
	}
	eps, err := s.RecentEpisodes(ctx, "fam", 2)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "c", eps[0].UUID)
	assert.Equal(t, "b", eps[1].UUID)
}

func TestMemStore_Unavailable(t *testing.T) {
	s := NewMemStore()
	s.SetUnavailable(true)
	ctx := context.Background()

	assert.ErrorIs(t, s.Ping(ctx), ErrGraphUnavailable)
	_, err := s.SearchEdges(ctx, EdgeQuery{Namespace: "fam", Text: "x"})
	assert.ErrorIs(t, err, ErrGraphUnavailable)
	assert.ErrorIs(t, s.AddEpisode(ctx, EpisodeWrite{Episode: episode("e", "fam", t0)}), ErrGraphUnavailable)

	s.SetUnavailable(false)
	assert.NoError(t, s.Ping(ctx))
}

func TestLuceneQuery(t *testing.T) {
	assert.Equal(t, "", luceneQuery("  ?! "))
	assert.Equal(t, "maya OR climbs", luceneQuery("Maya climbs! maya"))
	assert.Equal(t, `c\+\+`, escapeLucene("c++"))
	assert.Equal(t, `well\-being`, luceneQuery("well-being"))
}

func TestSchemaStatementsCarryDimension(t *testing.T) {
	stmts := schemaStatements(768)
	var vector int
	for _, s := range stmts {
		assert.Contains(t, s, "IF NOT EXISTS")
		if strings.Contains(s, "VECTOR INDEX") && strings.Contains(s, "768") {
			vector++
		}
	}
	assert.Equal(t, 2, vector)
}
