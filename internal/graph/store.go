package graph

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

var (
	// ErrGraphUnavailable is returned when the graph backend cannot be
	// reached. Callers may retry.
	ErrGraphUnavailable = errors.New("graph unavailable")

	// ErrNotFound is returned when a requested node does not exist.
	ErrNotFound = errors.New("not found")
)

// EntityKey is the identity of an entity within a namespace.
type EntityKey struct {
	Type          models.EntityType
	CanonicalName string
}

// KeyOf returns the identity key of e.
func KeyOf(e models.Entity) EntityKey {
	return EntityKey{Type: e.Type, CanonicalName: models.CanonicalName(e.Name)}
}

// Invalidation closes the validity interval of an existing fact edge.
type Invalidation struct {
	EdgeUUID  string
	InvalidAt time.Time
}

// EpisodeWrite is everything one observation contributes to the graph. It is
// committed atomically: either all of it is visible or none of it is.
//
// Entities are upserted by (namespace, type, canonical name); an existing
// entity keeps its UUID. Edges identify their endpoints by SourceName/SourceType
// and TargetName/TargetType, which must match an entity in Entities or one
// already in the graph.
type EpisodeWrite struct {
	Episode       models.Episode
	Entities      []models.Entity
	Edges         []models.FactEdge
	Invalidations []Invalidation
}

// EdgeQuery parameterizes a hybrid fact search.
type EdgeQuery struct {
	Namespace string
	Text      string
	Vector    []float32
	Limit     int

	// AsOf restricts results to facts asserted at that instant. Zero means now.
	AsOf time.Time

	// IncludeHistory disables the AsOf filter.
	IncludeHistory bool
}

// Candidates holds the two ranked lists a hybrid search produces, best first.
// Fusion and reranking happen above the store.
type Candidates struct {
	Semantic []models.ScoredEdge
	Lexical  []models.ScoredEdge
}

// Store is the graph persistence boundary. Every operation is scoped to one
// namespace.
type Store interface {
	// EnsureIndices creates constraints and indexes if they don't exist.
	// It is idempotent.
	EnsureIndices(ctx context.Context) error

	// AddEpisode commits an episode with its entities, edges and
	// invalidations in one transaction.
	AddEpisode(ctx context.Context, w EpisodeWrite) error

	// SearchEdges returns semantic and lexical candidate lists for q.
	SearchEdges(ctx context.Context, q EdgeQuery) (*Candidates, error)

	// GetEdgesForChild returns every fact edge, active or not, from a Child
	// entity to an InterestDimension entity, ordered by valid_at ascending.
	GetEdgesForChild(ctx context.Context, namespace string) ([]models.FactEdge, error)

	// ActiveEdgesFor returns edges with no invalid_at whose subject is the
	// given entity and whose predicate matches.
	ActiveEdgesFor(ctx context.Context, namespace string, subject EntityKey, predicate string) ([]models.FactEdge, error)

	// RecentEpisodes returns up to limit episodes, newest reference time first.
	RecentEpisodes(ctx context.Context, namespace string, limit int) ([]models.Episode, error)

	// ListEntities returns all entities of a namespace.
	ListEntities(ctx context.Context, namespace string) ([]models.Entity, error)

	// ListEdges returns the namespace's fact edges ordered by valid_at.
	// Invalidated edges are included only when includeInvalid is set.
	ListEdges(ctx context.Context, namespace string, includeInvalid bool) ([]models.FactEdge, error)

	// DeleteNamespace removes every node and edge of a namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// ReplaceCommunities swaps the namespace's communities for cs.
	ReplaceCommunities(ctx context.Context, namespace string, cs []models.Community) error

	// ListCommunities returns the namespace's communities ordered by name.
	ListCommunities(ctx context.Context, namespace string) ([]models.Community, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
