package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

const (
	neo4jConnectTimeout = 10 * time.Second
	neo4jReadTimeout    = 15 * time.Second
	neo4jWriteTimeout   = 30 * time.Second

	// candidateFactor over-fetches from the global indexes because the
	// namespace and validity filters run after the index lookup.
	candidateFactor = 5
	minCandidates   = 50
)

// Neo4jStore implements Store on a Neo4j 5 database.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	database  string
	dimension int
	logger    *slog.Logger
}

// NewNeo4jStore opens a driver and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, user, password, database string, dimension int, logger *slog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver for %s: %w", uri, err)
	}

	vctx, cancel := context.WithTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connection at %s: %w: %w", uri, ErrGraphUnavailable, err)
	}

	logger.Info("connected to neo4j", "uri", uri, "database", database)
	return &Neo4jStore{
		driver:    driver,
		database:  database,
		dimension: dimension,
		logger:    logger,
	}, nil
}

// wrapErr classifies driver errors. Connectivity and transient failures wrap
// ErrGraphUnavailable so callers can tell them apart from query bugs.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrGraphUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	rctx, cancel := context.WithTimeout(ctx, neo4jReadTimeout)
	defer cancel()
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	res, err := neo4j.ExecuteQuery(rctx, s.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) error {
	wctx, cancel := context.WithTimeout(ctx, neo4jWriteTimeout)
	defer cancel()
	session := s.driver.NewSession(wctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(wctx) }()
	_, err := session.ExecuteWrite(wctx, work)
	return err
}

// EnsureIndices creates constraints, the full-text index and vector indexes.
func (s *Neo4jStore) EnsureIndices(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dimension) {
		err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return wrapErr("ensuring graph schema", err)
		}
	}
	s.logger.Info("graph schema ensured", "vector_dimension", s.dimension)
	return nil
}

// AddEpisode commits the episode, its entity upserts, its edges and any
// invalidations in one write transaction.
func (s *Neo4jStore) AddEpisode(ctx context.Context, w EpisodeWrite) error {
	ep := w.Episode
	ns := ep.Namespace

	entities := make([]map[string]any, 0, len(w.Entities))
	for i := range w.Entities {
		e := &w.Entities[i]
		row := map[string]any{
			"uuid":           e.UUID,
			"name":           e.Name,
			"canonical_name": models.CanonicalName(e.Name),
			"entity_type":    string(e.Type),
			"summary":        e.Summary,
			"created_at":     e.CreatedAt.UTC(),
			"name_embedding": nil,
		}
		if len(e.NameEmbedding) > 0 {
			row["name_embedding"] = toFloat64s(e.NameEmbedding)
		}
		entities = append(entities, row)
	}

	edges := make([]map[string]any, 0, len(w.Edges))
	for i := range w.Edges {
		e := &w.Edges[i]
		props := map[string]any{
			"uuid":           e.UUID,
			"group_id":       ns,
			"name":           e.Predicate,
			"fact":           e.Fact,
			"episode_uuid":   ep.UUID,
			"reference_time": e.ReferenceTime.UTC(),
			"valid_at":       e.ValidAt.UTC(),
			"created_at":     e.CreatedAt.UTC(),
		}
		if e.InvalidAt != nil {
			props["invalid_at"] = e.InvalidAt.UTC()
		}
		if len(e.FactEmbedding) > 0 {
			props["fact_embedding"] = toFloat64s(e.FactEmbedding)
		}
		edges = append(edges, map[string]any{
			"source_type": string(e.SourceType),
			"source_key":  models.CanonicalName(e.SourceName),
			"target_type": string(e.TargetType),
			"target_key":  models.CanonicalName(e.TargetName),
			"props":       props,
		})
	}

	invalidations := make([]map[string]any, 0, len(w.Invalidations))
	for _, inv := range w.Invalidations {
		invalidations = append(invalidations, map[string]any{
			"uuid":       inv.EdgeUUID,
			"invalid_at": inv.InvalidAt.UTC(),
		})
	}

	err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, cypherMergeEpisode, map[string]any{
			"uuid":             ep.UUID,
			"group_id":         ns,
			"name":             ep.Name,
			"content":          ep.Content,
			"kind":             string(ep.Kind),
			"source_media_ref": ep.SourceMediaRef,
			"reference_time":   ep.ReferenceTime.UTC(),
			"created_at":       ep.CreatedAt.UTC(),
		}); err != nil {
			return nil, err
		}
		if len(entities) > 0 {
			if err := run(ctx, tx, cypherMergeEntities, map[string]any{
				"group_id":     ns,
				"episode_uuid": ep.UUID,
				"entities":     entities,
			}); err != nil {
				return nil, err
			}
		}
		if len(edges) > 0 {
			res, err := tx.Run(ctx, cypherCreateEdges, map[string]any{"group_id": ns, "edges": edges})
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			if created := recInt(rec, "created"); created != int64(len(edges)) {
				return nil, fmt.Errorf("created %d of %d fact edges: endpoint entity missing", created, len(edges))
			}
		}
		if len(invalidations) > 0 {
			if err := run(ctx, tx, cypherInvalidate, map[string]any{
				"group_id":      ns,
				"invalidations": invalidations,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return wrapErr("adding episode "+ep.UUID, err)
	}

	s.logger.Debug("episode committed",
		"episode_uuid", ep.UUID, "namespace", ns,
		"entities", len(entities), "edges", len(edges), "invalidations", len(invalidations))
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// SearchEdges queries the vector and full-text indexes and filters both to the
// namespace and validity window.
func (s *Neo4jStore) SearchEdges(ctx context.Context, q EdgeQuery) (*Candidates, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	k := max(limit*candidateFactor, minCandidates)
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	base := map[string]any{
		"group_id":        q.Namespace,
		"include_history": q.IncludeHistory,
		"as_of":           asOf.UTC(),
		"limit":           int64(limit),
	}

	out := &Candidates{}
	g, gctx := errgroup.WithContext(ctx)
	if len(q.Vector) > 0 {
		g.Go(func() error {
			params := cloneParams(base)
			params["index"] = factVectorIndex
			params["k"] = int64(k)
			params["vector"] = toFloat64s(q.Vector)
			recs, err := s.read(gctx, cypherVectorSearch, params)
			if err != nil {
				return wrapErr("vector fact search", err)
			}
			out.Semantic = scoredEdgesFromRecords(recs)
			return nil
		})
	}
	if lq := luceneQuery(q.Text); lq != "" {
		g.Go(func() error {
			params := cloneParams(base)
			params["index"] = factFulltextIndex
			params["query"] = lq
			recs, err := s.read(gctx, cypherFulltextSearch, params)
			if err != nil {
				return wrapErr("full-text fact search", err)
			}
			out.Lexical = scoredEdgesFromRecords(recs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEdgesForChild returns Child→InterestDimension edges for trend analysis.
func (s *Neo4jStore) GetEdgesForChild(ctx context.Context, namespace string) ([]models.FactEdge, error) {
	recs, err := s.read(ctx, cypherChildEdges, map[string]any{"group_id": namespace})
	if err != nil {
		return nil, wrapErr("reading child edges", err)
	}
	return edgesFromRecords(recs), nil
}

// ActiveEdgesFor returns the subject's active edges for predicate.
func (s *Neo4jStore) ActiveEdgesFor(ctx context.Context, namespace string, subject EntityKey, predicate string) ([]models.FactEdge, error) {
	recs, err := s.read(ctx, cypherActiveEdgesFor, map[string]any{
		"group_id":       namespace,
		"entity_type":    string(subject.Type),
		"canonical_name": subject.CanonicalName,
		"predicate":      predicate,
	})
	if err != nil {
		return nil, wrapErr("reading active edges", err)
	}
	return edgesFromRecords(recs), nil
}

// RecentEpisodes returns the newest episodes of a namespace.
func (s *Neo4jStore) RecentEpisodes(ctx context.Context, namespace string, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		return nil, nil
	}
	recs, err := s.read(ctx, cypherRecentEpisodes, map[string]any{"group_id": namespace, "limit": int64(limit)})
	if err != nil {
		return nil, wrapErr("reading recent episodes", err)
	}
	out := make([]models.Episode, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.Episode{
			UUID:           recString(rec, "uuid"),
			Namespace:      namespace,
			Name:           recString(rec, "name"),
			Content:        recString(rec, "content"),
			Kind:           models.ObservationKind(recString(rec, "kind")),
			SourceMediaRef: recString(rec, "source_media_ref"),
			ReferenceTime:  recTime(rec, "reference_time"),
			CreatedAt:      recTime(rec, "created_at"),
		})
	}
	return out, nil
}

// ListEntities returns every entity of a namespace.
func (s *Neo4jStore) ListEntities(ctx context.Context, namespace string) ([]models.Entity, error) {
	recs, err := s.read(ctx, cypherListEntities, map[string]any{"group_id": namespace})
	if err != nil {
		return nil, wrapErr("listing entities", err)
	}
	out := make([]models.Entity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.Entity{
			UUID:          recString(rec, "uuid"),
			Namespace:     namespace,
			Name:          recString(rec, "name"),
			CanonicalName: recString(rec, "canonical_name"),
			Type:          models.EntityType(recString(rec, "entity_type")),
			Summary:       recString(rec, "summary"),
			CreatedAt:     recTime(rec, "created_at"),
		})
	}
	return out, nil
}

// ListEdges returns the namespace's edges.
func (s *Neo4jStore) ListEdges(ctx context.Context, namespace string, includeInvalid bool) ([]models.FactEdge, error) {
	recs, err := s.read(ctx, cypherListEdges, map[string]any{"group_id": namespace, "include_invalid": includeInvalid})
	if err != nil {
		return nil, wrapErr("listing edges", err)
	}
	return edgesFromRecords(recs), nil
}

// DeleteNamespace detaches and deletes every node of the namespace.
func (s *Neo4jStore) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, run(ctx, tx, cypherDeleteNamespace, map[string]any{"group_id": namespace})
	})
	if err != nil {
		return wrapErr("deleting namespace "+namespace, err)
	}
	s.logger.Info("namespace deleted", "namespace", namespace)
	return nil
}

// ReplaceCommunities deletes the namespace's communities and creates cs.
func (s *Neo4jStore) ReplaceCommunities(ctx context.Context, namespace string, cs []models.Community) error {
	rows := make([]map[string]any, 0, len(cs))
	for i := range cs {
		c := &cs[i]
		members := make([]any, 0, len(c.MemberUUIDs))
		for _, m := range c.MemberUUIDs {
			members = append(members, m)
		}
		rows = append(rows, map[string]any{
			"uuid":         c.UUID,
			"name":         c.Name,
			"summary":      c.Summary,
			"created_at":   c.CreatedAt.UTC(),
			"member_uuids": members,
		})
	}
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, cypherDeleteCommunities, map[string]any{"group_id": namespace}); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return nil, run(ctx, tx, cypherCreateCommunities, map[string]any{"group_id": namespace, "communities": rows})
	})
	return wrapErr("replacing communities", err)
}

// ListCommunities returns the namespace's communities with member UUIDs.
func (s *Neo4jStore) ListCommunities(ctx context.Context, namespace string) ([]models.Community, error) {
	recs, err := s.read(ctx, cypherListCommunities, map[string]any{"group_id": namespace})
	if err != nil {
		return nil, wrapErr("listing communities", err)
	}
	out := make([]models.Community, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.Community{
			UUID:        recString(rec, "uuid"),
			Namespace:   namespace,
			Name:        recString(rec, "name"),
			Summary:     recString(rec, "summary"),
			MemberUUIDs: recStrings(rec, "members"),
			CreatedAt:   recTime(rec, "created_at"),
		})
	}
	return out, nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return wrapErr("pinging neo4j", s.driver.VerifyConnectivity(ctx))
}

// Close closes the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func edgesFromRecords(recs []*neo4j.Record) []models.FactEdge {
	out := make([]models.FactEdge, 0, len(recs))
	for _, rec := range recs {
		out = append(out, edgeFromRecord(rec))
	}
	return out
}

func scoredEdgesFromRecords(recs []*neo4j.Record) []models.ScoredEdge {
	out := make([]models.ScoredEdge, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.ScoredEdge{Edge: edgeFromRecord(rec), Score: recFloat(rec, "score")})
	}
	return out
}

func edgeFromRecord(rec *neo4j.Record) models.FactEdge {
	return models.FactEdge{
		UUID:          recString(rec, "uuid"),
		Namespace:     recString(rec, "group_id"),
		Predicate:     recString(rec, "name"),
		Fact:          recString(rec, "fact"),
		SourceUUID:    recString(rec, "source_uuid"),
		TargetUUID:    recString(rec, "target_uuid"),
		EpisodeUUID:   recString(rec, "episode_uuid"),
		ReferenceTime: recTime(rec, "reference_time"),
		ValidAt:       recTime(rec, "valid_at"),
		InvalidAt:     recTimePtr(rec, "invalid_at"),
		CreatedAt:     recTime(rec, "created_at"),
		SourceName:    recString(rec, "source_name"),
		SourceType:    models.EntityType(recString(rec, "source_type")),
		TargetName:    recString(rec, "target_name"),
		TargetType:    models.EntityType(recString(rec, "target_type")),
	}
}

func recString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recInt(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

func recFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	f, _ := v.(float64)
	return f
}

func recTime(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	t, _ := v.(time.Time)
	return t.UTC()
}

func recTimePtr(rec *neo4j.Record, key string) *time.Time {
	v, _ := rec.Get(key)
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

func recStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
