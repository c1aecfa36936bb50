// Package extract turns observation text into graph episodes, and runs the
// hybrid retrieval that reads them back.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/floortime-memory/internal/classifier"
	"github.com/ajitpratap0/floortime-memory/internal/embedder"
	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/llm"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/internal/rerank"
)

// ErrExtractionFailed wraps every error Extract returns.
var ErrExtractionFailed = errors.New("extraction failed")

const (
	defaultContextEpisodes = 3
	defaultSearchResults   = 10
	extractionMaxTokens    = 4096
)

// Config tunes an Engine.
type Config struct {
	// ContextEpisodes is how many recent episodes of the namespace are shown
	// to the model. Negative disables context.
	ContextEpisodes int

	// MaxTokens caps the extraction response.
	MaxTokens int64

	// FunctionalPredicates overrides DefaultFunctionalPredicates when non-nil.
	FunctionalPredicates []string
}

// Input is one episode to extract.
type Input struct {
	// EpisodeUUID is used as the Episode node's uuid; empty generates one.
	EpisodeUUID    string
	Namespace      string
	EpisodeName    string
	Content        string
	ReferenceTime  time.Time
	Kind           models.ObservationKind
	SourceMediaRef string
	Instructions   string
}

// Result describes a committed episode.
type Result struct {
	Episode       models.Episode
	Entities      int
	Edges         int
	Invalidations int
}

// SearchInput parameterizes Search.
type SearchInput struct {
	Namespace      string
	Query          string
	Limit          int
	IncludeHistory bool
}

// Engine extracts episodes into the graph and searches them. It is safe for
// concurrent use; extraction within one namespace is serialized.
type Engine struct {
	store      graph.Store
	llm        llm.Completer
	embedder   embedder.Embedder
	reranker   rerank.Reranker
	classifier classifier.Classifier
	cfg        Config
	functional map[string]bool
	logger     *slog.Logger
	now        func() time.Time

	schema      singleflight.Group
	schemaReady atomic.Bool

	nsMu    sync.Mutex
	nsLocks map[string]*nsLock
}

type nsLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine wires an engine. A nil reranker keeps fused order; a nil
// classifier disables dimension hints.
func NewEngine(store graph.Store, completer llm.Completer, emb embedder.Embedder, rr rerank.Reranker, cls classifier.Classifier, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if rr == nil {
		rr = rerank.PassThrough{}
	}
	if cfg.ContextEpisodes == 0 {
		cfg.ContextEpisodes = defaultContextEpisodes
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = extractionMaxTokens
	}
	preds := cfg.FunctionalPredicates
	if preds == nil {
		preds = DefaultFunctionalPredicates
	}
	functional := make(map[string]bool, len(preds))
	for _, p := range preds {
		functional[normalizePredicate(p)] = true
	}
	return &Engine{
		store:      store,
		llm:        completer,
		embedder:   emb,
		reranker:   rr,
		classifier: cls,
		cfg:        cfg,
		functional: functional,
		logger:     logger,
		now:        time.Now,
		nsLocks:    make(map[string]*nsLock),
	}
}

// EnsureSchema creates graph indices and constraints once per process.
// Concurrent callers share a single attempt; after a failure the next call
// tries again.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	if e.schemaReady.Load() {
		return nil
	}
	_, err, _ := e.schema.Do("schema", func() (any, error) {
		if e.schemaReady.Load() {
			return nil, nil
		}
		if err := e.store.EnsureIndices(ctx); err != nil {
			return nil, err
		}
		e.schemaReady.Store(true)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("ensuring graph indices: %w", err)
	}
	return nil
}

func (e *Engine) lockNamespace(ns string) func() {
	e.nsMu.Lock()
	l, ok := e.nsLocks[ns]
	if !ok {
		l = &nsLock{}
		e.nsLocks[ns] = l
	}
	l.refs++
	e.nsMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.nsMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.nsLocks, ns)
		}
		e.nsMu.Unlock()
	}
}

// Extract runs the model over one episode and commits the episode, its
// entities and fact edges, and any supersessions in one graph transaction.
// It returns only after the commit. Errors wrap ErrExtractionFailed.
func (e *Engine) Extract(ctx context.Context, in Input) (*Result, error) {
	res, err := e.extract(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return res, nil
}

func (e *Engine) extract(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Namespace) == "" {
		return nil, errors.New("empty namespace")
	}
	if err := e.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	unlock := e.lockNamespace(in.Namespace)
	defer unlock()

	ref := in.ReferenceTime.UTC()
	if in.ReferenceTime.IsZero() {
		ref = e.now().UTC()
	}
	epUUID := in.EpisodeUUID
	if epUUID == "" {
		epUUID = uuid.New().String()
	}
	kind := in.Kind
	if !kind.IsValid() {
		kind = models.KindText
	}
	episode := models.Episode{
		UUID:           epUUID,
		Namespace:      in.Namespace,
		Name:           in.EpisodeName,
		Content:        in.Content,
		Kind:           kind,
		SourceMediaRef: in.SourceMediaRef,
		ReferenceTime:  ref,
		CreatedAt:      e.now().UTC(),
	}

	var previous []models.Episode
	if e.cfg.ContextEpisodes > 0 {
		var err error
		previous, err = e.store.RecentEpisodes(ctx, in.Namespace, e.cfg.ContextEpisodes)
		if err != nil {
			return nil, fmt.Errorf("reading recent episodes: %w", err)
		}
	}
	var hints []models.InterestDimension
	if e.classifier != nil {
		hints = e.classifier.Classify(in.Content)
	}

	text, err := e.llm.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: buildPrompt(promptInput{
			EpisodeName:   in.EpisodeName,
			Content:       in.Content,
			ReferenceTime: models.FormatISO(ref),
			Instructions:  in.Instructions,
			Hints:         hints,
			Previous:      previous,
		}),
		MaxTokens: e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("calling extraction model: %w", err)
	}
	ext, err := parseExtraction(text, ref)
	if err != nil {
		return nil, err
	}
	if ext.DroppedEntities > 0 || ext.DroppedRelations > 0 {
		e.logger.Info("extraction items outside lattice dropped",
			"episode_uuid", epUUID, "entities", ext.DroppedEntities, "relations", ext.DroppedRelations)
	}

	entities, edges, flagged, err := e.materialize(ctx, episode, ext)
	if err != nil {
		return nil, err
	}
	invalidations, err := e.supersessions(ctx, in.Namespace, edges, flagged)
	if err != nil {
		return nil, err
	}

	if err := e.store.AddEpisode(ctx, graph.EpisodeWrite{
		Episode:       episode,
		Entities:      entities,
		Edges:         edges,
		Invalidations: invalidations,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("episode extracted",
		"episode_uuid", epUUID, "namespace", in.Namespace,
		"entities", len(entities), "edges", len(edges), "invalidations", len(invalidations))
	return &Result{
		Episode:       episode,
		Entities:      len(entities),
		Edges:         len(edges),
		Invalidations: len(invalidations),
	}, nil
}

// materialize assigns ids and embeddings to the validated extraction.
func (e *Engine) materialize(ctx context.Context, ep models.Episode, ext *extraction) ([]models.Entity, []models.FactEdge, []bool, error) {
	texts := make([]string, 0, len(ext.Entities)+len(ext.Relations))
	for _, d := range ext.Entities {
		texts = append(texts, d.Name)
	}
	for _, r := range ext.Relations {
		texts = append(texts, r.Fact)
	}
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		vecs, err = e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("embedding extraction: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, nil, nil, fmt.Errorf("embedding extraction: got %d vectors for %d texts", len(vecs), len(texts))
		}
	}

	entities := make([]models.Entity, len(ext.Entities))
	for i, d := range ext.Entities {
		entities[i] = models.Entity{
			UUID:          uuid.New().String(),
			Namespace:     ep.Namespace,
			Name:          d.Name,
			CanonicalName: models.CanonicalName(d.Name),
			Type:          d.Type,
			Summary:       d.Summary,
			NameEmbedding: vecs[i],
			CreatedAt:     ep.CreatedAt,
		}
	}

	edges := make([]models.FactEdge, len(ext.Relations))
	flagged := make([]bool, len(ext.Relations))
	for i, r := range ext.Relations {
		edges[i] = models.FactEdge{
			UUID:          uuid.New().String(),
			Namespace:     ep.Namespace,
			Predicate:     r.Predicate,
			Fact:          r.Fact,
			EpisodeUUID:   ep.UUID,
			ReferenceTime: ep.ReferenceTime,
			ValidAt:       r.ValidAt,
			CreatedAt:     ep.CreatedAt,
			FactEmbedding: vecs[len(ext.Entities)+i],
			SourceName:    r.Source.Name,
			SourceType:    r.Source.Type,
			TargetName:    r.Target.Name,
			TargetType:    r.Target.Type,
		}
		flagged[i] = r.Supersedes
	}
	return entities, edges, flagged, nil
}

// Search runs hybrid retrieval over a namespace's facts: semantic and
// lexical candidates are fused by RRF, reranked and truncated to the limit.
// If the query cannot be embedded the search continues lexically.
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]models.ScoredEdge, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchResults
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return e.latest(ctx, in.Namespace, limit, in.IncludeHistory)
	}

	var vec []float32
	v, err := e.embedder.Embed(ctx, query)
	switch {
	case err == nil:
		vec = v
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		e.logger.Warn("query embedding failed, searching lexically", "namespace", in.Namespace, "error", err)
	}

	cands, err := e.store.SearchEdges(ctx, graph.EdgeQuery{
		Namespace:      in.Namespace,
		Text:           query,
		Vector:         vec,
		Limit:          limit * 2,
		IncludeHistory: in.IncludeHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("searching edges: %w", err)
	}

	fused := rerank.FuseRRF(rerank.DefaultRRFK, cands.Semantic, cands.Lexical)
	ranked, err := e.reranker.Rerank(ctx, query, fused)
	if err != nil {
		return nil, fmt.Errorf("reranking: %w", err)
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// latest answers a blank query with the most recently valid facts.
func (e *Engine) latest(ctx context.Context, ns string, limit int, includeHistory bool) ([]models.ScoredEdge, error) {
	edges, err := e.store.ListEdges(ctx, ns, includeHistory)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	out := make([]models.ScoredEdge, 0, min(limit, len(edges)))
	for i := len(edges) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, models.ScoredEdge{Edge: edges[i]})
	}
	return out, nil
}
