// Package ingest is the public entry point of the memory subsystem. It owns
// the pending buffer and the write queue, and guarantees that a search issued
// after a write returns sees the written observation, either as a pending row
// or as committed graph facts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ajitpratap0/floortime-memory/internal/community"
	"github.com/ajitpratap0/floortime-memory/internal/extract"
	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/metrics"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/internal/trend"
)

const (
	defaultNumResults    = 10
	defaultShutdownGrace = 5 * time.Second
	previewLength        = 80
)

// Engine is the extraction capability the façade drives.
type Engine interface {
	Searcher
	Extract(ctx context.Context, in extract.Input) (*extract.Result, error)
}

// WriteRequest is one observation submitted for ingestion.
type WriteRequest struct {
	GroupID        string `json:"group_id"`
	Content        string `json:"content"`
	ReferenceTime  string `json:"reference_time,omitempty"`
	Kind           string `json:"kind,omitempty"`
	EpisodeName    string `json:"episode_name,omitempty"`
	SourceMediaRef string `json:"source_media_ref,omitempty"`
}

// WriteResult acknowledges an accepted observation.
type WriteResult struct {
	Accepted      bool   `json:"accepted"`
	ObservationID string `json:"observation_id"`
	Namespace     string `json:"namespace"`
	QueueDepth    int    `json:"queue_depth"`
	QueuePosition int    `json:"queue_position"`
}

// SearchRequest is a fused search.
type SearchRequest struct {
	GroupID        string `json:"group_id"`
	Query          string `json:"query"`
	NumResults     int    `json:"num_results,omitempty"`
	IncludeHistory bool   `json:"include_history,omitempty"`
}

// Health is the liveness report.
type Health struct {
	Status       string `json:"status"`
	QueuePending int    `json:"queue_pending"`
	BufferSize   int    `json:"buffer_size"`
}

// Options wires a Facade.
type Options struct {
	// Engine extracts and searches. A nil Engine makes writes and searches
	// fail with ErrNotReady.
	Engine      Engine
	Store       graph.Store
	Analyzer    *trend.Analyzer
	Communities *community.Manager

	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

// Facade is the memory subsystem's public API.
type Facade struct {
	engine      Engine
	store       graph.Store
	analyzer    *trend.Analyzer
	communities *community.Manager
	fuser       *Fuser
	grace       time.Duration
	logger      *slog.Logger
	now         func() time.Time

	// mu is held over the pending append and the enqueue, over the pending
	// snapshot taken by searches, and over the worker's pending removal.
	mu      sync.Mutex
	pending PendingBuffer
	queue   *Queue
	closed  bool

	// clearing holds a channel per namespace with a Clear in progress. It is
	// closed when that Clear returns. Guarded by mu.
	clearing map[string]chan struct{}
}

// New creates a facade and starts its worker.
func New(opts Options) *Facade {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	f := &Facade{
		engine:      opts.Engine,
		store:       opts.Store,
		analyzer:    opts.Analyzer,
		communities: opts.Communities,
		grace:       opts.ShutdownGrace,
		logger:      opts.Logger,
		now:         time.Now,
		clearing:    make(map[string]chan struct{}),
	}
	if opts.Engine != nil {
		f.fuser = NewFuser(opts.Engine)
	}
	f.queue = NewQueue(f.process, opts.Logger)
	return f
}

// Write accepts an observation and returns once it is pending. It never
// waits for extraction, but a write to a namespace being cleared is held
// until the Clear returns.
func (f *Facade) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if f.engine == nil {
		return nil, ErrNotReady
	}
	if strings.TrimSpace(req.GroupID) == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	kind := models.KindText
	if req.Kind != "" {
		kind = models.ObservationKind(req.Kind)
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, req.Kind)
		}
	}

	now := f.now().UTC()
	ref, ok := models.ParseReferenceTime(req.ReferenceTime, f.now)
	if !ok && req.ReferenceTime != "" {
		f.logger.Warn("unparseable reference_time, using now", "reference_time", req.ReferenceTime)
	}
	ref = ref.UTC()
	name := req.EpisodeName
	if name == "" {
		name = fmt.Sprintf("%s_%s", kind, ref.Format("20060102T150405Z"))
	}
	obs := models.Observation{
		ID:             uuid.New().String(),
		Namespace:      models.NormalizeNamespace(req.GroupID),
		EpisodeName:    name,
		Content:        req.Content,
		ReferenceTime:  ref,
		QueuedAt:       now,
		Kind:           kind,
		SourceMediaRef: req.SourceMediaRef,
	}

	f.mu.Lock()
	if err := f.awaitClear(ctx, obs.Namespace); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("waiting for clear of %s: %w", obs.Namespace, err)
	}
	if f.closed {
		f.mu.Unlock()
		return nil, ErrNotReady
	}
	f.pending.Append(obs)
	depth, err := f.queue.Enqueue(obs)
	if err != nil {
		f.pending.Remove(obs.ID)
		f.mu.Unlock()
		return nil, ErrNotReady
	}
	buffered := f.pending.Len()
	f.mu.Unlock()

	metrics.ObservationsAccepted.Inc()
	metrics.PendingBufferSize.Set(float64(buffered))
	f.logger.Debug("observation queued", "observation_id", obs.ID, "namespace", obs.Namespace, "queue_depth", depth)
	return &WriteResult{
		Accepted:      true,
		ObservationID: obs.ID,
		Namespace:     obs.Namespace,
		QueueDepth:    depth,
		QueuePosition: depth,
	}, nil
}

// awaitClear blocks while a Clear of ns is running. It is called with mu
// held and returns with mu held.
func (f *Facade) awaitClear(ctx context.Context, ns string) error {
	for {
		done, ok := f.clearing[ns]
		if !ok {
			return nil
		}
		f.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			f.mu.Lock()
			return ctx.Err()
		}
		f.mu.Lock()
	}
}

// process is the queue handler. The observation leaves the pending buffer
// after extraction whether or not it succeeded.
func (f *Facade) process(ctx context.Context, obs models.Observation) {
	start := time.Now()
	res, err := f.engine.Extract(ctx, extract.Input{
		EpisodeUUID:    obs.ID,
		Namespace:      obs.Namespace,
		EpisodeName:    obs.EpisodeName,
		Content:        obs.Content,
		ReferenceTime:  obs.ReferenceTime,
		Kind:           obs.Kind,
		SourceMediaRef: obs.SourceMediaRef,
	})
	elapsed := time.Since(start)

	f.mu.Lock()
	f.pending.Remove(obs.ID)
	buffered := f.pending.Len()
	f.mu.Unlock()

	metrics.PendingBufferSize.Set(float64(buffered))
	metrics.ExtractionDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.ExtractionFailures.Inc()
		f.logger.Error("extraction failed, observation dropped",
			"observation_id", obs.ID, "namespace", obs.Namespace, "duration", elapsed, "error", err)
		return
	}
	metrics.Extractions.WithLabelValues(metrics.OutcomeSuccess).Inc()
	if f.analyzer != nil {
		f.analyzer.Forget(obs.Namespace)
	}
	f.logger.Info("observation committed",
		"observation_id", obs.ID, "namespace", obs.Namespace, "duration", elapsed,
		"edges", res.Edges, "invalidations", res.Invalidations)
}

// Search returns the namespace's pending observations followed by up to
// NumResults graph facts.
func (f *Facade) Search(ctx context.Context, req SearchRequest) ([]models.FactResult, error) {
	if f.fuser == nil {
		return nil, ErrNotReady
	}
	limit := req.NumResults
	if limit <= 0 {
		limit = defaultNumResults
	}
	ns := models.NormalizeNamespace(req.GroupID)

	f.mu.Lock()
	pending := f.pending.ForNamespace(ns)
	f.mu.Unlock()

	return f.fuser.Fuse(ctx, pending, extract.SearchInput{
		Namespace:      ns,
		Query:          req.Query,
		Limit:          limit,
		IncludeHistory: req.IncludeHistory,
	})
}

// Trends reports every dimension with data.
func (f *Facade) Trends(ctx context.Context, groupID string) ([]trend.DimensionTrend, error) {
	if f.analyzer == nil {
		return nil, ErrNotReady
	}
	return readErr(f.analyzer.Trends(ctx, models.NormalizeNamespace(groupID)))
}

// Trend reports one dimension by name.
func (f *Facade) Trend(ctx context.Context, groupID, dimension string) (*trend.DimensionTrend, error) {
	if f.analyzer == nil {
		return nil, ErrNotReady
	}
	dim, ok := models.ParseDimension(dimension)
	if !ok {
		return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidInput, dimension)
	}
	return readErr(f.analyzer.Trend(ctx, models.NormalizeNamespace(groupID), dim))
}

// Summary describes improving and declining dimensions.
func (f *Facade) Summary(ctx context.Context, groupID string) (string, error) {
	if f.analyzer == nil {
		return "", ErrNotReady
	}
	return readErr(f.analyzer.Summary(ctx, models.NormalizeNamespace(groupID)))
}

// Milestones lists milestone facts. days <= 0 and an empty dimension disable
// the respective filters.
func (f *Facade) Milestones(ctx context.Context, groupID string, days int, dimension string) ([]trend.Milestone, error) {
	if f.analyzer == nil {
		return nil, ErrNotReady
	}
	var dim models.InterestDimension
	if dimension != "" {
		var ok bool
		if dim, ok = models.ParseDimension(dimension); !ok {
			return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidInput, dimension)
		}
	}
	return readErr(f.analyzer.Milestones(ctx, models.NormalizeNamespace(groupID), days, dim))
}

// Correlations lists dimension pairs with |r| >= minCorr.
func (f *Facade) Correlations(ctx context.Context, groupID string, minCorr float64) ([]trend.Correlation, error) {
	if f.analyzer == nil {
		return nil, ErrNotReady
	}
	if minCorr < 0 || minCorr > 1 {
		return nil, fmt.Errorf("%w: min_correlation must be within [0, 1]", ErrInvalidInput)
	}
	return readErr(f.analyzer.Correlations(ctx, models.NormalizeNamespace(groupID), minCorr))
}

// RefreshCorrelations recomputes the cached correlations.
func (f *Facade) RefreshCorrelations(ctx context.Context, groupID string) ([]trend.Correlation, error) {
	if f.analyzer == nil {
		return nil, ErrNotReady
	}
	return readErr(f.analyzer.RefreshCorrelations(ctx, models.NormalizeNamespace(groupID)))
}

// Communities lists the namespace's communities.
func (f *Facade) Communities(ctx context.Context, groupID string) ([]models.Community, error) {
	if f.communities == nil {
		return nil, ErrNotReady
	}
	return readErr(f.communities.List(ctx, models.NormalizeNamespace(groupID)))
}

// RebuildCommunities regroups the namespace's entities.
func (f *Facade) RebuildCommunities(ctx context.Context, groupID string) (*community.Report, error) {
	if f.communities == nil {
		return nil, ErrNotReady
	}
	return readErr(f.communities.Rebuild(ctx, models.NormalizeNamespace(groupID)))
}

// Clear deletes everything the namespace holds: pending and queued
// observations first, then, once any in-flight extraction for it has
// finished, its graph data. Writes to the namespace wait until it returns.
func (f *Facade) Clear(ctx context.Context, groupID string) error {
	if f.store == nil {
		return ErrNotReady
	}
	ns := models.NormalizeNamespace(groupID)

	f.mu.Lock()
	if err := f.awaitClear(ctx, ns); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("waiting for concurrent clear: %w", err)
	}
	done := make(chan struct{})
	f.clearing[ns] = done
	defer func() {
		f.mu.Lock()
		delete(f.clearing, ns)
		f.mu.Unlock()
		close(done)
	}()
	dropped := f.pending.DropNamespace(ns)
	queued := f.queue.DropNamespace(ns)
	buffered := f.pending.Len()
	f.mu.Unlock()
	metrics.PendingBufferSize.Set(float64(buffered))

	if err := f.queue.WaitNamespace(ctx, ns); err != nil {
		return fmt.Errorf("waiting for in-flight extraction: %w", err)
	}
	if err := f.store.DeleteNamespace(ctx, ns); err != nil {
		return fmt.Errorf("deleting namespace: %w", err)
	}
	if f.analyzer != nil {
		f.analyzer.Forget(ns)
	}
	f.logger.Info("namespace cleared", "namespace", ns, "pending_dropped", dropped, "queued_dropped", queued)
	return nil
}

// QueueStatus reports the queue depth and every pending observation.
func (f *Facade) QueueStatus() models.QueueStatus {
	f.mu.Lock()
	pending := f.pending.All()
	f.mu.Unlock()

	entries := make([]models.QueueEntry, len(pending))
	for i, o := range pending {
		entries[i] = models.QueueEntry{
			ID:             o.ID,
			EpisodeName:    o.EpisodeName,
			Namespace:      o.Namespace,
			ReferenceTime:  models.FormatISO(o.ReferenceTime),
			QueuedAt:       models.FormatISO(o.QueuedAt),
			ContentPreview: preview(o.Content),
		}
	}
	return models.QueueStatus{
		QueueDepth: f.queue.Depth(),
		BufferSize: len(pending),
		Entries:    entries,
	}
}

// Health reports liveness. Status is "degraded" when the graph does not
// answer a ping and "not_ready" without an engine.
func (f *Facade) Health(ctx context.Context) Health {
	f.mu.Lock()
	buffered := f.pending.Len()
	f.mu.Unlock()

	h := Health{Status: "ok", QueuePending: f.queue.Depth(), BufferSize: buffered}
	switch {
	case f.engine == nil:
		h.Status = "not_ready"
	case f.store != nil:
		if err := f.store.Ping(ctx); err != nil {
			f.logger.Warn("graph ping failed", "error", err)
			h.Status = "degraded"
		}
	}
	return h
}

// Drain waits until every queued observation has been handled.
func (f *Facade) Drain(ctx context.Context) error {
	return f.queue.Drain(ctx)
}

// Close stops accepting writes, gives the in-flight extraction the shutdown
// grace period, and clears the queue and pending buffer.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	dropped := f.queue.Close(f.grace)

	f.mu.Lock()
	f.pending.Reset()
	f.mu.Unlock()
	metrics.PendingBufferSize.Set(0)
	if len(dropped) > 0 {
		f.logger.Warn("observations dropped at shutdown", "count", len(dropped))
	}
}

// readErr maps shutdown races onto ErrCancelled.
func readErr[T any](v T, err error) (T, error) {
	if err != nil && errors.Is(err, context.Canceled) {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return v, err
}

// preview shortens content to previewLength runes plus an ellipsis.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	r := []rune(s)
	return string(r[:previewLength]) + "..."
}
