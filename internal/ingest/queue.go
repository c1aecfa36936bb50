package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ajitpratap0/floortime-memory/internal/metrics"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// errQueueClosed is returned by Enqueue after Close.
var errQueueClosed = errors.New("write queue closed")

// Handler processes one dequeued observation. It owns all error handling;
// the queue moves on to the next item whatever happens.
type Handler func(ctx context.Context, obs models.Observation)

// Queue is an unbounded FIFO of observations drained by one worker
// goroutine, so items are handled strictly in enqueue order.
type Queue struct {
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	items    []models.Observation
	busy     bool
	closed   bool
	idle     chan struct{} // closed while nothing is queued or in flight
	signal   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	inflight *flight
}

// flight is the item the worker is handling.
type flight struct {
	id        string
	namespace string
	done      chan struct{}
}

// NewQueue starts a queue whose worker calls handler for each item.
func NewQueue(handler Handler, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	q := &Queue{
		handler: handler,
		logger:  logger,
		idle:    idle,
		signal:  make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// Enqueue appends obs and returns the number of items waiting, obs included.
func (q *Queue) Enqueue(obs models.Observation) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, errQueueClosed
	}
	if !q.busy && len(q.items) == 0 {
		q.idle = make(chan struct{})
	}
	q.items = append(q.items, obs)
	depth := len(q.items)
	metrics.QueueDepth.Set(float64(depth))

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return depth, nil
}

// Depth returns the number of items waiting; the one in flight is not
// counted.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DropNamespace removes waiting items of a namespace. An item already in
// flight is not affected.
func (q *Queue) DropNamespace(ns string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := make([]models.Observation, 0, len(q.items))
	for _, o := range q.items {
		if o.Namespace != ns {
			kept = append(kept, o)
		}
	}
	n := len(q.items) - len(kept)
	q.items = kept
	metrics.QueueDepth.Set(float64(len(kept)))
	q.markIdleLocked()
	return n
}

// WaitNamespace blocks while the worker is handling an item of namespace ns.
func (q *Queue) WaitNamespace(ctx context.Context, ns string) error {
	q.mu.Lock()
	f := q.inflight
	q.mu.Unlock()
	if f == nil || f.namespace != ns {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until the queue is empty and the worker is idle, or ctx ends.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. The in-flight item, if any, gets up to grace to
// finish before it is abandoned. Waiting items are discarded. Close returns
// the ids of discarded and abandoned items.
func (q *Queue) Close(grace time.Duration) []string {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := make([]string, 0, len(q.items)+1)
	for _, o := range q.items {
		dropped = append(dropped, o.ID)
	}
	q.items = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	q.cancel()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-q.done:
	case <-timer.C:
		q.mu.Lock()
		if q.inflight != nil {
			q.logger.Warn("abandoning in-flight extraction", "observation_id", q.inflight.id)
			metrics.Extractions.WithLabelValues(metrics.OutcomeAbandoned).Inc()
			dropped = append(dropped, q.inflight.id)
		}
		q.busy = false
		q.mu.Unlock()
	}

	q.mu.Lock()
	q.markIdleLocked()
	q.mu.Unlock()
	return dropped
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		obs, ok := q.next(ctx)
		if !ok {
			return
		}
		q.handler(ctx, obs)

		q.mu.Lock()
		close(q.inflight.done)
		q.busy = false
		q.inflight = nil
		q.markIdleLocked()
		q.mu.Unlock()
	}
}

// next blocks until an item is available or ctx ends.
func (q *Queue) next(ctx context.Context) (models.Observation, bool) {
	for {
		q.mu.Lock()
		if ctx.Err() != nil {
			q.mu.Unlock()
			return models.Observation{}, false
		}
		if len(q.items) > 0 {
			obs := q.items[0]
			q.items[0] = models.Observation{}
			q.items = q.items[1:]
			q.busy = true
			q.inflight = &flight{id: obs.ID, namespace: obs.Namespace, done: make(chan struct{})}
			metrics.QueueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()
			return obs, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return models.Observation{}, false
		}
	}
}

// markIdleLocked closes the idle channel when nothing remains to do.
func (q *Queue) markIdleLocked() {
	if q.busy || len(q.items) > 0 {
		return
	}
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}
