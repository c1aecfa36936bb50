package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/floortime-memory/internal/extract"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// recordingEngine records extraction order and fails selected contents.
type recordingEngine struct {
	mu      sync.Mutex
	order   []string
	fail    map[string]bool
	release chan struct{} // when set, Extract ignores ctx until closed
}

func (r *recordingEngine) Extract(_ context.Context, in extract.Input) (*extract.Result, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, in.Content)
	if r.fail[in.Content] {
		return nil, extract.ErrExtractionFailed
	}
	return &extract.Result{Edges: 1}, nil
}

func (r *recordingEngine) Search(context.Context, extract.SearchInput) ([]models.ScoredEdge, error) {
	return nil, nil
}

func (r *recordingEngine) extracted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestQueue_ProcessesInEnqueueOrderAcrossNamespaces(t *testing.T) {
	eng := &recordingEngine{}
	f := New(Options{Engine: eng})
	t.Cleanup(f.Close)
	ctx := context.Background()

	want := []string{"a1", "b1", "a2", "a3", "b2"}
	for _, c := range want {
		ns := "child-a"
		if c[0] == 'b' {
			ns = "child-b"
		}
		_, err := f.Write(ctx, WriteRequest{GroupID: ns, Content: c})
		require.NoError(t, err)
	}
	drain(t, f)
	assert.Equal(t, want, eng.extracted())
}

func TestQueue_FailedExtractionIsDroppedAndWorkerContinues(t *testing.T) {
	eng := &recordingEngine{fail: map[string]bool{"bad": true}}
	f := New(Options{Engine: eng})
	t.Cleanup(f.Close)
	ctx := context.Background()

	for _, c := range []string{"ok1", "bad", "ok2"} {
		_, err := f.Write(ctx, WriteRequest{GroupID: "c", Content: c})
		require.NoError(t, err)
	}
	drain(t, f)

	assert.Equal(t, []string{"ok1", "bad", "ok2"}, eng.extracted())
	status := f.QueueStatus()
	assert.Empty(t, status.Entries, "failed observations leave the pending buffer")
	assert.Zero(t, status.QueueDepth)
}

func TestQueue_CloseAbandonsStuckExtraction(t *testing.T) {
	eng := &recordingEngine{release: make(chan struct{})}
	t.Cleanup(func() { close(eng.release) })
	f := New(Options{Engine: eng, ShutdownGrace: 20 * time.Millisecond})
	ctx := context.Background()

	for _, c := range []string{"stuck", "waiting"} {
		_, err := f.Write(ctx, WriteRequest{GroupID: "c", Content: c})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return f.QueueStatus().QueueDepth == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	f.Close()
	assert.Less(t, time.Since(start), time.Second)

	status := f.QueueStatus()
	assert.Empty(t, status.Entries)
	assert.Zero(t, status.QueueDepth)

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, f.Drain(dctx), "a closed queue reports idle")
}

func TestQueue_DrainRespectsContext(t *testing.T) {
	eng := &recordingEngine{release: make(chan struct{})}
	f := New(Options{Engine: eng, ShutdownGrace: 10 * time.Millisecond})
	t.Cleanup(func() {
		close(eng.release)
		f.Close()
	})

	_, err := f.Write(context.Background(), WriteRequest{GroupID: "c", Content: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Drain(ctx), context.DeadlineExceeded)
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := NewQueue(func(context.Context, models.Observation) {}, nil)
	q.Close(time.Millisecond)
	_, err := q.Enqueue(models.Observation{ID: "x"})
	assert.True(t, errors.Is(err, errQueueClosed))
	assert.Nil(t, q.Close(time.Millisecond), "second close is a no-op")
}

func TestQueue_DropNamespace(t *testing.T) {
	block := make(chan struct{})
	var handled []string
	var mu sync.Mutex
	q := NewQueue(func(_ context.Context, o models.Observation) {
		<-block
		mu.Lock()
		handled = append(handled, o.ID)
		mu.Unlock()
	}, nil)

	for _, o := range []models.Observation{
		{ID: "1", Namespace: "a"}, {ID: "2", Namespace: "b"}, {ID: "3", Namespace: "a"}, {ID: "4", Namespace: "b"},
	} {
		_, err := q.Enqueue(o)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return q.Depth() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, q.DropNamespace("a"), "the in-flight item is not dropped")
	assert.Equal(t, 2, q.Depth())

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	q.Close(time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "4"}, handled)
}

func TestPendingBuffer(t *testing.T) {
	var b PendingBuffer
	for _, o := range []models.Observation{
		{ID: "1", Namespace: "a"}, {ID: "2", Namespace: "b"}, {ID: "3", Namespace: "a"},
	} {
		b.Append(o)
	}
	assert.Equal(t, 3, b.Len())

	a := b.ForNamespace("a")
	require.Len(t, a, 2)
	assert.Equal(t, "1", a[0].ID)
	assert.Equal(t, "3", a[1].ID)

	assert.True(t, b.Remove("1"))
	assert.False(t, b.Remove("1"))
	assert.Equal(t, 1, b.DropNamespace("a"))
	all := b.All()
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0].ID)

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.ForNamespace("b"))
}
