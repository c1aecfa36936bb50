package ingest

import "github.com/ajitpratap0/floortime-memory/internal/models"

// PendingBuffer holds observations accepted by Write whose facts are not yet
// in the graph, in enqueue order. It does no locking of its own; the Facade
// guards it.
type PendingBuffer struct {
	items []models.Observation
}

// Append adds obs at the tail.
func (b *PendingBuffer) Append(obs models.Observation) {
	b.items = append(b.items, obs)
}

// Remove drops the observation with the given id and reports whether it was
// present.
func (b *PendingBuffer) Remove(id string) bool {
	for i := range b.items {
		if b.items[i].ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// ForNamespace returns a copy of the namespace's observations.
func (b *PendingBuffer) ForNamespace(ns string) []models.Observation {
	var out []models.Observation
	for _, o := range b.items {
		if o.Namespace == ns {
			out = append(out, o)
		}
	}
	return out
}

// All returns a copy of every observation.
func (b *PendingBuffer) All() []models.Observation {
	out := make([]models.Observation, len(b.items))
	copy(out, b.items)
	return out
}

// DropNamespace removes the namespace's observations and returns how many
// were removed.
func (b *PendingBuffer) DropNamespace(ns string) int {
	kept := b.items[:0]
	for _, o := range b.items {
		if o.Namespace != ns {
			kept = append(kept, o)
		}
	}
	n := len(b.items) - len(kept)
	clear(b.items[len(kept):])
	b.items = kept
	return n
}

// Len returns the number of buffered observations.
func (b *PendingBuffer) Len() int {
	return len(b.items)
}

// Reset empties the buffer.
func (b *PendingBuffer) Reset() {
	b.items = nil
}
