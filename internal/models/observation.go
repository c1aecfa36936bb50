package models

import (
	"time"
)

// ObservationKind records which input channel produced an observation.
type ObservationKind string

const (
	KindText            ObservationKind = "text"
	KindQuickTap        ObservationKind = "quick_tap"
	KindVoiceTranscript ObservationKind = "voice_transcript"
	KindVideoCaption    ObservationKind = "video_caption"
	KindImageCaption    ObservationKind = "image_caption"
)

// ValidObservationKinds is the set of all valid observation kinds.
var ValidObservationKinds = []ObservationKind{
	KindText,
	KindQuickTap,
	KindVoiceTranscript,
	KindVideoCaption,
	KindImageCaption,
}

// IsValid returns true if the observation kind is recognized.
func (k ObservationKind) IsValid() bool {
	for _, v := range ValidObservationKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Observation is a write accepted by the façade but not necessarily in the
// graph yet. It is the element type of the write queue and pending buffer.
type Observation struct {
	ID             string          `json:"id"`
	Namespace      string          `json:"namespace"`
	EpisodeName    string          `json:"episode_name"`
	Content        string          `json:"content"`
	ReferenceTime  time.Time       `json:"reference_time"`
	QueuedAt       time.Time       `json:"queued_at"`
	Kind           ObservationKind `json:"kind"`
	SourceMediaRef string          `json:"source_media_ref,omitempty"`
}

// Episode is the persisted form of an observation.
type Episode struct {
	UUID           string          `json:"uuid"`
	Namespace      string          `json:"group_id"`
	Name           string          `json:"name"`
	Content        string          `json:"content"`
	Kind           ObservationKind `json:"kind"`
	SourceMediaRef string          `json:"source_media_ref,omitempty"`
	ReferenceTime  time.Time       `json:"reference_time"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FactEdge is a typed, temporally bounded statement between two entities,
// owned by the episode that produced it.
type FactEdge struct {
	UUID          string     `json:"uuid"`
	Namespace     string     `json:"group_id"`
	Predicate     string     `json:"name"`
	Fact          string     `json:"fact"`
	SourceUUID    string     `json:"source_uuid"`
	TargetUUID    string     `json:"target_uuid"`
	EpisodeUUID   string     `json:"episode_uuid"`
	ReferenceTime time.Time  `json:"reference_time"`
	ValidAt       time.Time  `json:"valid_at"`
	InvalidAt     *time.Time `json:"invalid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FactEmbedding []float32  `json:"-"`

	// Endpoint descriptors, populated on reads.
	SourceName string     `json:"source_name,omitempty"`
	SourceType EntityType `json:"source_type,omitempty"`
	TargetName string     `json:"target_name,omitempty"`
	TargetType EntityType `json:"target_type,omitempty"`
}

// ActiveAt reports whether the fact is asserted at instant t, i.e. it has no
// invalid_at or invalid_at lies after t.
func (e *FactEdge) ActiveAt(t time.Time) bool {
	return e.InvalidAt == nil || e.InvalidAt.After(t)
}

// ScoredEdge wraps a FactEdge with a retrieval score.
type ScoredEdge struct {
	Edge  FactEdge `json:"edge"`
	Score float64  `json:"score"`
}

// FactResult is one row of a fused search response.
type FactResult struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	ValidAt   string  `json:"valid_at"`
	InvalidAt *string `json:"invalid_at"`
	Pending   bool    `json:"pending"`
}

// QueueEntry describes one pending observation in the queue status report.
type QueueEntry struct {
	ID             string `json:"id"`
	EpisodeName    string `json:"episode_name"`
	Namespace      string `json:"namespace"`
	ReferenceTime  string `json:"reference_time"`
	QueuedAt       string `json:"queued_at"`
	ContentPreview string `json:"content_preview"`
}

// QueueStatus is a point-in-time view of the write queue and pending buffer.
type QueueStatus struct {
	QueueDepth int          `json:"queue_depth"`
	BufferSize int          `json:"buffer_size"`
	Entries    []QueueEntry `json:"entries"`
}
