package models

import (
	"strings"
	"time"
)

// EntityType classifies the kind of entity extracted from an episode.
type EntityType string

const (
	EntityTypeChild             EntityType = "Child"
	EntityTypePerson            EntityType = "Person"
	EntityTypeObject            EntityType = "Object"
	EntityTypeInterestDimension EntityType = "InterestDimension"
	EntityTypeBehavior          EntityType = "Behavior"
	EntityTypeFunction          EntityType = "Function"
	EntityTypeGameSummary       EntityType = "GameSummary"
	EntityTypeAssessment        EntityType = "Assessment"

	// EntityTypeUnknown is produced only by the extraction parser for values
	// outside the lattice. Entities of this type are never persisted.
	EntityTypeUnknown EntityType = ""
)

// ValidEntityTypes is the set of all entity types the graph accepts.
var ValidEntityTypes = []EntityType{
	EntityTypeChild,
	EntityTypePerson,
	EntityTypeObject,
	EntityTypeInterestDimension,
	EntityTypeBehavior,
	EntityTypeFunction,
	EntityTypeGameSummary,
	EntityTypeAssessment,
}

// IsValid returns true if the entity type is recognized.
func (et EntityType) IsValid() bool {
	for i := range ValidEntityTypes {
		if et == ValidEntityTypes[i] {
			return true
		}
	}
	return false
}

// ParseEntityType matches s case-insensitively against the closed type set.
// Unrecognized input yields EntityTypeUnknown.
func ParseEntityType(s string) EntityType {
	s = strings.TrimSpace(s)
	for i := range ValidEntityTypes {
		if strings.EqualFold(s, string(ValidEntityTypes[i])) {
			return ValidEntityTypes[i]
		}
	}
	return EntityTypeUnknown
}

// Entity is a typed, named concept mentioned by at least one episode.
// Identity within a namespace is (Type, CanonicalName).
type Entity struct {
	UUID          string     `json:"uuid"`
	Namespace     string     `json:"group_id"`
	Name          string     `json:"name"`
	CanonicalName string     `json:"canonical_name"`
	Type          EntityType `json:"entity_type"`
	Summary       string     `json:"summary,omitempty"`
	NameEmbedding []float32  `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CanonicalName normalizes an entity name for identity comparison:
// trimmed, inner whitespace collapsed, lower-cased.
func CanonicalName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Community is a derived grouping of entities with a summary. Communities are
// read-only to clients.
type Community struct {
	UUID        string    `json:"uuid"`
	Namespace   string    `json:"group_id"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary"`
	MemberUUIDs []string  `json:"member_uuids"`
	CreatedAt   time.Time `json:"created_at"`
}
