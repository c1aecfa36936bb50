package models

import "strings"

// InterestDimension is one of the eight canonical developmental dimensions.
// The set is closed.
type InterestDimension string

const (
	DimensionVisual       InterestDimension = "Visual"
	DimensionAuditory     InterestDimension = "Auditory"
	DimensionTactile      InterestDimension = "Tactile"
	DimensionMotor        InterestDimension = "Motor"
	DimensionConstruction InterestDimension = "Construction"
	DimensionOrder        InterestDimension = "Order"
	DimensionCognitive    InterestDimension = "Cognitive"
	DimensionSocial       InterestDimension = "Social"
)

// AllDimensions lists the dimensions in canonical order.
var AllDimensions = []InterestDimension{
	DimensionVisual,
	DimensionAuditory,
	DimensionTactile,
	DimensionMotor,
	DimensionConstruction,
	DimensionOrder,
	DimensionCognitive,
	DimensionSocial,
}

// IsValid returns true if d is one of the canonical names.
func (d InterestDimension) IsValid() bool {
	for _, v := range AllDimensions {
		if d == v {
			return true
		}
	}
	return false
}

// ParseDimension matches s case-insensitively against the canonical names.
// It returns false for anything outside the set; values are never coerced.
func ParseDimension(s string) (InterestDimension, bool) {
	s = strings.TrimSpace(s)
	for _, v := range AllDimensions {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	return "", false
}

// DimensionNames returns the canonical names as strings.
func DimensionNames() []string {
	out := make([]string, len(AllDimensions))
	for i, d := range AllDimensions {
		out[i] = string(d)
	}
	return out
}
