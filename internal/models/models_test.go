package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var digestNamespace = regexp.MustCompile(`^grp_[0-9a-f]{12}$`)

func TestNormalizeNamespace_PreservesSafeInput(t *testing.T) {
	for _, in := range []string{"child-01", "child_02", "ABC", "a", "grp_0123456789ab"} {
		assert.Equal(t, in, NormalizeNamespace(in))
	}
}

func TestNormalizeNamespace_DigestsUnsafeInput(t *testing.T) {
	for _, in := range []string{"child/03!", "", "with space", "ünïcode", "a.b"} {
		out := NormalizeNamespace(in)
		assert.Regexp(t, digestNamespace, out, "input %q", in)
	}
}

func TestNormalizeNamespace_Idempotent(t *testing.T) {
	for _, in := range []string{"child/03!", "child-01", "", "x y z"} {
		once := NormalizeNamespace(in)
		assert.Equal(t, once, NormalizeNamespace(once))
	}
}

func TestNormalizeNamespace_Deterministic(t *testing.T) {
	assert.Equal(t, NormalizeNamespace("child/03!"), NormalizeNamespace("child/03!"))
	assert.NotEqual(t, NormalizeNamespace("child/03!"), NormalizeNamespace("child/04!"))
}

func TestParseReferenceTime(t *testing.T) {
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	now := func() time.Time { return fixed }

	tests := []struct {
		in     string
		want   string
		parsed bool
	}{
		{"2025-03-01T10:00:00Z", "2025-03-01T10:00:00+00:00", true},
		{"2025-03-01T10:00:00+02:00", "2025-03-01T10:00:00+02:00", true},
		{"2025-03-01T10:00:00", "2025-03-01T10:00:00+00:00", true},
		{"2025-03-01", "2025-03-01T00:00:00+00:00", true},
		{"2025-03-01T10:00:00.5Z", "2025-03-01T10:00:00.500000+00:00", true},
		{"", "2030-01-02T03:04:05+00:00", false},
		{"yesterday afternoon", "2030-01-02T03:04:05+00:00", false},
	}
	for _, tc := range tests {
		got, ok := ParseReferenceTime(tc.in, now)
		assert.Equal(t, tc.parsed, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, FormatISO(got), "input %q", tc.in)
	}
}

func TestFormatISO_MicrosecondFraction(t *testing.T) {
	assert.Equal(t, "2025-03-01T10:00:00.500000+00:00", FormatISO(time.Date(2025, 3, 1, 10, 0, 0, 500_000_000, time.UTC)))
	assert.Equal(t, "2025-03-01T10:00:00.000120+00:00", FormatISO(time.Date(2025, 3, 1, 10, 0, 0, 120_000, time.UTC)))
	assert.Equal(t, "2025-03-01T10:00:00+00:00", FormatISO(time.Date(2025, 3, 1, 10, 0, 0, 999, time.UTC)),
		"sub-microsecond remainders are truncated")
}

func TestFormatISOPtr(t *testing.T) {
	assert.Nil(t, FormatISOPtr(nil))
	ts := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	got := FormatISOPtr(&ts)
	require.NotNil(t, got)
	assert.Equal(t, "2025-03-02T00:00:00+00:00", *got)
}

func TestParseDimension(t *testing.T) {
	d, ok := ParseDimension("construction")
	require.True(t, ok)
	assert.Equal(t, DimensionConstruction, d)

	_, ok = ParseDimension("Musical")
	assert.False(t, ok, "dimension set is closed")
	assert.Len(t, DimensionNames(), 8)
}

func TestParseEntityType(t *testing.T) {
	assert.Equal(t, EntityTypeInterestDimension, ParseEntityType("interestdimension"))
	assert.Equal(t, EntityTypeUnknown, ParseEntityType("Animal"))
	assert.False(t, EntityTypeUnknown.IsValid())
}

func TestValenceOf(t *testing.T) {
	tests := []struct {
		fact string
		want Valence
		ok   bool
	}{
		{"Leo engaged with Visual play (valence: strongly positive)", ValenceStronglyPositive, true},
		{"Leo showed mildly positive interest in music", ValenceMildlyPositive, true},
		{"Reaction was neutral", ValenceNeutral, true},
		{"Leo was mildly negative toward loud sounds", ValenceMildlyNegative, true},
		{"strongly negative response to touch", ValenceStronglyNegative, true},
		{"Leo ate lunch", 0, false},
	}
	for _, tc := range tests {
		v, ok := ValenceOf(tc.fact)
		assert.Equal(t, tc.ok, ok, tc.fact)
		if tc.ok {
			assert.Equal(t, tc.want, v, tc.fact)
		}
	}
}

func TestParseValenceLabel(t *testing.T) {
	v, ok := ParseValenceLabel("Strongly_Positive")
	require.True(t, ok)
	assert.Equal(t, ValenceStronglyPositive, v)
	assert.Equal(t, LabelStronglyPositive, v.Label())

	_, ok = ParseValenceLabel("ecstatic")
	assert.False(t, ok)
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "wooden blocks", CanonicalName("  Wooden   Blocks "))
}

func TestFactEdge_ActiveAt(t *testing.T) {
	now := time.Now().UTC()
	e := FactEdge{}
	assert.True(t, e.ActiveAt(now))
	past := now.Add(-time.Hour)
	e.InvalidAt = &past
	assert.False(t, e.ActiveAt(now))
	future := now.Add(time.Hour)
	e.InvalidAt = &future
	assert.True(t, e.ActiveAt(now))
}
