package models

import (
	"strings"
	"time"
)

// isoLayout renders instants with a numeric offset ("+00:00", never "Z").
// isoMicroLayout adds a fixed six-digit fraction for sub-second instants.
const (
	isoLayout      = "2006-01-02T15:04:05-07:00"
	isoMicroLayout = "2006-01-02T15:04:05.000000-07:00"
)

// zonedLayouts are tried in order for inputs that carry an offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// naiveLayouts are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseReferenceTime parses an ISO-8601 timestamp. Naive inputs are taken as
// UTC. ok is false when s is empty or unparseable, in which case the
// returned time is now in UTC.
func ParseReferenceTime(s string, now func() time.Time) (t time.Time, ok bool) {
	if now == nil {
		now = time.Now
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return now().UTC(), false
	}
	for _, layout := range zonedLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed, true
		}
	}
	return now().UTC(), false
}

// FormatISO renders t as ISO-8601 with an explicit numeric offset, e.g.
// "2025-03-01T10:00:00+00:00". A non-zero fraction is truncated to
// microseconds and always printed with six digits.
func FormatISO(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(isoMicroLayout)
	}
	return t.Format(isoLayout)
}

// FormatISOPtr is FormatISO for optional instants.
func FormatISOPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatISO(*t)
	return &s
}
