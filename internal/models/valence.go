package models

import (
	"strings"
)

// Valence is the signed engagement intensity carried by a dimension fact.
type Valence int

const (
	ValenceStronglyNegative Valence = -2
	ValenceMildlyNegative   Valence = -1
	ValenceNeutral          Valence = 0
	ValenceMildlyPositive   Valence = 1
	ValenceStronglyPositive Valence = 2
)

// Canonical valence labels, as written into fact sentences.
const (
	LabelStronglyPositive = "strongly positive"
	LabelMildlyPositive   = "mildly positive"
	LabelNeutral          = "neutral"
	LabelMildlyNegative   = "mildly negative"
	LabelStronglyNegative = "strongly negative"
)

type valenceToken struct {
	token string
	value Valence
}

// valenceLexicon is ordered longest token first so that "strongly negative"
// is never read as a bare "negative"-style shorter match.
var valenceLexicon = []valenceToken{
	{LabelStronglyPositive, ValenceStronglyPositive},
	{LabelStronglyNegative, ValenceStronglyNegative},
	{"slightly positive", ValenceMildlyPositive},
	{"slightly negative", ValenceMildlyNegative},
	{LabelMildlyPositive, ValenceMildlyPositive},
	{LabelMildlyNegative, ValenceMildlyNegative},
	{"very positive", ValenceStronglyPositive},
	{"very negative", ValenceStronglyNegative},
	{LabelNeutral, ValenceNeutral},
}

// Label returns the canonical label for v.
func (v Valence) Label() string {
	switch {
	case v >= ValenceStronglyPositive:
		return LabelStronglyPositive
	case v == ValenceMildlyPositive:
		return LabelMildlyPositive
	case v == ValenceNeutral:
		return LabelNeutral
	case v == ValenceMildlyNegative:
		return LabelMildlyNegative
	default:
		return LabelStronglyNegative
	}
}

// ParseValenceLabel maps an extractor-supplied label onto the lexicon.
// Labels outside the lexicon are rejected.
func ParseValenceLabel(label string) (Valence, bool) {
	l := strings.ToLower(strings.Join(strings.Fields(label), " "))
	l = strings.ReplaceAll(l, "_", " ")
	for _, t := range valenceLexicon {
		if l == t.token {
			return t.value, true
		}
	}
	return 0, false
}

// ValenceOf scans a fact sentence for a recognized valence token and returns
// the first match in lexicon order. ok is false when the sentence carries no
// valence.
func ValenceOf(fact string) (v Valence, ok bool) {
	lower := strings.ToLower(strings.ReplaceAll(fact, "_", " "))
	for _, t := range valenceLexicon {
		if strings.Contains(lower, t.token) {
			return t.value, true
		}
	}
	return 0, false
}
