package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ajitpratap0/floortime-memory/internal/llm"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// defaultPredicate names relations the model left unlabeled.
const defaultPredicate = "RELATES_TO"

// rawExtraction is the JSON shape the model is asked to produce. Every field is
// untrusted until validate has run.
type rawExtraction struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

type rawEntity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

type rawRelation struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Predicate  string `json:"predicate"`
	Fact       string `json:"fact"`
	ValidAt    string `json:"valid_at"`
	Valence    string `json:"valence"`
	Supersedes bool   `json:"supersedes"`
}

// entityDraft is an entity that passed the lattice.
type entityDraft struct {
	Name    string
	Type    models.EntityType
	Summary string
}

// relationDraft is a relation whose endpoints both passed the lattice.
type relationDraft struct {
	Source     entityDraft
	Target     entityDraft
	Predicate  string
	Fact       string
	ValidAt    time.Time
	Supersedes bool
}

// extraction is the validated model output.
type extraction struct {
	Entities  []entityDraft
	Relations []relationDraft

	// Dropped counts items rejected by the lattice, for logging.
	DroppedEntities  int
	DroppedRelations int
}

// parseExtraction decodes a model response. A response that is not JSON is an
// error; individual items outside the lattice are dropped.
func parseExtraction(text string, referenceTime time.Time) (*extraction, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return validate(raw, referenceTime), nil
}

// validate applies the closed lattice: entity types and dimension names must
// be canonical, valence labels must be in the lexicon. Unknown values are
// dropped rather than coerced.
func validate(raw rawExtraction, referenceTime time.Time) *extraction {
	out := &extraction{}
	byName := make(map[string]entityDraft)
	seen := make(map[string]struct{})

	for _, re := range raw.Entities {
		d, ok := validateEntity(re)
		if !ok {
			out.DroppedEntities++
			continue
		}
		key := string(d.Type) + "\x00" + models.CanonicalName(d.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Entities = append(out.Entities, d)
		// First entity wins a name shared across types.
		if _, ok := byName[models.CanonicalName(d.Name)]; !ok {
			byName[models.CanonicalName(d.Name)] = d
		}
	}

	for _, rr := range raw.Relations {
		src, okS := byName[models.CanonicalName(rr.Source)]
		dst, okT := byName[models.CanonicalName(rr.Target)]
		fact := strings.TrimSpace(rr.Fact)
		if !okS || !okT || fact == "" {
			out.DroppedRelations++
			continue
		}

		validAt, ok := models.ParseReferenceTime(rr.ValidAt, nil)
		if !ok {
			validAt = referenceTime
		}

		if isEngagement(src, dst) {
			fact = withValence(fact, rr.Valence)
		}

		out.Relations = append(out.Relations, relationDraft{
			Source:     src,
			Target:     dst,
			Predicate:  normalizePredicate(rr.Predicate),
			Fact:       fact,
			ValidAt:    validAt.UTC(),
			Supersedes: rr.Supersedes,
		})
	}
	return out
}

func validateEntity(re rawEntity) (entityDraft, bool) {
	name := strings.Join(strings.Fields(re.Name), " ")
	if name == "" {
		return entityDraft{}, false
	}
	et := models.ParseEntityType(re.Type)
	if et == models.EntityTypeUnknown {
		return entityDraft{}, false
	}
	if et == models.EntityTypeInterestDimension {
		dim, ok := models.ParseDimension(name)
		if !ok {
			return entityDraft{}, false
		}
		name = string(dim)
	}
	return entityDraft{Name: name, Type: et, Summary: strings.TrimSpace(re.Summary)}, true
}

// isEngagement reports whether a relation feeds the trend series.
func isEngagement(src, dst entityDraft) bool {
	return src.Type == models.EntityTypeChild && dst.Type == models.EntityTypeInterestDimension
}

// withValence appends "(valence: <label>)" when the fact does not already
// carry a lexicon token and the model supplied a valid label.
func withValence(fact, label string) string {
	if _, ok := models.ValenceOf(fact); ok {
		return fact
	}
	v, ok := models.ParseValenceLabel(label)
	if !ok {
		return fact
	}
	return fact + " (valence: " + v.Label() + ")"
}

// normalizePredicate renders a predicate as UPPER_SNAKE_CASE.
func normalizePredicate(p string) string {
	var b strings.Builder
	lastUnderscore := true
	var prev rune
	for _, r := range strings.TrimSpace(p) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		prev = r
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return defaultPredicate
	}
	return out
}
