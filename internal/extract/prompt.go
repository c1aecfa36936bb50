package extract

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/pkg/xmlutil"
)

// systemPrompt fixes the output contract. The entity-type, dimension and
// valence vocabularies are formatted in from the model package so the prompt
// and the validator can never disagree.
var systemPrompt = fmt.Sprintf(`You are a precise knowledge-graph extraction system for DIR/Floortime play observations. Output only valid JSON.

Entity types (use exactly one of): %s.
InterestDimension entities must be named with exactly one of: %s.
Valence labels (use exactly one of): %s.

Rules:
- The observed child is an entity of type Child.
- Every engagement observation is a relation from the Child to an InterestDimension entity, with a "valence" label.
- Each relation's valid_at is when the fact became true according to the text (ISO-8601). Omit it if the text gives no time.
- Set "supersedes": true when a relation replaces an earlier fact about the same subject and predicate (for example a new favourite toy).
- Do not invent entity types, dimensions or valence labels outside these lists.`,
	joinQuoted(entityTypeNames()),
	joinQuoted(models.DimensionNames()),
	joinQuoted(valenceLabels()),
)

// userPromptTemplate carries the episode. Every interpolated value is
// XML-escaped by buildPrompt.
const userPromptTemplate = `Extract entities and relations from the observation below.

Return a JSON object with this exact schema:
{"entities":[{"name":"...","type":"...","summary":"..."}],
 "relations":[{"source":"<entity name>","target":"<entity name>","predicate":"UPPER_SNAKE_CASE","fact":"<one sentence>","valid_at":"<ISO-8601 or empty>","valence":"<label or empty>","supersedes":false}]}

%s
%s
%s
%s
%s
%s`

type promptInput struct {
	EpisodeName   string
	Content       string
	ReferenceTime string
	Instructions  string
	Hints         []models.InterestDimension
	Previous      []models.Episode
}

func buildPrompt(in promptInput) string {
	hints := make([]string, len(in.Hints))
	for i, h := range in.Hints {
		hints[i] = string(h)
	}
	previous := make([]string, 0, len(in.Previous))
	for i := range in.Previous {
		ep := &in.Previous[i]
		previous = append(previous, models.FormatISO(ep.ReferenceTime)+" "+ep.Content)
	}

	return fmt.Sprintf(userPromptTemplate,
		"<previous_episodes>\n"+xmlutil.TagLines("episode", previous)+"\n</previous_episodes>",
		xmlutil.Tag("likely_dimensions", strings.Join(hints, ", ")),
		xmlutil.Tag("instructions", in.Instructions),
		xmlutil.Tag("episode_name", in.EpisodeName),
		xmlutil.Tag("reference_time", in.ReferenceTime),
		xmlutil.Tag("observation", in.Content),
	)
}

func entityTypeNames() []string {
	out := make([]string, len(models.ValidEntityTypes))
	for i, et := range models.ValidEntityTypes {
		out[i] = string(et)
	}
	return out
}

func valenceLabels() []string {
	return []string{
		models.LabelStronglyPositive,
		models.LabelMildlyPositive,
		models.LabelNeutral,
		models.LabelMildlyNegative,
		models.LabelStronglyNegative,
	}
}

func joinQuoted(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, ", ")
}
