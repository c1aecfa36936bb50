package classifier

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// Classifier suggests which interest dimensions an observation touches.
// The suggestions are hints for the extraction prompt, not assertions.
type Classifier interface {
	Classify(content string) []models.InterestDimension
}

// DimensionClassifier uses keyword rules per dimension.
type DimensionClassifier struct {
	logger *slog.Logger
}

// NewClassifier creates a new keyword-based dimension classifier.
func NewClassifier(logger *slog.Logger) *DimensionClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DimensionClassifier{logger: logger}
}

// dimensionPatterns are lower-case substrings that suggest each dimension.
var dimensionPatterns = map[models.InterestDimension][]string{
	models.DimensionVisual: {
		"look", "watch", "stare", "color", "colour", "light", "bubble",
		"picture", "book", "screen", "spin", "shiny", "mirror",
	},
	models.DimensionAuditory: {
		"music", "song", "sing", "sound", "listen", "noise", "drum",
		"hum", "voice", "loud", "quiet", "rhyme", "bell",
	},
	models.DimensionTactile: {
		"touch", "texture", "sand", "water", "squish", "play-doh", "playdough",
		"slime", "soft", "rub", "feel", "messy", "hug",
	},
	models.DimensionMotor: {
		"climb", "jump", "run", "swing", "crawl", "throw", "kick",
		"bounce", "balance", "ride", "dance", "slide", "trampoline",
	},
	models.DimensionConstruction: {
		"build", "block", "lego", "tower", "stack", "puzzle", "assemble",
		"construct", "track", "duplo", "magnet tile",
	},
	models.DimensionOrder: {
		"line up", "lined up", "sort", "arrange", "organize", "organise",
		"routine", "same way", "pattern", "match", "in order", "category",
	},
	models.DimensionCognitive: {
		"count", "number", "letter", "pretend", "problem", "figure out",
		"memory", "remember", "question", "why", "shape", "read",
	},
	models.DimensionSocial: {
		"peer", "friend", "sibling", "share", "turn", "together", "eye contact",
		"smile", "laugh", "peekaboo", "tickle", "wave", "mom", "dad",
	},
}

// Classify returns the dimensions whose patterns occur in content, strongest
// match first. Ties keep the canonical dimension order.
func (c *DimensionClassifier) Classify(content string) []models.InterestDimension {
	lower := strings.ToLower(content)

	type hit struct {
		dim   models.InterestDimension
		score int
	}
	var hits []hit
	for _, dim := range models.AllDimensions {
		score := 0
		for _, p := range dimensionPatterns[dim] {
			if strings.Contains(lower, p) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{dim: dim, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]models.InterestDimension, len(hits))
	for i := range hits {
		out[i] = hits[i].dim
	}
	c.logger.Debug("classified dimensions", "dimensions", out)
	return out
}
