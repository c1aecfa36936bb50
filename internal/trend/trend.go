// Package trend derives per-dimension time series from a child's engagement
// facts and computes trend direction, milestones and correlations. It never
// writes to the graph.
package trend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

// Direction classifies a dimension's trajectory.
type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

const (
	// slopeThreshold is the per-day slope beyond which a trend is not stable.
	slopeThreshold = 0.05

	// minImprovingPoints is the smallest series that can be called improving.
	minImprovingPoints = 3

	// ratePeriodDays expresses the slope per this many days.
	ratePeriodDays = 30

	// milestoneWindow is how far back an earlier strongly positive fact
	// suppresses a milestone.
	milestoneWindow = 30 * 24 * time.Hour

	// minOverlapDays is the fewest shared days a correlation needs.
	minOverlapDays = 7

	defaultCacheSize = 1024
	defaultCacheTTL  = 6 * time.Hour
	dateLayout       = "2006-01-02"
)

// DataPoint is one day's value for a dimension.
type DataPoint struct {
	Date     string         `json:"date"`
	Value    models.Valence `json:"value"`
	Fact     string         `json:"fact"`
	EdgeUUID string         `json:"edge_uuid"`
}

// DimensionTrend is the trend report for one dimension.
type DimensionTrend struct {
	Dimension  models.InterestDimension `json:"dimension"`
	Trend      Direction                `json:"trend"`
	Slope      float64                  `json:"slope"`
	Rate       float64                  `json:"rate"`
	Confidence float64                  `json:"confidence"`
	DataPoints int                      `json:"data_points"`
	Points     []DataPoint              `json:"points"`
}

// Milestone is a strongly positive fact with no strongly positive
// predecessor in the preceding 30 days.
type Milestone struct {
	Dimension models.InterestDimension `json:"dimension"`
	ValidAt   string                   `json:"valid_at"`
	Fact      string                   `json:"fact"`
	EdgeUUID  string                   `json:"edge_uuid"`
}

// Correlation is the Pearson r between two dimensions' daily values.
type Correlation struct {
	DimensionA  models.InterestDimension `json:"dimension_a"`
	DimensionB  models.InterestDimension `json:"dimension_b"`
	R           float64                  `json:"r"`
	OverlapDays int                      `json:"overlap_days"`
}

// Config tunes an Analyzer.
type Config struct {
	CacheSize      int
	CacheTTL       time.Duration
	MinCorrelation float64
}

// Analyzer computes trend analytics over the graph.
type Analyzer struct {
	store   graph.Store
	cache   *expirable.LRU[string, []Correlation]
	minCorr float64
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer creates an analyzer reading from store.
func NewAnalyzer(store graph.Store, cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MinCorrelation <= 0 {
		cfg.MinCorrelation = 0.3
	}
	return &Analyzer{
		store:   store,
		cache:   expirable.NewLRU[string, []Correlation](cfg.CacheSize, nil, cfg.CacheTTL),
		minCorr: cfg.MinCorrelation,
		logger:  logger,
		now:     time.Now,
	}
}

// scoredFact is an engagement fact with a recognized valence.
type scoredFact struct {
	dimension models.InterestDimension
	value     models.Valence
	edge      models.FactEdge
}

// facts reads the namespace's engagement facts in valid_at order, skipping
// those without a dimension target or a valence token.
func (a *Analyzer) facts(ctx context.Context, ns string) ([]scoredFact, error) {
	edges, err := a.store.GetEdgesForChild(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("reading engagement edges: %w", err)
	}
	out := make([]scoredFact, 0, len(edges))
	skipped := 0
	for _, e := range edges {
		dim, ok := models.ParseDimension(e.TargetName)
		if !ok {
			skipped++
			continue
		}
		v, ok := models.ValenceOf(e.Fact)
		if !ok {
			skipped++
			continue
		}
		out = append(out, scoredFact{dimension: dim, value: v, edge: e})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].edge.ValidAt.Before(out[j].edge.ValidAt) })
	if skipped > 0 {
		a.logger.Debug("engagement facts skipped", "namespace", ns, "skipped", skipped)
	}
	return out, nil
}

// dailySeries aggregates facts to one point per UTC day per dimension; the
// latest fact of the day wins.
func dailySeries(facts []scoredFact) map[models.InterestDimension][]DataPoint {
	series := make(map[models.InterestDimension][]DataPoint)
	for _, f := range facts {
		p := DataPoint{
			Date:     f.edge.ValidAt.UTC().Format(dateLayout),
			Value:    f.value,
			Fact:     f.edge.Fact,
			EdgeUUID: f.edge.UUID,
		}
		pts := series[f.dimension]
		if n := len(pts); n > 0 && pts[n-1].Date == p.Date {
			pts[n-1] = p
		} else {
			pts = append(pts, p)
		}
		series[f.dimension] = pts
	}
	return series
}

// classify fits a line through the points against days since the first one.
func classify(dim models.InterestDimension, pts []DataPoint) DimensionTrend {
	t := DimensionTrend{Dimension: dim, Trend: Stable, DataPoints: len(pts), Points: pts}
	if t.Points == nil {
		t.Points = []DataPoint{}
	}
	if len(pts) < 2 {
		return t
	}
	first, _ := time.Parse(dateLayout, pts[0].Date)
	x := make([]float64, len(pts))
	y := make([]float64, len(pts))
	for i, p := range pts {
		d, _ := time.Parse(dateLayout, p.Date)
		x[i] = d.Sub(first).Hours() / 24
		y[i] = float64(p.Value)
	}
	f := linearFit(x, y)

	t.Slope = round(f.slope)
	t.Rate = round(f.slope * ratePeriodDays)
	t.Confidence = round(f.confidence())
	switch {
	case f.slope >= slopeThreshold && len(pts) >= minImprovingPoints:
		t.Trend = Improving
	case f.slope <= -slopeThreshold:
		t.Trend = Declining
	}
	return t
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Trends reports every dimension that has at least one data point, in
// canonical dimension order.
func (a *Analyzer) Trends(ctx context.Context, ns string) ([]DimensionTrend, error) {
	facts, err := a.facts(ctx, ns)
	if err != nil {
		return nil, err
	}
	series := dailySeries(facts)
	out := make([]DimensionTrend, 0, len(series))
	for _, dim := range models.AllDimensions {
		if pts, ok := series[dim]; ok {
			out = append(out, classify(dim, pts))
		}
	}
	return out, nil
}

// Trend reports one dimension. A dimension with no data is stable with zero
// points.
func (a *Analyzer) Trend(ctx context.Context, ns string, dim models.InterestDimension) (*DimensionTrend, error) {
	facts, err := a.facts(ctx, ns)
	if err != nil {
		return nil, err
	}
	t := classify(dim, dailySeries(facts)[dim])
	return &t, nil
}

// Summary describes the improving and declining dimensions in plain words.
func (a *Analyzer) Summary(ctx context.Context, ns string) (string, error) {
	trends, err := a.Trends(ctx, ns)
	if err != nil {
		return "", err
	}
	return Summarize(trends), nil
}

// Summarize renders trends as the engagement summary sentence.
func Summarize(trends []DimensionTrend) string {
	var improving, declining []string
	for _, t := range trends {
		switch t.Trend {
		case Improving:
			improving = append(improving, fmt.Sprintf("%s (%+.2f per %d days)", t.Dimension, t.Rate, ratePeriodDays))
		case Declining:
			declining = append(declining, fmt.Sprintf("%s (%+.2f per %d days)", t.Dimension, t.Rate, ratePeriodDays))
		}
	}
	if len(improving) == 0 && len(declining) == 0 {
		return "No significant changes in engagement across dimensions."
	}
	var parts []string
	if len(improving) > 0 {
		parts = append(parts, "Improving engagement in "+strings.Join(improving, ", ")+".")
	}
	if len(declining) > 0 {
		parts = append(parts, "Declining engagement in "+strings.Join(declining, ", ")+".")
	}
	return strings.Join(parts, " ")
}

// Milestones returns milestone facts, oldest first. days > 0 keeps only
// those within the trailing window; a non-empty dim keeps one dimension.
func (a *Analyzer) Milestones(ctx context.Context, ns string, days int, dim models.InterestDimension) ([]Milestone, error) {
	facts, err := a.facts(ctx, ns)
	if err != nil {
		return nil, err
	}
	var cutoff time.Time
	if days > 0 {
		cutoff = a.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	}

	lastPeak := make(map[models.InterestDimension]time.Time)
	out := []Milestone{}
	for _, f := range facts {
		if f.value != models.ValenceStronglyPositive {
			continue
		}
		at := f.edge.ValidAt
		prev, seen := lastPeak[f.dimension]
		lastPeak[f.dimension] = at
		if seen && !prev.Before(at.Add(-milestoneWindow)) {
			continue
		}
		if dim != "" && f.dimension != dim {
			continue
		}
		if !cutoff.IsZero() && at.Before(cutoff) {
			continue
		}
		out = append(out, Milestone{
			Dimension: f.dimension,
			ValidAt:   models.FormatISO(at),
			Fact:      f.edge.Fact,
			EdgeUUID:  f.edge.UUID,
		})
	}
	return out, nil
}

// Correlations returns dimension pairs with |r| >= minCorr, using the cached
// computation when one is present. A minCorr of 0 returns every pair.
func (a *Analyzer) Correlations(ctx context.Context, ns string, minCorr float64) ([]Correlation, error) {
	all, ok := a.cache.Get(ns)
	if !ok {
		var err error
		if all, err = a.computeCorrelations(ctx, ns); err != nil {
			return nil, err
		}
	}
	return a.filter(all, minCorr), nil
}

// RefreshCorrelations recomputes and caches the namespace's correlations and
// returns those at the default threshold.
func (a *Analyzer) RefreshCorrelations(ctx context.Context, ns string) ([]Correlation, error) {
	a.cache.Remove(ns)
	all, err := a.computeCorrelations(ctx, ns)
	if err != nil {
		return nil, err
	}
	return a.filter(all, a.minCorr), nil
}

// Forget drops cached results for a namespace.
func (a *Analyzer) Forget(ns string) {
	a.cache.Remove(ns)
}

func (a *Analyzer) filter(all []Correlation, minCorr float64) []Correlation {
	out := []Correlation{}
	for _, c := range all {
		if math.Abs(c.R) >= minCorr {
			out = append(out, c)
		}
	}
	return out
}

// computeCorrelations correlates every dimension pair over shared days and
// caches the unfiltered result.
func (a *Analyzer) computeCorrelations(ctx context.Context, ns string) ([]Correlation, error) {
	facts, err := a.facts(ctx, ns)
	if err != nil {
		return nil, err
	}
	series := dailySeries(facts)
	byDate := make(map[models.InterestDimension]map[string]float64, len(series))
	for dim, pts := range series {
		m := make(map[string]float64, len(pts))
		for _, p := range pts {
			m[p.Date] = float64(p.Value)
		}
		byDate[dim] = m
	}

	var out []Correlation
	for i, da := range models.AllDimensions {
		for _, db := range models.AllDimensions[i+1:] {
			pa, pb := series[da], byDate[db]
			if len(pa) < minOverlapDays || len(pb) < minOverlapDays {
				continue
			}
			var x, y []float64
			for _, p := range pa {
				if v, ok := pb[p.Date]; ok {
					x = append(x, float64(p.Value))
					y = append(y, v)
				}
			}
			if len(x) < minOverlapDays {
				continue
			}
			r, ok := pearson(x, y)
			if !ok {
				continue
			}
			out = append(out, Correlation{DimensionA: da, DimensionB: db, R: round(r), OverlapDays: len(x)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return math.Abs(out[i].R) > math.Abs(out[j].R) })
	a.cache.Add(ns, out)
	a.logger.Debug("correlations computed", "namespace", ns, "pairs", len(out))
	return out, nil
}
