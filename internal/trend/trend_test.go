package trend

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/models"
)

var day0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fixture writes engagement facts for one child into a MemStore.
type fixture struct {
	t     *testing.T
	store *graph.MemStore
	ns    string
	n     int
}

func newFixture(t *testing.T, ns string) *fixture {
	return &fixture{t: t, store: graph.NewMemStore(), ns: ns}
}

func (f *fixture) add(dim models.InterestDimension, at time.Time, fact string) {
	f.t.Helper()
	f.n++
	child := models.Entity{UUID: "child", Name: "Leo", Type: models.EntityTypeChild}
	target := models.Entity{UUID: "dim-" + string(dim), Name: string(dim), Type: models.EntityTypeInterestDimension}
	id := fmt.Sprintf("%s-%d", f.ns, f.n)
	require.NoError(f.t, f.store.AddEpisode(context.Background(), graph.EpisodeWrite{
		Episode:  models.Episode{UUID: "ep-" + id, Namespace: f.ns, Content: fact, ReferenceTime: at, CreatedAt: at},
		Entities: []models.Entity{child, target},
		Edges: []models.FactEdge{{
			UUID: "edge-" + id, Predicate: "SHOWS_ENGAGEMENT",
			Fact:       fact,
			SourceName: child.Name, SourceType: child.Type,
			TargetName: target.Name, TargetType: target.Type,
			ReferenceTime: at, ValidAt: at, CreatedAt: at,
		}},
	}))
}

func (f *fixture) series(dim models.InterestDimension, values ...models.Valence) {
	f.t.Helper()
	for i, v := range values {
		f.add(dim, day0.Add(time.Duration(i)*24*time.Hour), fmt.Sprintf("Leo engaged with %s (valence: %s)", dim, v.Label()))
	}
}

func (f *fixture) analyzer() *Analyzer {
	return NewAnalyzer(f.store, Config{}, nil)
}

func TestTrend_Classification(t *testing.T) {
	tests := []struct {
		name   string
		values []models.Valence
		want   Direction
	}{
		{"increasing", []models.Valence{-2, -1, 0, 1, 2}, Improving},
		{"constant", []models.Valence{1, 1, 1, 1}, Stable},
		{"decreasing", []models.Valence{2, 1, 0, -1}, Declining},
		{"two rising points are not enough to improve", []models.Valence{0, 2}, Stable},
		{"two falling points decline", []models.Valence{2, 0}, Declining},
		{"single point", []models.Valence{2}, Stable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "child-01")
			f.series(models.DimensionMotor, tc.values...)
			got, err := f.analyzer().Trend(context.Background(), "child-01", models.DimensionMotor)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Trend)
			assert.Equal(t, len(tc.values), got.DataPoints)
		})
	}
}

func TestTrend_RateAndConfidence(t *testing.T) {
	f := newFixture(t, "c")
	f.series(models.DimensionVisual, -2, -1, 0, 1, 2)
	got, err := f.analyzer().Trend(context.Background(), "c", models.DimensionVisual)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Slope, 1e-9)
	assert.InDelta(t, 30.0, got.Rate, 1e-9)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9, "perfect fit")

	f = newFixture(t, "c")
	f.series(models.DimensionVisual, 0, 2, 0, 2, 1)
	got, err = f.analyzer().Trend(context.Background(), "c", models.DimensionVisual)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Confidence, 0.0)
	assert.Less(t, got.Confidence, 1.0)
}

func TestTrend_DailyAggregationKeepsLatestFact(t *testing.T) {
	f := newFixture(t, "c")
	f.add(models.DimensionSocial, day0, "Leo smiled (valence: strongly negative)")
	f.add(models.DimensionSocial, day0.Add(2*time.Hour), "Leo laughed (valence: strongly positive)")
	f.add(models.DimensionSocial, day0.Add(time.Hour), "Leo waved (valence: neutral)")
	f.add(models.DimensionSocial, day0.Add(24*time.Hour), "Leo looked away")

	got, err := f.analyzer().Trend(context.Background(), "c", models.DimensionSocial)
	require.NoError(t, err)
	require.Len(t, got.Points, 1, "facts without valence are skipped")
	assert.Equal(t, "2025-03-01", got.Points[0].Date)
	assert.Equal(t, models.ValenceStronglyPositive, got.Points[0].Value)
}

func TestTrend_ThreeVisualDays(t *testing.T) {
	f := newFixture(t, "child-02")
	f.series(models.DimensionVisual, 2, 2, 1)
	got, err := f.analyzer().Trend(context.Background(), "child-02", models.DimensionVisual)
	require.NoError(t, err)
	require.Equal(t, 3, got.DataPoints)
	values := []models.Valence{got.Points[0].Value, got.Points[1].Value, got.Points[2].Value}
	assert.Equal(t, []models.Valence{2, 2, 1}, values)
	assert.InDelta(t, -0.5, got.Slope, 1e-9)
}

func TestTrends_CanonicalOrderAndSummary(t *testing.T) {
	f := newFixture(t, "c")
	f.series(models.DimensionSocial, 2, 1, 0)
	f.series(models.DimensionVisual, 0, 1, 2)
	f.series(models.DimensionMotor, 1, 1, 1)

	a := f.analyzer()
	trends, err := a.Trends(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, trends, 3)
	assert.Equal(t, models.DimensionVisual, trends[0].Dimension)
	assert.Equal(t, models.DimensionMotor, trends[1].Dimension)
	assert.Equal(t, models.DimensionSocial, trends[2].Dimension)

	s, err := a.Summary(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "Improving engagement in Visual (+30.00 per 30 days). Declining engagement in Social (-30.00 per 30 days).", s)
	assert.NotContains(t, s, "Motor")

	empty, err := newFixture(t, "x").analyzer().Summary(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "No significant changes in engagement across dimensions.", empty)
}

func TestMilestones(t *testing.T) {
	f := newFixture(t, "c")
	f.add(models.DimensionMotor, day0, "first climb (valence: strongly positive)")
	f.add(models.DimensionMotor, day0.Add(10*24*time.Hour), "climbed again (valence: strongly positive)")
	f.add(models.DimensionMotor, day0.Add(50*24*time.Hour), "climbed the frame (valence: strongly positive)")
	f.add(models.DimensionVisual, day0.Add(5*24*time.Hour), "watched lights (valence: strongly positive)")
	f.add(models.DimensionVisual, day0.Add(6*24*time.Hour), "watched bubbles (valence: mildly positive)")

	a := f.analyzer()
	a.now = func() time.Time { return day0.Add(60 * 24 * time.Hour) }
	ctx := context.Background()

	all, err := a.Milestones(ctx, "c", 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first climb (valence: strongly positive)", all[0].Fact)
	assert.Equal(t, models.DimensionVisual, all[1].Dimension)
	assert.Equal(t, "climbed the frame (valence: strongly positive)", all[2].Fact)
	assert.Equal(t, "2025-04-20T09:00:00+00:00", all[2].ValidAt)

	motor, err := a.Milestones(ctx, "c", 0, models.DimensionMotor)
	require.NoError(t, err)
	assert.Len(t, motor, 2)

	recent, err := a.Milestones(ctx, "c", 20, "")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "climbed the frame (valence: strongly positive)", recent[0].Fact)
}

func TestCorrelations(t *testing.T) {
	f := newFixture(t, "c")
	f.series(models.DimensionVisual, -2, -1, 0, 1, 2, 1, 0)
	f.series(models.DimensionSocial, -2, -1, 0, 1, 2, 1, 0)
	f.series(models.DimensionMotor, 2, 1, 0, -1, -2, -1, 0)
	f.series(models.DimensionOrder, 1, 1, 1, 1, 1, 1, 1) // constant: undefined r
	f.series(models.DimensionTactile, -2, -1, 0, 1, 2, 1) // six days only

	a := f.analyzer()
	got, err := a.Correlations(context.Background(), "c", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, c := range got {
		assert.InDelta(t, 1.0, math.Abs(c.R), 1e-9)
		assert.Equal(t, 7, c.OverlapDays)
		assert.NotEqual(t, models.DimensionOrder, c.DimensionA)
		assert.NotEqual(t, models.DimensionOrder, c.DimensionB)
		assert.NotEqual(t, models.DimensionTactile, c.DimensionB)
	}
}

func TestCorrelations_ZeroThresholdKeepsWeakPairs(t *testing.T) {
	f := newFixture(t, "c")
	f.series(models.DimensionVisual, -2, -1, 0, 1, 2, 1, 0)
	f.series(models.DimensionTactile, 1, 0, 0, 0, 1, 0, -1) // r is about -0.026

	a := f.analyzer()
	ctx := context.Background()
	all, err := a.Correlations(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Less(t, math.Abs(all[0].R), 0.3)

	strong, err := a.Correlations(ctx, "c", 0.3)
	require.NoError(t, err)
	assert.Empty(t, strong)
}

func TestCorrelations_CachedUntilRefresh(t *testing.T) {
	f := newFixture(t, "c")
	f.series(models.DimensionVisual, -2, -1, 0, 1, 2, 1, 0)
	f.series(models.DimensionSocial, -2, -1, 0, 1, 2, 1, 0)

	a := f.analyzer()
	ctx := context.Background()
	first, err := a.Correlations(ctx, "c", 0.3)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new dimension is not visible through the cache.
	f.series(models.DimensionMotor, 2, 1, 0, -1, -2, -1, 0)
	cached, err := a.Correlations(ctx, "c", 0.3)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	refreshed, err := a.RefreshCorrelations(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, refreshed, 3)

	a.Forget("c")
	f.store.SetUnavailable(true)
	_, err = a.Correlations(ctx, "c", 0.3)
	assert.ErrorIs(t, err, graph.ErrGraphUnavailable)
}

func TestLinearFit(t *testing.T) {
	f := linearFit([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7})
	assert.InDelta(t, 2.0, f.slope, 1e-9)
	assert.InDelta(t, 0.0, f.se, 1e-9)

	f = linearFit([]float64{0, 1, 2}, []float64{0, 2, 1})
	assert.InDelta(t, 0.5, f.slope, 1e-9)
	// residuals -0.5, 1, -0.5: SSR 1.5, SE = sqrt(1.5/1/2)
	assert.InDelta(t, math.Sqrt(0.75), f.se, 1e-9)
	assert.InDelta(t, 0.0, f.confidence(), 1e-9)

	assert.Equal(t, fit{}, linearFit([]float64{3}, []float64{1}))
}

func TestPearson(t *testing.T) {
	r, ok := pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	_, ok = pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.False(t, ok)
}
