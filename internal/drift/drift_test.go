package drift

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/starlark"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

func TestDistances(t *testing.T) {
	p := []float64{0.5, 0.5}
	q := []float64{0.9, 0.1}

	assert.InDelta(t, 0.8789, PopulationStabilityIndex(p, q), 1e-4)
	assert.InDelta(t, 0.1017, JensenShannon(p, q), 1e-4)
	assert.InDelta(t, 0.3249, Hellinger(p, q), 1e-4)
	assert.InDelta(t, 0.4, KolmogorovSmirnov(p, q), 1e-12)

	for _, m := range Methods {
		assert.Zero(t, distances[m](p, p), m)
	}
}

func TestParseMethods(t *testing.T) {
	got, err := ParseMethods(dataset.ColumnList{"all"})
	require.NoError(t, err)
	assert.Equal(t, Methods, got)

	got, err = ParseMethods(dataset.ColumnList{"ks", "PSI", "KS"})
	require.NoError(t, err)
	assert.Equal(t, []string{KS, PSI}, got)

	_, err = ParseMethods(dataset.ColumnList{"EMD"})
	assert.ErrorContains(t, err, "invalid method_type")
}

func TestAlign(t *testing.T) {
	p := Frequencies{"1": 0.5, "2": 0.5}
	q := Frequencies{"2": 0.75, "10": 0.25, "-1": 0}

	pv, qv := Align(p, q)
	// bins sort numerically: -1, 1, 2, 10
	assert.Equal(t, []float64{Smoothing, 0.5, 0.5, Smoothing}, pv)
	assert.Equal(t, []float64{Smoothing, Smoothing, 0.75, 0.25}, qv)

	pv, qv = Align(Frequencies{"b": 1}, Frequencies{"a": 1})
	assert.Equal(t, []float64{Smoothing, 1}, pv)
	assert.Equal(t, []float64{1, Smoothing}, qv)
}

func numbers(t *testing.T, name string, xs []float64, cats []string) *dataset.Dataset {
	t.Helper()
	vals := make([]any, len(xs))
	for i, x := range xs {
		vals[i] = x
	}
	cv := make([]any, len(cats))
	for i, c := range cats {
		cv[i] = c
	}
	ds, err := dataset.New(
		dataset.NewColumn(name, dataset.Double, vals),
		dataset.NewColumn("segment", dataset.String, cv),
	)
	require.NoError(t, err)
	return ds
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	det := NewDetector(testutil.NewTestLogger(t))
	store := DirStore{Dir: t.TempDir()}

	source := numbers(t, "x",
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		[]string{"a", "a", "a", "a", "a", "b", "b", "b", "b", "b"})
	target := numbers(t, "x",
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		[]string{"a", "a", "a", "a", "a", "a", "a", "a", "a", "b"})

	cfg := StatisticsConfig{
		Methods:   []string{PSI, KS},
		Threshold: 0.1,
		BinMethod: stats.EqualRange,
		BinSize:   5,
	}
	out, err := det.Statistics(ctx, source, target, []string{"x", "segment"}, cfg, store)
	require.NoError(t, err)
	require.Equal(t, []string{"attribute", PSI, KS, "flagged"}, out.ColumnNames())
	require.Equal(t, 2, out.NumRows())

	// the drifted categorical attribute sorts first
	assert.Equal(t, "segment", out.Value(0, "attribute"))
	assert.Equal(t, int64(1), out.Value(0, "flagged"))
	assert.Equal(t, 0.4, out.Value(0, KS))
	assert.Equal(t, "x", out.Value(1, "attribute"))
	assert.Equal(t, 0.0, out.Value(1, PSI))
	assert.Equal(t, int64(0), out.Value(1, "flagged"))

	// a later run reuses the persisted source model
	cfg.PreExistingSource = true
	again, err := det.Statistics(ctx, nil, target, []string{"x", "segment"}, cfg, store)
	require.NoError(t, err)
	assert.Equal(t, out.Row(0), again.Row(0))
	assert.Equal(t, out.Row(1), again.Row(1))

	model, err := store.LoadModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, model.BinSize)
	assert.Len(t, model.Cutoffs["x"], 4)
	assert.NotContains(t, model.Cutoffs, "segment")
}

func TestStatistics_NullsOnlyInTarget(t *testing.T) {
	ctx := context.Background()
	vals := make([]any, 0, 10)
	for i := 1; i <= 10; i++ {
		vals = append(vals, float64(i))
	}
	source, err := dataset.New(dataset.NewColumn("x", dataset.Double, vals))
	require.NoError(t, err)
	target, err := dataset.New(dataset.NewColumn("x", dataset.Double, append(vals, make([]any, 10)...)))
	require.NoError(t, err)

	cfg := StatisticsConfig{Methods: []string{PSI}, Threshold: 0.1, BinMethod: stats.EqualRange, BinSize: 10}
	out, err := NewDetector(nil).Statistics(ctx, source, target, []string{"x"}, cfg, DirStore{Dir: t.TempDir()})
	require.NoError(t, err)

	// nulls add no mass of their own, so every bin keeps half its source share
	assert.InDelta(t, 0.3466, out.Value(0, PSI), 1e-4)
	assert.Equal(t, int64(1), out.Value(0, "flagged"))
}

func TestStatistics_Errors(t *testing.T) {
	ctx := context.Background()
	det := NewDetector(nil)
	target := numbers(t, "x", []float64{1, 2}, []string{"a", "b"})

	_, err := det.Statistics(ctx, nil, target, []string{"x"},
		StatisticsConfig{Methods: Methods, BinMethod: stats.EqualRange, BinSize: 10}, DirStore{Dir: t.TempDir()})
	assert.ErrorContains(t, err, "source_dataset is required")

	_, err = det.Statistics(ctx, nil, target, []string{"x"},
		StatisticsConfig{Methods: Methods, PreExistingSource: true}, DirStore{Dir: t.TempDir()})
	assert.ErrorContains(t, err, "load binning model")
}

func TestScoreCV(t *testing.T) {
	tests := []struct {
		cv   any
		want any
	}{
		{0.01, int64(4)},
		{-0.05, int64(3)},
		{0.1, int64(2)},
		{0.3, int64(1)},
		{0.5, int64(0)},
		{nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreCV(tt.cv), "cv=%v", tt.cv)
	}
}

func history(attr string, means, stddevs, kurtoses []float64) []MetricRecord {
	out := make([]MetricRecord, len(means))
	for i := range means {
		out[i] = MetricRecord{Idx: i + 1, Attribute: attr, Mean: means[i], Stddev: stddevs[i], Kurtosis: kurtoses[i]}
	}
	return out
}

func TestStabilityIndex(t *testing.T) {
	h := history("a",
		[]float64{11, 12, 15, 10, 11, 13},
		[]float64{2, 1, 3, 2, 1, 0.5},
		[]float64{3.9, 4.2, 4.0, 4.1, 4.2, 4.0},
	)
	h = append(h, history("b",
		[]float64{1, 1},
		[]float64{1, 2},
		[]float64{3, math.NaN()},
	)...)

	out, err := StabilityIndex(h, []string{"a", "b"}, DefaultWeights, 1)
	require.NoError(t, err)

	assert.Equal(t, 0.1361, out.Value(0, "mean_cv"))
	assert.Equal(t, int64(2), out.Value(0, "mean_si"))
	assert.Equal(t, int64(0), out.Value(0, "stddev_si"))
	assert.Equal(t, int64(4), out.Value(0, "kurtosis_si"))
	assert.Equal(t, 1.8, out.Value(0, "stability_index"))
	assert.Equal(t, int64(0), out.Value(0, "flagged"))

	// constant mean gives a zero cv, which is treated as undefined
	assert.Nil(t, out.Value(1, "mean_cv"))
	assert.Nil(t, out.Value(1, "kurtosis_cv"))
	assert.Nil(t, out.Value(1, "stability_index"))
	assert.Equal(t, int64(1), out.Value(1, "flagged"))

	_, err = StabilityIndex(h, []string{"a"}, Weights{Mean: 0.5, Stddev: 0.5, Kurtosis: 0.5}, 1)
	assert.ErrorIs(t, err, ErrWeights)
}

func TestComputeMetricsAndHistory(t *testing.T) {
	d1 := numbers(t, "x", []float64{1, 2, 3, 4, 5}, []string{"a", "a", "a", "a", "a"})
	d2 := numbers(t, "x", []float64{2, 2, 2, 2, 2}, []string{"a", "a", "a", "a", "a"})

	recs, err := ComputeMetrics(3, []string{"x"}, d1, d2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 4, recs[0].Idx)
	assert.Equal(t, 5, recs[1].Idx)
	assert.Equal(t, 3.0, recs[0].Mean)
	assert.InDelta(t, 1.7, recs[0].Kurtosis, 1e-9)
	assert.True(t, math.IsNaN(recs[1].Kurtosis))
	assert.Equal(t, 5, MaxIdx(recs))

	ds, err := HistoryDataset(recs)
	require.NoError(t, err)
	assert.Nil(t, ds.Value(1, "kurtosis"))

	back, err := HistoryFromDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, recs[0], back[0])
	assert.True(t, math.IsNaN(back[1].Kurtosis))

	_, err = ComputeMetrics(0, []string{"segment"}, d1)
	assert.ErrorContains(t, err, "invalid input for column(s): segment")
}

func TestComputeMetrics_MesokurticIsMissing(t *testing.T) {
	ds := numbers(t, "x", []float64{-1, 0, 0, 0, 0, 1}, []string{"a", "a", "a", "a", "a", "a"})

	recs, err := ComputeMetrics(0, []string{"x"}, ds)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.0, recs[0].Mean)
	assert.True(t, math.IsNaN(recs[0].Kurtosis))

	hist, err := HistoryDataset(recs)
	require.NoError(t, err)
	assert.Nil(t, hist.Value(0, "kurtosis"))
}

func TestFeatureStability(t *testing.T) {
	h := []MetricRecord{
		{Idx: 1, Attribute: "X", Mean: 10, Stddev: 3},
		{Idx: 2, Attribute: "X", Mean: 11, Stddev: 4},
		{Idx: 1, Attribute: "Y", Mean: 10, Stddev: 0},
		{Idx: 2, Attribute: "Y", Mean: 10, Stddev: 0},
	}
	trs := []Transformation{ParseTransformation("X|Y", "X + Y")}

	out, err := FeatureStability(h, trs, DefaultWeights, 3)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "X + Y", out.Value(0, "feature_formula"))
	assert.Equal(t, 0.0244, out.Value(0, "mean_cv"))
	assert.Equal(t, 0.1429, out.Value(0, "stddev_cv"))
	assert.Equal(t, int64(4), out.Value(0, "mean_si"))
	assert.Equal(t, int64(2), out.Value(0, "stddev_si"))
	assert.Equal(t, 2.6, out.Value(0, "stability_index_lower_bound"))
	assert.Equal(t, 3.4, out.Value(0, "stability_index_upper_bound"))
	assert.Equal(t, int64(1), out.Value(0, "flagged_lower"))
	assert.Equal(t, int64(0), out.Value(0, "flagged_upper"))

	_, err = FeatureStability(h, []Transformation{ParseTransformation("X|Z", "X * Z")}, DefaultWeights, 1)
	assert.ErrorContains(t, err, `"Z" has no statistics`)
}

func TestEstimate_Quadratic(t *testing.T) {
	g := func(xs []float64) (float64, error) { return xs[0] * xs[0], nil }
	mean, variance, err := estimate(g, []float64{3}, []float64{2})
	require.NoError(t, err)
	// E[X²] = μ² + σ², Var ≈ (2μσ)²
	assert.InDelta(t, 13, mean, 1e-6)
	assert.InDelta(t, 144, variance, 1e-6)
}

func TestEstimate_SmallMean(t *testing.T) {
	e, err := starlark.Compile("log(X)", []string{"X"})
	require.NoError(t, err)
	thread := starlark.NewThread("log(X)")
	g := func(xs []float64) (float64, error) { return e.CallFloat(thread, xs...) }

	mu, sigma := 0.0005, 0.0001
	mean, variance, err := estimate(g, []float64{mu}, []float64{sigma})
	require.NoError(t, err)
	// E[log X] ≈ log μ - σ²/2μ², Var ≈ σ²/μ²
	assert.InDelta(t, math.Log(mu)-sigma*sigma/(2*mu*mu), mean, 1e-4)
	assert.InDelta(t, sigma*sigma/(mu*mu), variance, 1e-4)
}

func TestEstimate_OneSided(t *testing.T) {
	g := func(xs []float64) (float64, error) {
		if xs[0] < 3 {
			return 0, errors.New("undefined below 3")
		}
		return xs[0] * xs[0] * xs[0], nil
	}
	mean, variance, err := estimate(g, []float64{3}, []float64{2})
	require.NoError(t, err)
	// E[X³] ≈ μ³ + 3μσ², Var ≈ (3μ²σ)²
	assert.InDelta(t, 63, mean, 0.1)
	assert.InDelta(t, 2916, variance, 10)

	// defined only at μ itself
	point := func(xs []float64) (float64, error) {
		if xs[0] != 3 {
			return math.NaN(), nil
		}
		return 1, nil
	}
	_, _, err = estimate(point, []float64{3}, []float64{1})
	assert.ErrorContains(t, err, "outside the domain")
}
