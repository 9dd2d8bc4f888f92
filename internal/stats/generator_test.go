package stats

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

func testData(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows(
		[]string{"id", "x", "y", "c"},
		[]dataset.DType{dataset.String, dataset.Double, dataset.Integer, dataset.String},
		[][]any{
			{"1", 1.0, int64(0), "a"},
			{"2", 2.0, int64(5), "b"},
			{"3", 3.0, nil, "a"},
			{"4", 4.0, int64(5), nil},
		},
	)
	require.NoError(t, err)
	return ds
}

func TestMoments(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-9)
	assert.InDelta(t, 2.0, PopulationStddev(xs), 1e-9)
	assert.InDelta(t, math.Sqrt(32.0/7.0), SampleStddev(xs), 1e-9)
	assert.InDelta(t, 0.4, Variation(xs), 1e-9)

	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(Skewness([]float64{1, 1, 1})))

	sym := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 0.0, Skewness(sym), 1e-9)
	assert.InDelta(t, -1.3, ExcessKurtosis(sym), 1e-9)
}

func TestVariation_MatchesCoefficientExample(t *testing.T) {
	// mean series from the stability index walkthrough
	assert.InDelta(t, 0.136, Round(Variation([]float64{11, 12, 15, 10, 11, 13}), 3), 1e-9)
	assert.InDelta(t, 0.529, Round(Variation([]float64{2, 1, 3, 2, 1, 0.5}), 3), 1e-9)
	assert.InDelta(t, 0.027, Round(Variation([]float64{3.9, 4.2, 4.0, 4.1, 4.2, 4.0}), 3), 1e-9)
}

func TestQuantile(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 1.0, Quantile(s, 0))
	assert.Equal(t, 3.0, Quantile(s, 0.25))
	assert.Equal(t, 5.0, Quantile(s, 0.5))
	assert.Equal(t, 10.0, Quantile(s, 1))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	assert.True(t, math.IsNaN(Pearson([]float64{1, 1}, []float64{2, 3})))
}

func TestMode(t *testing.T) {
	v, n := Mode([]any{"b", "a", "b", nil, "a"})
	assert.Equal(t, "a", v, "ties resolve to the smallest value")
	assert.Equal(t, 2, n)

	v, n = Mode([]any{nil})
	assert.Nil(t, v)
	assert.Zero(t, n)
}

func TestGenerator_Compute(t *testing.T) {
	ds := testData(t)
	g := NewGenerator(testutil.NewTestLogger(t), 2)
	ctx := context.Background()

	t.Run("global summary", func(t *testing.T) {
		out, err := g.Compute(ctx, ds, GlobalSummary, ds.ColumnNames())
		require.NoError(t, err)
		assert.Equal(t, "rows_count", out.Value(0, "metric"))
		assert.Equal(t, "4", out.Value(0, "value"))
		assert.Equal(t, "x, y", out.Value(3, "value"))
	})

	t.Run("counts", func(t *testing.T) {
		out, err := g.Compute(ctx, ds, MeasuresOfCounts, []string{"y", "c"})
		require.NoError(t, err)
		require.Equal(t, 2, out.NumRows())
		assert.Equal(t, "y", out.Value(0, "attribute"))
		assert.Equal(t, int64(3), out.Value(0, "fill_count"))
		assert.Equal(t, 0.25, out.Value(0, "missing_pct"))
		assert.Equal(t, int64(2), out.Value(0, "nonzero_count"))
		assert.Nil(t, out.Value(1, "nonzero_count"))
	})

	t.Run("percentiles skip categorical", func(t *testing.T) {
		out, err := g.Compute(ctx, ds, MeasuresOfPctiles, []string{"x", "c"})
		require.NoError(t, err)
		require.Equal(t, 1, out.NumRows())
		assert.Equal(t, 1.0, out.Value(0, "min"))
		assert.Equal(t, 2.0, out.Value(0, "50%"))
		assert.Equal(t, 4.0, out.Value(0, "max"))
	})

	t.Run("dispersion", func(t *testing.T) {
		out, err := g.Compute(ctx, ds, MeasuresOfDisperse, []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, 3.0, out.Value(0, "range"))
		assert.Equal(t, Round(5.0/3.0, 4), out.Value(0, "variance"))
	})

	t.Run("cardinality", func(t *testing.T) {
		out, err := g.Compute(ctx, ds, MeasuresOfCardinal, []string{"id", "x", "c"})
		require.NoError(t, err)
		require.Equal(t, 2, out.NumRows())
		assert.Equal(t, 1.0, out.Value(0, "IDness"))
		assert.Equal(t, int64(2), out.Value(1, "unique_values"))
	})

	t.Run("unknown metric", func(t *testing.T) {
		_, err := g.Compute(ctx, ds, "measures_of_vibes", []string{"x"})
		assert.ErrorContains(t, err, "unknown stats metric")
	})
}
