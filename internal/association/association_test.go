package association

import (
	"context"
	"math"
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

func fixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows(
		[]string{"x", "y", "z", "grade", "label"},
		[]dataset.DType{dataset.Double, dataset.Double, dataset.Double, dataset.String, dataset.Integer},
		[][]any{
			{1.0, 2.0, 5.0, "a", int64(1)},
			{2.0, 4.0, 4.0, "a", int64(1)},
			{3.0, 6.0, 3.0, "b", int64(0)},
			{4.0, 8.0, 2.0, "b", int64(0)},
			{5.0, nil, 1.0, "b", nil},
		},
	)
	require.NoError(t, err)
	return ds
}

func value(t *testing.T, ds *dataset.Dataset, attribute, col string) any {
	t.Helper()
	for i := 0; i < ds.NumRows(); i++ {
		if ds.Value(i, "attribute") == attribute {
			return ds.Value(i, col)
		}
	}
	t.Fatalf("attribute %s not found", attribute)
	return nil
}

func TestCorrelation(t *testing.T) {
	e := NewEvaluator(testutil.NewTestLogger(t))
	cfg := CorrelationConfig{Columns: stage.AllColumns()}
	cfg.DropCols = dataset.ColumnList{"label"}
	out, err := e.Correlation(fixture(t), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"attribute", "x", "y", "z"}, out.ColumnNames())
	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, 1.0, value(t, out, "x", "y"))
	assert.Equal(t, 1.0, value(t, out, "y", "x"))
	assert.Equal(t, -1.0, value(t, out, "x", "z"))
	assert.Equal(t, 1.0, value(t, out, "z", "z"))
}

func TestCorrelation_ConstantColumnIsNull(t *testing.T) {
	ds, err := dataset.FromRows(
		[]string{"a", "b"},
		[]dataset.DType{dataset.Double, dataset.Double},
		[][]any{{1.0, 3.0}, {2.0, 3.0}, {3.0, 3.0}},
	)
	require.NoError(t, err)
	out, err := NewEvaluator(nil).Correlation(ds, CorrelationConfig{Columns: stage.AllColumns()})
	require.NoError(t, err)
	assert.Nil(t, value(t, out, "a", "b"))
}

func TestInformationValue(t *testing.T) {
	e := NewEvaluator(testutil.NewTestLogger(t))
	cfg := DefaultLabelConfig()
	cfg.ListOfCols = dataset.ColumnList{"grade"}
	out, err := e.InformationValue(fixture(t), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	// grade separates the labelled rows perfectly: both groups contribute
	// (1 - 0.0001) * ln(1 / 0.0001).
	want := 2 * (1 - 0.0001) * math.Log(1/0.0001)
	assert.InDelta(t, want, value(t, out, "grade", "iv"), 1e-3)
}

func TestInformationGain(t *testing.T) {
	e := NewEvaluator(testutil.NewTestLogger(t))
	cfg := DefaultLabelConfig()
	cfg.EncodingConfigs.BinSize = 2
	out, err := e.InformationGain(fixture(t), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"attribute", "ig"}, out.ColumnNames())
	assert.Equal(t, 1.0, value(t, out, "grade", "ig"))
	for i := 1; i < out.NumRows(); i++ {
		prev := out.Value(i-1, "ig").(float64)
		assert.GreaterOrEqual(t, prev, out.Value(i, "ig").(float64))
	}
	for i := 0; i < out.NumRows(); i++ {
		assert.NotEqual(t, "label", out.Value(i, "attribute"))
	}
}

func TestLabelValidation(t *testing.T) {
	e := NewEvaluator(nil)

	cfg := DefaultLabelConfig()
	cfg.LabelCol = "missing"
	_, err := e.InformationValue(fixture(t), cfg)
	require.Error(t, err)

	cfg = DefaultLabelConfig()
	cfg.EventLabel = "yes"
	_, err = e.InformationGain(fixture(t), cfg)
	assert.ErrorContains(t, err, "event")
}

func TestRun(t *testing.T) {
	e := NewEvaluator(testutil.NewTestLogger(t))
	decoder := func(args map[string]any) stage.Decoder {
		return func(target any) error { return mapstructure.Decode(args, target) }
	}

	res, err := e.Run(context.Background(), IGCalculation, fixture(t), decoder(map[string]any{
		"label_col":   "label",
		"event_label": 1,
	}))
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	_, ok := res.Stat(IGCalculation)
	assert.True(t, ok)

	_, err = e.Run(context.Background(), VariableClustering, fixture(t), decoder(nil))
	require.ErrorIs(t, err, ErrClusteringUnsupported)

	_, err = e.Run(context.Background(), "pca", fixture(t), decoder(nil))
	var unknown *stage.UnknownError
	require.ErrorAs(t, err, &unknown)
}
