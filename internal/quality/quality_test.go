package quality

import (
	"context"
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
		[]string{"id", "amt", "city", "note"},
		[]dataset.DType{dataset.Integer, dataset.Double, dataset.String, dataset.String},
		[][]any{
			{int64(1), 10.0, "A", "ok"},
			{int64(2), 12.0, "A", "null"},
			{int64(2), 12.0, "A", "null"},
			{int64(3), nil, "B", nil},
			{int64(4), 11.0, nil, nil},
			{int64(5), 1000.0, "A", "aaaa"},
		},
	)
	require.NoError(t, err)
	return ds
}

func reportRow(t *testing.T, report *dataset.Dataset, attribute string) map[string]any {
	t.Helper()
	for i := 0; i < report.NumRows(); i++ {
		if report.Value(i, "attribute") == attribute {
			row := make(map[string]any)
			for _, n := range report.ColumnNames() {
				row[n] = report.Value(i, n)
			}
			return row
		}
	}
	t.Fatalf("attribute %s not in report", attribute)
	return nil
}

func TestDuplicates(t *testing.T) {
	c := NewChecker(testutil.NewTestLogger(t))
	out, report, err := c.Duplicates(fixture(t), DefaultDuplicateConfig())
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())
	assert.Equal(t, 6.0, report.Value(0, "value"))
	assert.Equal(t, 5.0, report.Value(1, "value"))
	assert.Equal(t, 1.0, report.Value(2, "value"))
	assert.Equal(t, 0.1667, report.Value(3, "value"))

	cfg := DefaultDuplicateConfig()
	cfg.Treatment = false
	cfg.ListOfCols = dataset.ColumnList{"city"}
	out, report, err = c.Duplicates(fixture(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, out.NumRows(), "no treatment keeps every row")
	assert.Equal(t, 3.0, report.Value(1, "value"), "A, B and null are the unique cities")
}

func TestNullRows(t *testing.T) {
	c := NewChecker(nil)
	cfg := DefaultNullRowsConfig()
	cfg.TreatmentThreshold = 0.4
	cfg.Treatment.Treatment = true

	out, report, err := c.NullRows(fixture(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, out.NumRows())
	require.Equal(t, 2, report.NumRows())
	assert.Equal(t, []any{int64(0), int64(4), 0.6667, int64(0)}, report.Row(0))
	assert.Equal(t, []any{int64(2), int64(2), 0.3333, int64(1)}, report.Row(1))

	cfg.TreatmentThreshold = 1.5
	_, _, err = c.NullRows(fixture(t), cfg)
	assert.Error(t, err)
}

func TestNullColumns(t *testing.T) {
	c := NewChecker(nil)

	t.Run("report only", func(t *testing.T) {
		out, report, err := c.NullColumns(fixture(t), DefaultNullColumnsConfig())
		require.NoError(t, err)
		assert.Equal(t, 6, out.NumRows())
		assert.Equal(t, []any{"amt", "city", "note"}, mustColumn(t, report, "attribute"))
		assert.Equal(t, []any{0.1667, 0.1667, 0.3333}, mustColumn(t, report, "missing_pct"))
	})

	t.Run("MMM", func(t *testing.T) {
		cfg := DefaultNullColumnsConfig()
		cfg.Treatment = true
		cfg.TreatmentMethod = TreatMMM
		out, _, err := c.NullColumns(fixture(t), cfg)
		require.NoError(t, err)
		assert.Equal(t, 12.0, out.Value(3, "amt"))
		assert.Equal(t, "A", out.Value(4, "city"))
		assert.Equal(t, "null", out.Value(3, "note"))
	})

	t.Run("row removal", func(t *testing.T) {
		cfg := DefaultNullColumnsConfig()
		cfg.Treatment = true
		out, _, err := c.NullColumns(fixture(t), cfg)
		require.NoError(t, err)
		assert.Equal(t, 4, out.NumRows())
	})

	t.Run("column removal", func(t *testing.T) {
		cfg := DefaultNullColumnsConfig()
		cfg.Treatment = true
		cfg.TreatmentMethod = TreatColumnRemoval
		cfg.TreatmentConfigs.TreatmentThreshold = 0.3
		out, _, err := c.NullColumns(fixture(t), cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "amt", "city"}, out.ColumnNames())
	})

	t.Run("invalid method", func(t *testing.T) {
		cfg := DefaultNullColumnsConfig()
		cfg.Treatment = true
		cfg.TreatmentMethod = "KNN"
		_, _, err := c.NullColumns(fixture(t), cfg)
		assert.Error(t, err)
	})
}

func mustColumn(t *testing.T, ds *dataset.Dataset, name string) []any {
	t.Helper()
	col, ok := ds.Column(name)
	require.True(t, ok, "column %s", name)
	return col.Values
}

func TestImpute_IntegerMean(t *testing.T) {
	ds, err := dataset.FromRows([]string{"n"}, []dataset.DType{dataset.Integer},
		[][]any{{int64(1)}, {int64(2)}, {nil}})
	require.NoError(t, err)
	out, err := Impute(ds, []string{"n"}, MethodMean)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Value(2, "n"), "1.5 rounds to 2")

	_, err = Impute(ds, []string{"n"}, "mode")
	assert.Error(t, err)
}

func TestComputeBounds(t *testing.T) {
	xs := []float64{10, 12, 12, 11, 1000}
	b, err := ComputeBounds(xs, SideUpper, DefaultDetectionConfigs())
	require.NoError(t, err)
	require.NotNil(t, b.Upper)
	assert.Nil(t, b.Lower)
	assert.Equal(t, 1000.0, *b.Upper, "second least strict of 13.5, 1000 and mean+3sd")

	cfg := DefaultDetectionConfigs()
	cfg.MinValidation = 1
	b, err = ComputeBounds(xs, SideBoth, cfg)
	require.NoError(t, err)
	assert.Equal(t, 13.5, *b.Upper)
	require.NotNil(t, b.Lower)
	assert.Equal(t, 10.0, *b.Lower, "pctile 5% is the minimum")

	cfg.MinValidation = 4
	_, err = ComputeBounds(xs, SideUpper, cfg)
	assert.Error(t, err)
}

func TestOutliers(t *testing.T) {
	c := NewChecker(nil)
	cfg := DefaultOutlierConfig()
	cfg.ListOfCols = dataset.ColumnList{"amt"}
	cfg.DetectionConfigs.MinValidation = 1

	out, report, err := c.Outliers(fixture(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{"amt", int64(0), int64(1)}, report.Row(0))
	assert.Equal(t, 13.5, out.Value(5, "amt"))

	cfg.TreatmentMethod = TreatNullReplacement
	out, _, err = c.Outliers(fixture(t), cfg)
	require.NoError(t, err)
	assert.Nil(t, out.Value(5, "amt"))

	cfg.TreatmentMethod = TreatRowRemoval
	out, _, err = c.Outliers(fixture(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, out.NumRows())

	cfg.DetectionSide = "middle"
	_, _, err = c.Outliers(fixture(t), cfg)
	assert.Error(t, err)
}

func TestIDness(t *testing.T) {
	c := NewChecker(nil)
	cfg := DefaultIDnessConfig()
	cfg.TreatmentThreshold = 0.8
	cfg.Treatment.Treatment = true

	out, report, err := c.IDness(fixture(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"attribute": "id", "unique_values": int64(5), "IDness": 0.8333, "flagged": int64(1)},
		reportRow(t, report, "id"))
	assert.Equal(t, 0.4, reportRow(t, report, "city")["IDness"])
	assert.Equal(t, 0.75, reportRow(t, report, "note")["IDness"])
	assert.False(t, out.Has("id"))
	assert.False(t, report.Has("amt"), "doubles are not discrete")
}

func TestBiasedness(t *testing.T) {
	c := NewChecker(nil)
	cfg := DefaultBiasednessConfig()
	cfg.Treatment.Treatment = true

	out, report, err := c.Biasedness(fixture(t), cfg)
	require.NoError(t, err)
	city := reportRow(t, report, "city")
	assert.Equal(t, "A", city["mode"])
	assert.Equal(t, 0.8, city["mode_pct"])
	assert.Equal(t, int64(1), city["flagged"])
	assert.Equal(t, int64(0), reportRow(t, report, "note")["flagged"])
	assert.False(t, out.Has("city"))
	assert.True(t, out.Has("note"))
}

func TestAutoInvalid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"N/A", true},
		{"   ", true},
		{"aaaa", true},
		{"#$%", true},
		{"1234", true},
		{"9876", true},
		{"1357", false},
		{"abc", false},
		{"aa", false},
		{"Berlin", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AutoInvalid(tt.in))
		})
	}
}

func TestInvalidEntries(t *testing.T) {
	c := NewChecker(nil)
	cfg := DefaultInvalidEntriesConfig()
	cfg.Treatment = true

	out, report, err := c.InvalidEntries(fixture(t), cfg)
	require.NoError(t, err)
	note := reportRow(t, report, "note")
	assert.Equal(t, "aaaa|null", note["invalid_entries"])
	assert.Equal(t, int64(3), note["invalid_count"])
	assert.Equal(t, 0.5, note["invalid_pct"])
	assert.Equal(t, int64(0), reportRow(t, report, "id")["invalid_count"])
	assert.Nil(t, out.Value(1, "note"))
	assert.Equal(t, "ok", out.Value(0, "note"))

	manual := DefaultInvalidEntriesConfig()
	manual.DetectionType = DetectManual
	manual.ListOfCols = dataset.ColumnList{"city"}
	manual.ValidEntries = dataset.ColumnList{"A"}
	manual.Treatment = true
	manual.OutputMode = OutputAppend
	out, report, err = c.InvalidEntries(fixture(t), manual)
	require.NoError(t, err)
	assert.Equal(t, "B", report.Value(0, "invalid_entries"))
	assert.Equal(t, "B", out.Value(3, "city"), "append mode keeps the original column")
	assert.Nil(t, out.Value(3, "city_invalid"))

	manual.ValidEntries = nil
	_, _, err = c.InvalidEntries(fixture(t), manual)
	assert.Error(t, err)
}

func TestChecker_Run(t *testing.T) {
	c := NewChecker(nil)
	decode := func(args map[string]any) stage.Decoder {
		return func(target any) error { return mapstructure.Decode(args, target) }
	}

	res, err := c.Run(context.Background(), IDnessDetection, fixture(t), decode(map[string]any{
		"list_of_cols":        []string{"city"},
		"treatment":           true,
		"treatment_threshold": 0.3,
	}))
	require.NoError(t, err)
	assert.False(t, res.Data.Has("city"))
	report, ok := res.Stat(IDnessDetection)
	require.True(t, ok)
	assert.Equal(t, 1, report.NumRows())

	_, err = c.Run(context.Background(), "variance_check", fixture(t), decode(nil))
	var unknown *stage.UnknownError
	require.ErrorAs(t, err, &unknown)
}
