package drift

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/storage"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

type memHistory map[string][]MetricRecord

func (m memHistory) LoadHistory(_ context.Context, series string) ([]MetricRecord, error) {
	return m[series], nil
}

func (m memHistory) AppendHistory(_ context.Context, series string, records []MetricRecord) error {
	m[series] = append(m[series], records...)
	return nil
}

func decoder(args map[string]any) stage.Decoder {
	return func(target any) error { return mapstructure.Decode(args, target) }
}

func loader(sets map[string]*dataset.Dataset) func(context.Context, string) (*dataset.Dataset, error) {
	return func(_ context.Context, key string) (*dataset.Dataset, error) {
		return sets[key], nil
	}
}

func driftFixture(t *testing.T) (source, target *dataset.Dataset) {
	t.Helper()
	source = numbers(t, "x",
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		[]string{"a", "a", "a", "a", "a", "b", "b", "b", "b", "b"})
	target = numbers(t, "x",
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		[]string{"a", "a", "a", "a", "a", "a", "a", "a", "a", "b"})
	return source, target
}

func TestRunner_DriftStatistics(t *testing.T) {
	root := t.TempDir()
	source, target := driftFixture(t)

	r := NewRunner(NewDetector(testutil.NewTestLogger(t)), Env{
		Load: loader(map[string]*dataset.Dataset{"source_dataset": source}),
	})
	res, err := r.Run(context.Background(), DriftStatistics, target, decoder(map[string]any{
		"configs": map[string]any{
			"method_type": []string{"PSI", "KS"},
			"bin_size":    5,
			"source_path": root,
		},
	}))
	require.NoError(t, err)
	out, ok := res.Stat(DriftStatistics)
	require.True(t, ok)
	assert.Equal(t, []string{"attribute", PSI, KS, "flagged"}, out.ColumnNames())
	assert.Equal(t, "segment", out.Value(0, "attribute"))

	assert.DirExists(t, filepath.Join(root, "drift_statistics", "attribute_binning"))
	assert.DirExists(t, filepath.Join(root, "drift_statistics", "frequency_counts", "x"))

	// the saved model replaces the source dataset
	r = NewRunner(NewDetector(nil), Env{})
	again, err := r.Run(context.Background(), DriftStatistics, target, decoder(map[string]any{
		"configs": map[string]any{"method_type": []string{"PSI", "KS"}, "pre_existing_source": true, "source_path": root},
	}))
	require.NoError(t, err)
	second, _ := again.Stat(DriftStatistics)
	assert.Equal(t, out.Row(0), second.Row(0))
}

func TestRunner_DriftStatistics_ObjectStore(t *testing.T) {
	ctx := context.Background()
	objects := testutil.NewMemObjects()
	source, target := driftFixture(t)
	configs := map[string]any{
		"method_type":     []string{"PSI"},
		"bin_size":        5,
		"source_path":     "s3://lake/models",
		"model_directory": "income",
	}

	r := NewRunner(NewDetector(nil), Env{
		Load:   loader(map[string]*dataset.Dataset{"source_dataset": source}),
		Tables: storage.NewResolver(storage.Config{WorkspaceDir: t.TempDir()}, objects, nil),
	})
	res, err := r.Run(ctx, DriftStatistics, target, decoder(map[string]any{"configs": configs}))
	require.NoError(t, err)
	first, _ := res.Stat(DriftStatistics)

	keys, err := objects.List(ctx, "lake", "models/income/")
	require.NoError(t, err)
	assert.Contains(t, keys, "models/income/attribute_binning/part-00000.csv")
	assert.Contains(t, keys, "models/income/frequency_counts/x/part-00000.csv")
	assert.Contains(t, keys, "models/income/frequency_counts/segment/part-00000.csv")

	// a fresh workspace reads the model back from the object store
	configs["pre_existing_source"] = true
	r = NewRunner(NewDetector(nil), Env{
		Tables: storage.NewResolver(storage.Config{WorkspaceDir: t.TempDir()}, objects, nil),
	})
	res, err = r.Run(ctx, DriftStatistics, target, decoder(map[string]any{"configs": configs}))
	require.NoError(t, err)
	second, _ := res.Stat(DriftStatistics)
	assert.Equal(t, first.Row(0), second.Row(0))
	assert.Equal(t, first.Row(1), second.Row(1))
}

func TestRunner_DriftStatistics_ObjectStoreNotConfigured(t *testing.T) {
	source, target := driftFixture(t)
	r := NewRunner(NewDetector(nil), Env{
		Load:   loader(map[string]*dataset.Dataset{"source_dataset": source}),
		Tables: storage.NewResolver(storage.Config{WorkspaceDir: t.TempDir()}, nil, nil),
	})
	_, err := r.Run(context.Background(), DriftStatistics, target, decoder(map[string]any{
		"configs": map[string]any{"method_type": []string{"PSI"}, "source_path": "s3://lake/models"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 settings")
}

func TestRunner_StabilityIndex(t *testing.T) {
	d1 := numbers(t, "x", []float64{1, 2, 3, 4, 5}, []string{"a", "a", "a", "a", "a"})
	d2 := numbers(t, "x", []float64{2, 4, 6, 8, 10}, []string{"a", "a", "a", "a", "a"})
	hist := memHistory{}
	r := NewRunner(NewDetector(nil), Env{
		Load:    loader(map[string]*dataset.Dataset{"dataset1": d1, "dataset2": d2}),
		History: hist,
	})
	args := map[string]any{
		"configs": map[string]any{
			"appended_metric_path": "metrics/history",
			"metric_history":       "weekly",
		},
	}

	res, err := r.Run(context.Background(), StabilityIndexFn, nil, decoder(args))
	require.NoError(t, err)
	si, ok := res.Stat(StabilityIndexFn)
	require.True(t, ok)
	assert.Equal(t, "x", si.Value(0, "attribute"))
	require.Len(t, res.Stats, 2)
	assert.Equal(t, "metrics/history", res.Stats[1].Path)
	assert.Equal(t, 2, res.Stats[1].Data.NumRows())
	require.Len(t, hist["weekly"], 2)

	// the next run continues the period numbering from the stored history
	res, err = r.Run(context.Background(), StabilityIndexFn, nil, decoder(args))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Stats[1].Data.NumRows())
	assert.Equal(t, int64(4), res.Stats[1].Data.Value(3, "idx"))
	assert.Len(t, hist["weekly"], 4)

	empty := NewRunner(NewDetector(nil), Env{Load: loader(nil)})
	_, err = empty.Run(context.Background(), StabilityIndexFn, nil, decoder(nil))
	assert.ErrorContains(t, err, "no datasets")
}

func TestRunner_FeatureStability(t *testing.T) {
	hist := memHistory{"periods": {
		{Idx: 1, Attribute: "X", Mean: 10, Stddev: 3},
		{Idx: 2, Attribute: "X", Mean: 11, Stddev: 4},
		{Idx: 1, Attribute: "Y", Mean: 10, Stddev: 0},
		{Idx: 2, Attribute: "Y", Mean: 10, Stddev: 0},
	}}
	r := NewRunner(NewDetector(nil), Env{History: hist})
	res, err := r.Run(context.Background(), FeatureStabilityFn, nil, decoder(map[string]any{
		"configs": map[string]any{
			"metric_history":           "periods",
			"threshold":                3,
			"attribute_transformation": map[string]string{"X|Y": "X + Y"},
		},
	}))
	require.NoError(t, err)
	out, ok := res.Stat(FeatureStabilityFn)
	require.True(t, ok)
	assert.Equal(t, 2.6, out.Value(0, "stability_index_lower_bound"))

	_, err = r.Run(context.Background(), FeatureStabilityFn, nil, decoder(nil))
	assert.ErrorContains(t, err, "attribute_transformation")

	_, err = r.Run(context.Background(), "drift_forecast", nil, decoder(nil))
	var unknown *stage.UnknownError
	assert.ErrorAs(t, err, &unknown)
}
