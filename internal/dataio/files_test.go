package dataio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func sample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ds, err := dataset.FromRows(
		[]string{"id", "score", "name", "active", "seen"},
		[]dataset.DType{dataset.Integer, dataset.Double, dataset.String, dataset.Boolean, dataset.Timestamp},
		[][]any{
			{int64(1), 1.5, "a", true, ts},
			{int64(2), nil, "b", false, ts.Add(time.Hour)},
			{int64(3), -2.25, nil, nil, nil},
		},
	)
	require.NoError(t, err)
	return ds
}

func assertSameData(t *testing.T, want, got *dataset.Dataset) {
	t.Helper()
	require.Equal(t, want.NumRows(), got.NumRows())
	for _, name := range want.ColumnNames() {
		wc, _ := want.Column(name)
		gc, ok := got.Column(name)
		require.True(t, ok, "missing column %s", name)
		assert.Equal(t, wc.Type, gc.Type, "type of %s", name)
		for i := range wc.Values {
			if ts, ok := wc.Values[i].(time.Time); ok {
				gts, ok := gc.Values[i].(time.Time)
				require.True(t, ok, "%s[%d] should be a timestamp", name, i)
				assert.True(t, ts.Equal(gts), "%s[%d]: %v != %v", name, i, ts, gts)
				continue
			}
			assert.Equal(t, wc.Values[i], gc.Values[i], "%s[%d]", name, i)
		}
	}
}

func TestFormats_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, format := range []string{"csv", "json", "parquet", "avro"} {
		t.Run(format, func(t *testing.T) {
			want := sample(t)
			dir := filepath.Join(t.TempDir(), "out")
			opts := Options{"mode": "overwrite", "inferSchema": true}

			require.NoError(t, Write(ctx, want, format, dir, opts))
			got, err := Read(ctx, format, dir, opts)
			require.NoError(t, err)
			assertSameData(t, want, got)
		})
	}
}

func TestCSV_ReadOptions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("1|x\n2|\n"), 0o600))

	ds, err := Read(ctx, "csv", path, Options{"header": false, "delimiter": "|", "inferSchema": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"_c0", "_c1"}, ds.ColumnNames())
	assert.Equal(t, int64(2), ds.Value(1, "_c0"))
	assert.Nil(t, ds.Value(1, "_c1"))

	ds, err = Read(ctx, "csv", path, Options{"header": false, "delimiter": "|"})
	require.NoError(t, err)
	assert.Equal(t, "1", ds.Value(0, "_c0"), "without inferSchema columns stay strings")
}

func TestCSV_RaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n3\n"), 0o600))

	_, err := Read(context.Background(), "csv", path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")
}

func TestJSON_MixedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	body := `{"b": 1, "a": "x"}
{"b": 2.5, "c": true}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	ds, err := Read(context.Background(), "json", path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ds.ColumnNames())
	b, _ := ds.Column("b")
	assert.Equal(t, dataset.Double, b.Type)
	assert.Equal(t, []any{1.0, 2.5}, b.Values)
	assert.Nil(t, ds.Value(1, "a"))
}

func TestFileFormat_WriteModes(t *testing.T) {
	ctx := context.Background()
	ds := sample(t)
	dir := filepath.Join(t.TempDir(), "out")

	require.NoError(t, Write(ctx, ds, "csv", dir, Options{}))

	err := Write(ctx, ds, "csv", dir, Options{"mode": "error"})
	require.ErrorIs(t, err, ErrExists)

	require.NoError(t, Write(ctx, ds, "csv", dir, Options{"mode": "ignore"}))
	got, err := Read(ctx, "csv", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumRows(), "ignore leaves the output alone")

	require.NoError(t, Write(ctx, ds, "csv", dir, Options{"mode": "append"}))
	got, err = Read(ctx, "csv", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, got.NumRows())
	assert.FileExists(t, filepath.Join(dir, "part-00001.csv"))

	require.NoError(t, Write(ctx, ds, "csv", dir, Options{"mode": "overwrite"}))
	got, err = Read(ctx, "csv", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumRows())
}

func TestFileFormat_ReadErrors(t *testing.T) {
	ctx := context.Background()
	_, err := Read(ctx, "csv", filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)

	empty := t.TempDir()
	_, err = Read(ctx, "parquet", empty, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parquet files")
}

func TestAvro_InvalidFieldName(t *testing.T) {
	ds, err := dataset.FromRows([]string{"bad name"}, []dataset.DType{dataset.String}, [][]any{{"x"}})
	require.NoError(t, err)

	err = Write(context.Background(), ds, "avro", filepath.Join(t.TempDir(), "out"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid avro field name")
}
