package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

func testData(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows([]string{"id", "v"}, []dataset.DType{dataset.Integer, dataset.Double},
		[][]any{{int64(1), 0.5}, {int64(2), 1.5}})
	require.NoError(t, err)
	return ds
}

func TestParseObjectURL(t *testing.T) {
	obj, err := ParseObjectURL("s3://bucket/a/b/")
	require.NoError(t, err)
	assert.Equal(t, ObjectURL{Bucket: "bucket", Key: "a/b"}, obj)

	_, err = ParseObjectURL("s3://bucket")
	assert.Error(t, err)
	_, err = ParseObjectURL("gs://bucket/key")
	assert.Error(t, err)

	assert.True(t, IsRemote("S3A://bucket/x"))
	assert.False(t, IsRemote("/data/x"))
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(Config{RunType: RunDatabricks}, nil, nil)
	assert.Equal(t, "/dbfs/data/in", r.Resolve("data/in"))
	assert.Equal(t, "/abs/in", r.Resolve("/abs/in"))
	assert.Equal(t, "s3://b/k", r.Resolve("s3://b/k"))

	local := NewResolver(Config{RunType: RunLocal}, nil, nil)
	assert.Equal(t, "data/in", local.Resolve("data/in"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "s3://b/out/stats/x", Join("s3://b/out/", "stats", "x"))
	assert.Equal(t, filepath.Join("out", "stats"), Join("out", "stats"))
}

func TestResolver_S3RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemObjects()
	r := NewResolver(Config{WorkspaceDir: t.TempDir()}, store, nil)
	ds := testData(t)

	require.NoError(t, r.Write(ctx, ds, "csv", "s3://lake/out", dataio.Options{"mode": "overwrite"}))
	keys, _ := store.List(ctx, "lake", "out")
	assert.Equal(t, []string{"out/part-00000.csv"}, keys)

	require.NoError(t, r.Write(ctx, ds, "csv", "s3://lake/out", dataio.Options{"mode": "append"}))
	keys, _ = store.List(ctx, "lake", "out")
	assert.Equal(t, []string{"out/part-00000.csv", "out/part-00001.csv"}, keys)

	got, err := r.Read(ctx, "csv", "s3://lake/out", dataio.Options{"inferSchema": true})
	require.NoError(t, err)
	assert.Equal(t, 4, got.NumRows())

	err = r.Write(ctx, ds, "csv", "s3://lake/out", dataio.Options{"mode": "error"})
	require.ErrorIs(t, err, dataio.ErrExists)

	require.NoError(t, r.Write(ctx, ds, "csv", "s3://lake/out", dataio.Options{"mode": "overwrite"}))
	keys, _ = store.List(ctx, "lake", "out")
	assert.Equal(t, []string{"out/part-00000.csv"}, keys)
}

func TestResolver_S3Errors(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(Config{WorkspaceDir: t.TempDir()}, nil, nil)
	_, err := r.Read(ctx, "csv", "s3://lake/in", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 settings")

	r = NewResolver(Config{WorkspaceDir: t.TempDir()}, testutil.NewMemObjects(), nil)
	_, err = r.Read(ctx, "csv", "s3://lake/missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no objects")
}

func TestResolver_LocalPassThrough(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	r := NewResolver(Config{}, nil, nil)

	require.NoError(t, r.Write(ctx, testData(t), "json", dir, dataio.Options{}))
	got, err := r.Read(ctx, "json", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())
}

func TestNewMinioStore_Validation(t *testing.T) {
	_, err := NewMinioStore(S3Config{})
	assert.Error(t, err)
	_, err = NewMinioStore(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := NewMinioStore(S3Config{Endpoint: "https://minio.local:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.True(t, S3Config{Endpoint: "x", AccessKey: "a", SecretKey: "b"}.Configured())
}
