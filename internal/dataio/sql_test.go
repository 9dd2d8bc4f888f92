package dataio

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func mockTable(t *testing.T) (*sqlTable, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &sqlTable{
		dialect: postgresDialect,
		open:    func(context.Context, string, Options) (*sql.DB, error) { return db, nil },
		logger:  slog.New(slog.DiscardHandler),
	}, mock
}

func TestSQLTable_Read(t *testing.T) {
	table, mock := mockTable(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."scores"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "score", "name"}).
			AddRow(int64(1), 0.5, "a").
			AddRow(int64(2), nil, []byte("b")))
	mock.ExpectClose()

	ds, err := table.Read(context.Background(), "", Options{"table": "scores"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score", "name"}, ds.ColumnNames())
	id, _ := ds.Column("id")
	assert.Equal(t, dataset.Integer, id.Type)
	assert.Equal(t, "b", ds.Value(1, "name"))
	assert.Nil(t, ds.Value(1, "score"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTable_ReadRequiresTarget(t *testing.T) {
	table, _ := mockTable(t)
	_, err := table.Read(context.Background(), "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table or query")
}

func TestSQLTable_Write(t *testing.T) {
	ds, err := dataset.FromRows(
		[]string{"id", "name"},
		[]dataset.DType{dataset.Integer, dataset.String},
		[][]any{{int64(1), "a"}, {int64(2), nil}},
	)
	require.NoError(t, err)

	t.Run("overwrite existing table", func(t *testing.T) {
		table, mock := mockTable(t)
		mock.ExpectQuery("SELECT COUNT").WithArgs("analytics", "people").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "analytics"."people"`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "analytics"."people" ("id" BIGINT, "name" TEXT)`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "analytics"."people" ("id", "name") VALUES ($1, $2)`))
		prep.ExpectExec().WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs(int64(2), nil).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectClose()

		err := table.Write(context.Background(), ds, "", Options{"table": "analytics.people", "mode": "overwrite"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error mode with existing table", func(t *testing.T) {
		table, mock := mockTable(t)
		mock.ExpectQuery("SELECT COUNT").WithArgs("public", "people").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectClose()

		err := table.Write(context.Background(), ds, "", Options{"table": "people"})
		require.ErrorIs(t, err, ErrExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		table, mock := mockTable(t)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare("INSERT INTO")
		prep.ExpectExec().WillReturnError(assert.AnError)
		mock.ExpectRollback()
		mock.ExpectClose()

		err := table.Write(context.Background(), ds, "", Options{"table": "people", "mode": "append"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert row 0")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn := buildPostgresDSN(Options{"host": "db", "port": 6543, "database": "dq", "user": "etl", "password": "pw"})
	assert.Equal(t, "host=db port=6543 dbname=dq sslmode=disable user=etl password=pw", dsn)

	assert.Equal(t, "host=localhost port=5432 dbname=postgres sslmode=disable", buildPostgresDSN(nil))
}

func TestDuckDB_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dq.duckdb")
	want := sample(t)

	require.NoError(t, Write(ctx, want, "duckdb", path, Options{"table": "sample", "mode": "overwrite"}))
	got, err := Read(ctx, "duckdb", path, Options{"table": "sample"})
	require.NoError(t, err)
	assertSameData(t, want, got)

	require.NoError(t, Write(ctx, want, "duckdb", path, Options{"table": "sample", "mode": "append"}))
	got, err = Read(ctx, "duckdb", path, Options{"query": "SELECT count(*) AS n FROM sample"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Value(0, "n"))

	err = Write(ctx, want, "duckdb", path, Options{"table": "sample"})
	require.ErrorIs(t, err, ErrExists)
}
