package dataio

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdq/internal/dataset"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Format { return newDuckDB(logger) })
}

var duckdbDialect = sqlDialect{
	name:          "duckdb",
	defaultSchema: "main",
	placeholder:   func(int) string { return "?" },
	typeName: func(t dataset.DType) string {
		switch t {
		case dataset.Integer:
			return "BIGINT"
		case dataset.Double:
			return "DOUBLE"
		case dataset.Boolean:
			return "BOOLEAN"
		case dataset.Timestamp:
			return "TIMESTAMP"
		default:
			return "VARCHAR"
		}
	},
}

// newDuckDB returns the duckdb table format. The location is the database
// file; an empty location opens an in-memory database.
func newDuckDB(logger *slog.Logger) *sqlTable {
	return &sqlTable{dialect: duckdbDialect, open: openDuckDB, logger: logger}
}

func openDuckDB(ctx context.Context, location string, _ Options) (*sql.DB, error) {
	path := location
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}
