package dataio

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataset"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func(logger *slog.Logger) Format { return newPostgres(logger) })
}

var postgresDialect = sqlDialect{
	name:          "postgres",
	defaultSchema: "public",
	placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
	typeName: func(t dataset.DType) string {
		switch t {
		case dataset.Integer:
			return "BIGINT"
		case dataset.Double:
			return "DOUBLE PRECISION"
		case dataset.Boolean:
			return "BOOLEAN"
		case dataset.Timestamp:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	},
}

// newPostgres returns the postgres table format. The location is a
// connection URL or key=value DSN; when empty the DSN is built from the
// host, port, database, user, password and sslmode options.
func newPostgres(logger *slog.Logger) *sqlTable {
	return &sqlTable{dialect: postgresDialect, open: openPostgres, logger: logger}
}

func openPostgres(ctx context.Context, location string, opts Options) (*sql.DB, error) {
	dsn := location
	if strings.TrimSpace(dsn) == "" {
		dsn = buildPostgresDSN(opts)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(opts Options) string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		opts.String("host", "localhost"),
		opts.Int("port", 5432),
		opts.String("database", "postgres"),
		opts.String("sslmode", "disable"))
	if user := opts.String("user", ""); user != "" {
		dsn += fmt.Sprintf(" user=%s", user)
	}
	if password := opts.String("password", ""); password != "" {
		dsn += fmt.Sprintf(" password=%s", password)
	}
	return dsn
}
