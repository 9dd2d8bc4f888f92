package dataio

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	name          string
	defaultSchema string
	placeholder   func(n int) string
	typeName      func(t dataset.DType) string
}

// opener connects to the database named by a location.
type opener func(ctx context.Context, location string, opts Options) (*sql.DB, error)

// sqlTable reads and writes tables through database/sql. The table is
// named by the "table" option; reads may instead pass a "query".
type sqlTable struct {
	dialect sqlDialect
	open    opener
	logger  *slog.Logger
}

func (s *sqlTable) Name() string {
	return s.dialect.name
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualified splits and quotes a possibly schema qualified table name.
func (s *sqlTable) qualified(table string) (schema, name, quoted string) {
	schema, name = s.dialect.defaultSchema, table
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		schema, name = parts[0], parts[1]
	}
	return schema, name, quoteIdent(schema) + "." + quoteIdent(name)
}

func (s *sqlTable) Read(ctx context.Context, location string, opts Options) (*dataset.Dataset, error) {
	query := opts.String("query", "")
	if query == "" {
		table := opts.String("table", "")
		if table == "" {
			return nil, fmt.Errorf("%s read requires a table or query option", s.dialect.name)
		}
		_, _, quoted := s.qualified(table)
		query = "SELECT * FROM " + quoted
	}

	db, err := s.open(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	s.logger.Debug("querying table", "dialect", s.dialect.name, "query", query)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

// scanRows drains rows into a dataset. Column types come from the driver's
// type names, falling back to the scanned values.
func scanRows(rows *sql.Rows) (*dataset.Dataset, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	values := make([][]any, len(colTypes))
	for j := range values {
		values[j] = []any{}
	}
	dest := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for j := range dest {
		ptrs[j] = &dest[j]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for j, v := range dest {
			values[j] = append(values[j], sqlValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	cols := make([]*dataset.Column, len(colTypes))
	for j, ct := range colTypes {
		t, ok := sqlType(ct.DatabaseTypeName())
		if !ok {
			t = valuesType(values[j])
		}
		for i, v := range values[j] {
			values[j][i] = dataset.Cast(v, t)
		}
		cols[j] = dataset.NewColumn(ct.Name(), t, values[j])
	}
	return dataset.New(cols...)
}

// sqlValue normalizes driver values to dataset values.
func sqlValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // row counts and ids
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	case interface{ Float64() float64 }:
		return x.Float64()
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func sqlType(name string) (dataset.DType, bool) {
	n := strings.ToUpper(name)
	switch {
	case n == "":
		return "", false
	case strings.HasPrefix(n, "INT"), strings.HasSuffix(n, "INT"), n == "HUGEINT", strings.HasPrefix(n, "UINT"):
		return dataset.Integer, true
	case strings.HasPrefix(n, "FLOAT"), strings.HasPrefix(n, "DOUBLE"), n == "REAL",
		strings.HasPrefix(n, "DECIMAL"), strings.HasPrefix(n, "NUMERIC"):
		return dataset.Double, true
	case strings.HasPrefix(n, "BOOL"):
		return dataset.Boolean, true
	case strings.HasPrefix(n, "TIMESTAMP"), n == "DATE", n == "DATETIME":
		return dataset.Timestamp, true
	default:
		return dataset.String, true
	}
}

func valuesType(values []any) dataset.DType {
	t := dataset.DType("")
	for _, v := range values {
		var vt dataset.DType
		switch v.(type) {
		case nil:
			continue
		case int64:
			vt = dataset.Integer
		case float64:
			vt = dataset.Double
		case bool:
			vt = dataset.Boolean
		case time.Time:
			vt = dataset.Timestamp
		default:
			vt = dataset.String
		}
		if t == "" {
			t = vt
		} else {
			t = dataset.Widen(t, vt)
		}
	}
	if t == "" {
		return dataset.String
	}
	return t
}

func (s *sqlTable) Write(ctx context.Context, ds *dataset.Dataset, location string, opts Options) error {
	table := opts.String("table", "")
	if table == "" {
		return fmt.Errorf("%s write requires a table option", s.dialect.name)
	}
	mode, err := opts.Mode()
	if err != nil {
		return err
	}
	if ds.NumCols() == 0 {
		return fmt.Errorf("cannot write a dataset without columns to %s", s.dialect.name)
	}

	db, err := s.open(ctx, location, opts)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	schema, name, quoted := s.qualified(table)
	exists, err := s.tableExists(ctx, db, schema, name)
	if err != nil {
		return err
	}
	switch mode {
	case ErrorMode:
		if exists {
			return fmt.Errorf("table %s: %w", table, ErrExists)
		}
	case Ignore:
		if exists {
			s.logger.Info("table exists, skipping write", "table", table)
			return nil
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if mode == Overwrite && exists {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoted); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
		exists = false
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, s.createTable(quoted, ds)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
	}

	names := make([]string, ds.NumCols())
	marks := make([]string, ds.NumCols())
	for j, c := range ds.Columns() {
		names[j] = quoteIdent(c.Name)
		marks[j] = s.dialect.placeholder(j + 1)
	}
	//nolint:gosec // identifiers are quoted
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoted, strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < ds.NumRows(); i++ {
		if _, err := stmt.ExecContext(ctx, ds.Row(i)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logger.Debug("wrote table", "dialect", s.dialect.name, "table", table, "rows", ds.NumRows(), "mode", mode)
	return nil
}

func (s *sqlTable) createTable(quoted string, ds *dataset.Dataset) string {
	defs := make([]string, ds.NumCols())
	for j, c := range ds.Columns() {
		defs[j] = quoteIdent(c.Name) + " " + s.dialect.typeName(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", "))
}

func (s *sqlTable) tableExists(ctx context.Context, db *sql.DB, schema, name string) (bool, error) {
	//nolint:gosec // placeholders come from the dialect
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2))
	var n int64
	if err := db.QueryRowContext(ctx, query, schema, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", schema, name, err)
	}
	return n > 0, nil
}
