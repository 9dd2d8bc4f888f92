package state

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/leapstack-labs/leapdq/internal/drift"
)

func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

// LoadHistory returns the metric history of a series ordered by period and
// attribute.
func (s *SQLiteStore) LoadHistory(ctx context.Context, series string) ([]drift.MetricRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, attribute, mean, stddev, kurtosis FROM metric_history
		 WHERE series = ? ORDER BY idx, attribute`, series)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []drift.MetricRecord
	for rows.Next() {
		var r drift.MetricRecord
		var mean, stddev, kurtosis sql.NullFloat64
		if err := rows.Scan(&r.Idx, &r.Attribute, &mean, &stddev, &kurtosis); err != nil {
			return nil, fmt.Errorf("failed to scan metric history: %w", err)
		}
		r.Mean, r.Stddev, r.Kurtosis = floatOrNaN(mean), floatOrNaN(stddev), floatOrNaN(kurtosis)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendHistory stores records under series in one transaction. A record
// for an existing period and attribute replaces it.
func (s *SQLiteStore) AppendHistory(ctx context.Context, series string, records []drift.MetricRecord) error {
	if s.db == nil {
		return errNotOpen
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO metric_history (series, idx, attribute, mean, stddev, kurtosis, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, series, r.Idx, r.Attribute,
			nullFloat(r.Mean), nullFloat(r.Stddev), nullFloat(r.Kurtosis), now); err != nil {
			return fmt.Errorf("failed to insert metric history: %w", err)
		}
	}
	return tx.Commit()
}

// ListSeries returns the names of the stored metric histories.
func (s *SQLiteStore) ListSeries(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT series FROM metric_history ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
