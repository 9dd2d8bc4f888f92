package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const runColumns = `id, pipeline, status, rows_in, rows_out, started_at, completed_at, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&run.ID, &run.Pipeline, &run.Status, &run.RowsIn, &run.RowsOut,
		&run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// CreateRun starts a run of the named pipeline.
func (s *SQLiteStore) CreateRun(ctx context.Context, pipeline string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	run := &Run{
		ID:        generateID(),
		Pipeline:  pipeline,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("pipeline", pipeline))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun finishes a run with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, rowsIn, rowsOut int64, errMsg string) error {
	if s.db == nil {
		return errNotOpen
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, rows_in = ?, rows_out = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, rowsIn, rowsOut, time.Now().UTC(), nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun returns the most recent run of a pipeline, or nil when the
// pipeline never ran.
func (s *SQLiteStore) GetLatestRun(ctx context.Context, pipeline string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE pipeline = ? ORDER BY started_at DESC LIMIT 1`, pipeline))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordStageRun inserts a stage run. An empty id is generated.
func (s *SQLiteStore) RecordStageRun(ctx context.Context, sr *StageRun) error {
	if s.db == nil {
		return errNotOpen
	}
	if sr.ID == "" {
		sr.ID = generateID()
	}
	if sr.StartedAt.IsZero() {
		sr.StartedAt = time.Now().UTC()
	}
	if sr.Status == "" {
		sr.Status = StageRunStatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, run_id, stage, step, status, rows_in, cols_in, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.RunID, sr.Stage, sr.Step, sr.Status, sr.RowsIn, sr.ColsIn, sr.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage run: %w", err)
	}
	return nil
}

// UpdateStageRun stores the final status, output shape and error of a
// stage run and stamps its completion time.
func (s *SQLiteStore) UpdateStageRun(ctx context.Context, sr *StageRun) error {
	if s.db == nil {
		return errNotOpen
	}
	now := time.Now().UTC()
	sr.CompletedAt = &now
	sr.ExecutionMS = now.Sub(sr.StartedAt).Milliseconds()

	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ?, rows_out = ?, cols_out = ?, completed_at = ?, execution_ms = ?, error = ?
		 WHERE id = ?`,
		sr.Status, sr.RowsOut, sr.ColsOut, now, sr.ExecutionMS, nullString(sr.Error), sr.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage run not found: %s", sr.ID)
	}
	return nil
}

// GetStageRuns returns the stage runs of a run in start order.
func (s *SQLiteStore) GetStageRuns(ctx context.Context, runID string) ([]*StageRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, step, status, rows_in, rows_out, cols_in, cols_out,
		        started_at, completed_at, execution_ms, error
		 FROM stage_runs WHERE run_id = ? ORDER BY started_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*StageRun
	for rows.Next() {
		sr := &StageRun{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Stage, &sr.Step, &sr.Status,
			&sr.RowsIn, &sr.RowsOut, &sr.ColsIn, &sr.ColsOut,
			&sr.StartedAt, &completedAt, &sr.ExecutionMS, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		if completedAt.Valid {
			sr.CompletedAt = &completedAt.Time
		}
		sr.Error = errMsg.String
		out = append(out, sr)
	}
	return out, rows.Err()
}

// RecordOutput registers a written dataset.
func (s *SQLiteStore) RecordOutput(ctx context.Context, o *Output) error {
	if s.db == nil {
		return errNotOpen
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outputs (run_id, stage_run_id, kind, name, location, file_type, rows, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, nullString(o.StageRunID), o.Kind, o.Name, o.Location, o.FileType, o.Rows, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record output: %w", err)
	}
	o.ID, _ = res.LastInsertId()
	return nil
}

// GetOutputs returns the outputs of a run in write order.
func (s *SQLiteStore) GetOutputs(ctx context.Context, runID string) ([]*Output, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage_run_id, kind, name, location, file_type, rows, created_at
		 FROM outputs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Output
	for rows.Next() {
		o := &Output{}
		var stageRun sql.NullString
		if err := rows.Scan(&o.ID, &o.RunID, &stageRun, &o.Kind, &o.Name, &o.Location,
			&o.FileType, &o.Rows, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		o.StageRunID = stageRun.String
		out = append(out, o)
	}
	return out, rows.Err()
}
