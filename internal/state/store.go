// Package state records pipeline runs in SQLite: runs, the stage runs inside
// them, the outputs they wrote and the stability metric history used by the
// drift detector.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapdq/internal/drift"
)

// RunStatus is the status of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one execution of a pipeline file.
type Run struct {
	ID          string
	Pipeline    string
	Status      RunStatus
	RowsIn      int64
	RowsOut     int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StageRunStatus is the status of one step of a run.
type StageRunStatus string

// Stage run statuses.
const (
	StageRunStatusRunning StageRunStatus = "running"
	StageRunStatusSuccess StageRunStatus = "success"
	StageRunStatusFailed  StageRunStatus = "failed"
	StageRunStatusSkipped StageRunStatus = "skipped"
)

// StageRun is one stage function executed within a run, e.g.
// quality_checker / outlier_detection.
type StageRun struct {
	ID          string
	RunID       string
	Stage       string
	Step        string
	Status      StageRunStatus
	RowsIn      int64
	RowsOut     int64
	ColsIn      int64
	ColsOut     int64
	StartedAt   time.Time
	CompletedAt *time.Time
	ExecutionMS int64
	Error       string
}

// OutputKind says which write block an output came from.
type OutputKind string

// Output kinds.
const (
	OutputIntermediate OutputKind = "intermediate"
	OutputMain         OutputKind = "main"
	OutputStats        OutputKind = "stats"
)

// Output is a dataset written during a run.
type Output struct {
	ID         int64
	RunID      string
	StageRunID string
	Kind       OutputKind
	Name       string
	Location   string
	FileType   string
	Rows       int64
	CreatedAt  time.Time
}

// Store persists run state. It also keeps the stability index history.
type Store interface {
	CreateRun(ctx context.Context, pipeline string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, rowsIn, rowsOut int64, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetLatestRun(ctx context.Context, pipeline string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	RecordStageRun(ctx context.Context, sr *StageRun) error
	UpdateStageRun(ctx context.Context, sr *StageRun) error
	GetStageRuns(ctx context.Context, runID string) ([]*StageRun, error)

	RecordOutput(ctx context.Context, o *Output) error
	GetOutputs(ctx context.Context, runID string) ([]*Output, error)

	drift.HistoryStore
	ListSeries(ctx context.Context) ([]string, error)

	Close() error
}
