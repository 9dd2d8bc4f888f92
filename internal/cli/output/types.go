package output

// RunEvent is one JSON line of `run --json`.
type RunEvent struct {
	Event       string           `json:"event"`
	Timestamp   string           `json:"timestamp"`
	RunID       string           `json:"run_id,omitempty"`
	Pipeline    string           `json:"pipeline,omitempty"`
	Stages      []string         `json:"stages,omitempty"`
	Stage       string           `json:"stage,omitempty"`
	Step        string           `json:"step,omitempty"`
	Status      string           `json:"status,omitempty"`
	Rows        int              `json:"rows,omitempty"`
	Cols        int              `json:"cols,omitempty"`
	ExecutionMS int64            `json:"execution_ms,omitempty"`
	Name        string           `json:"name,omitempty"`
	Location    string           `json:"location,omitempty"`
	Data        []map[string]any `json:"data,omitempty"`
	Error       string           `json:"error,omitempty"`
	Successful  int              `json:"successful,omitempty"`
	Failed      int              `json:"failed,omitempty"`
	Skipped     int              `json:"skipped,omitempty"`
	TotalMS     int64            `json:"total_ms,omitempty"`
}

// RunSummary is a recorded run as listed by `runs`.
type RunSummary struct {
	ID          string `json:"id"`
	Pipeline    string `json:"pipeline"`
	Status      string `json:"status"`
	RowsIn      int64  `json:"rows_in"`
	RowsOut     int64  `json:"rows_out"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StepSummary is a recorded step of a run.
type StepSummary struct {
	Stage       string `json:"stage"`
	Step        string `json:"step"`
	Status      string `json:"status"`
	RowsIn      int64  `json:"rows_in"`
	RowsOut     int64  `json:"rows_out"`
	ExecutionMS int64  `json:"execution_ms"`
	Error       string `json:"error,omitempty"`
}

// PlanLevel is one execution level of `validate --print`.
type PlanLevel struct {
	Level  int         `json:"level"`
	Stages []PlanStage `json:"stages"`
}

// PlanStage is a planned stage with its steps.
type PlanStage struct {
	Name     string   `json:"name"`
	Mutating bool     `json:"mutating"`
	Steps    []string `json:"steps"`
}

// StageInfo describes a stage and its functions for `stages`.
type StageInfo struct {
	Name      string   `json:"name"`
	Mutating  bool     `json:"mutating"`
	Functions []string `json:"functions"`
}
