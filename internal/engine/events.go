package engine

import (
	"time"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/state"
)

// EventKind identifies an engine event.
type EventKind string

// Event kinds.
const (
	EventStepStarted  EventKind = "step_started"
	EventStepFinished EventKind = "step_finished"
	EventImpact       EventKind = "impact"
	EventOutput       EventKind = "output"
)

// Event reports progress. Which fields are set depends on Kind: step events
// carry Stage, Step and, once finished, Status, Rows, Cols, Duration and
// Err; impact events carry Name and Data; output events carry Name,
// Location and Rows.
type Event struct {
	Kind     EventKind
	RunID    string
	Stage    string
	Step     string
	Status   state.StageRunStatus
	Rows     int
	Cols     int
	Duration time.Duration
	Err      error
	Name     string
	Location string
	Data     *dataset.Dataset
}
