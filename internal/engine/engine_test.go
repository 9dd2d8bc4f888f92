package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
	"github.com/leapstack-labs/leapdq/internal/state"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

const incomeCSV = `id,age,income,city
1,25,1000,paris
2,35,2000,lyon
2,35,2000,lyon
3,45,3000,nice
4,55,5000,paris
`

// setup writes the income fixture and a pipeline file into a temp dir.
func setup(t *testing.T, body string) (dir string, p *pipeline.Pipeline) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "income.csv"), []byte(incomeCSV), 0o600))
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(body, "DIR", dir)), 0o600))

	p, err := pipeline.Load(path)
	require.NoError(t, err)
	return dir, p
}

func newEngine(t *testing.T, onEvent func(Event)) *Engine {
	t.Helper()
	e, err := New(context.Background(), Config{Logger: testutil.NewTestLogger(t), OnEvent: onEvent, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

const basePipeline = `
input_dataset:
  read_dataset:
    file_path: DIR/income.csv
    file_type: csv
    file_configs:
      header: true
      inferSchema: true
  delete_column: city

stats_generator:
  metric: [measures_of_counts, measures_of_centralTendency]
  metric_args:
    list_of_cols: all

quality_checker:
  duplicate_detection:
    treatment: true

transformers:
  numerical_rescaling:
    normalization:
      list_of_cols: income

write_intermediate:
  file_path: DIR/intermediate
  file_type: csv
  file_configs:
    mode: overwrite
write_main:
  file_path: DIR/main
  file_type: csv
  file_configs:
    mode: overwrite
write_stats:
  file_path: DIR/stats
  file_type: csv
  file_configs:
    mode: overwrite
`

func TestEngine_Run(t *testing.T) {
	dir, p := setup(t, basePipeline)
	e := newEngine(t, nil)

	res, err := e.Run(context.Background(), p, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, state.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, int64(5), res.Run.RowsIn)
	assert.Equal(t, int64(4), res.Run.RowsOut)

	require.NotNil(t, res.Data)
	assert.Equal(t, []string{"id", "age", "income"}, res.Data.ColumnNames())
	income, _ := res.Data.Column("income")
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 1}, income.Floats(), 1e-9)

	var steps []string
	for _, sr := range res.Steps {
		assert.Equal(t, state.StageRunStatusSuccess, sr.Status, sr.Step)
		steps = append(steps, sr.Stage+"."+sr.Step)
	}
	assert.ElementsMatch(t, []string{
		"stats_generator.measures_of_counts",
		"stats_generator.measures_of_centralTendency",
		"quality_checker.duplicate_detection",
		"transformers.numerical_rescaling.normalization",
	}, steps)

	for _, rel := range []string{
		"main",
		"stats/stats_generator/measures_of_counts",
		"stats/stats_generator/measures_of_centralTendency",
		"stats/quality_checker/duplicate_detection",
		"intermediate/quality_checker/duplicate_detection/dataset",
		"intermediate/transformers/numerical_rescaling/normalization/dataset",
	} {
		assert.DirExists(t, filepath.Join(dir, rel))
	}

	main, err := dataio.Read(context.Background(), "csv", filepath.Join(dir, "main"),
		dataio.Options{"header": true, "inferSchema": true})
	require.NoError(t, err)
	assert.Equal(t, 4, main.NumRows())

	kinds := map[state.OutputKind]int{}
	for _, o := range res.Outputs {
		kinds[o.Kind]++
	}
	assert.Equal(t, map[state.OutputKind]int{
		state.OutputMain:         1,
		state.OutputStats:        3,
		state.OutputIntermediate: 2,
	}, kinds)
}

func TestEngine_Run_Stages(t *testing.T) {
	dir, p := setup(t, basePipeline)
	e := newEngine(t, nil)

	res, err := e.Run(context.Background(), p, RunOptions{Stages: []string{pipeline.StatsGenerator}})
	require.NoError(t, err)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, 5, res.Data.NumRows(), "no mutating stage ran")
	assert.NoDirExists(t, filepath.Join(dir, "intermediate"))

	_, err = e.Run(context.Background(), p, RunOptions{Stages: []string{"nope"}})
	require.Error(t, err)
}

func TestEngine_Run_Failure(t *testing.T) {
	_, p := setup(t, strings.Replace(basePipeline,
		"duplicate_detection:\n    treatment: true",
		"duplicate_detection:\n    list_of_cols: missing\n    treatment: true", 1))
	e := newEngine(t, nil)

	res, err := e.Run(context.Background(), p, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality_checker.duplicate_detection")
	require.NotNil(t, res)
	assert.Equal(t, state.RunStatusFailed, res.Run.Status)

	status := map[string]state.StageRunStatus{}
	for _, sr := range res.Steps {
		status[sr.Stage+"."+sr.Step] = sr.Status
	}
	assert.Equal(t, state.StageRunStatusSuccess, status["stats_generator.measures_of_counts"])
	assert.Equal(t, state.StageRunStatusFailed, status["quality_checker.duplicate_detection"])
	assert.Equal(t, state.StageRunStatusSkipped, status["transformers.numerical_rescaling.normalization"])

	runs, err := e.Store().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
}

func TestEngine_Run_InvalidPipeline(t *testing.T) {
	_, p := setup(t, strings.Replace(basePipeline, "measures_of_counts,", "measures_of_nothing,", 1))
	e := newEngine(t, nil)

	res, err := e.Run(context.Background(), p, RunOptions{})
	require.Error(t, err)
	assert.Nil(t, res)

	runs, err := e.Store().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "invalid pipelines are not recorded")
}

func TestEngine_Events(t *testing.T) {
	body := strings.Replace(basePipeline, "list_of_cols: income", "list_of_cols: income\n      print_impact: true", 1)
	body = strings.Replace(body, "delete_column: city",
		"delete_column: city\n  rename_column:\n    list_of_cols: age\n    list_of_newcols: age_years\n    print_impact: true", 1)
	_, p := setup(t, body)

	var (
		mu     sync.Mutex
		events []Event
	)
	e := newEngine(t, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	_, err := e.Run(context.Background(), p, RunOptions{})
	require.NoError(t, err)

	var started, finished, outputs int
	impacts := map[string]int{}
	for _, ev := range events {
		switch ev.Kind {
		case EventStepStarted:
			started++
		case EventStepFinished:
			finished++
		case EventOutput:
			outputs++
		case EventImpact:
			require.NotNil(t, ev.Data)
			impacts[ev.Name] = ev.Data.NumRows()
		}
	}
	assert.Equal(t, 4, started)
	assert.Equal(t, 4, finished)
	assert.Equal(t, 6, outputs)
	assert.Equal(t, 3, impacts["schema"], "one row per input column")
	assert.Equal(t, 1, impacts["normalization_impact"], "only the rescaled column")
}

func TestEngine_ReportGenerationSkipped(t *testing.T) {
	_, p := setup(t, basePipeline+"\nreport_generation:\n  final_report_path: DIR/report\n")
	logger, logs := testutil.NewBufferLogger(slog.LevelWarn)
	e, err := New(context.Background(), Config{Logger: logger, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	res, err := e.Run(context.Background(), p, RunOptions{Stages: []string{pipeline.ReportGeneration}})
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, pipeline.ReportGeneration, res.Steps[0].Stage)
	assert.Equal(t, state.StageRunStatusSkipped, res.Steps[0].Status)

	var warned bool
	for _, line := range logs.Lines() {
		if strings.Contains(line, "level=WARN") && strings.Contains(line, "stage=report_generation") {
			warned = true
		}
	}
	assert.True(t, warned, "skipping report_generation should log a warning")
}

// failingUpdates rejects updates of skipped steps.
type failingUpdates struct {
	state.Store
}

func (s failingUpdates) UpdateStageRun(ctx context.Context, sr *state.StageRun) error {
	if sr.Status == state.StageRunStatusSkipped {
		return errors.New("database is locked")
	}
	return s.Store.UpdateStageRun(ctx, sr)
}

func TestEngine_SkippedStepUpdateFailure(t *testing.T) {
	_, p := setup(t, basePipeline+"\nreport_generation:\n  final_report_path: DIR/report\n")
	ctx := context.Background()
	db := state.NewSQLiteStore(nil)
	require.NoError(t, db.Open(ctx, ":memory:"))
	t.Cleanup(func() { _ = db.Close() })

	logger, logs := testutil.NewBufferLogger(slog.LevelError)
	e, err := New(ctx, Config{Store: failingUpdates{db}, Logger: logger, Workers: 2})
	require.NoError(t, err)

	_, err = e.Run(ctx, p, RunOptions{Stages: []string{pipeline.ReportGeneration}})
	require.NoError(t, err)

	var logged bool
	for _, line := range logs.Lines() {
		if strings.Contains(line, "failed to update stage run") && strings.Contains(line, "database is locked") {
			logged = true
		}
	}
	assert.True(t, logged, "a failed update of a skipped step should be logged")
}
