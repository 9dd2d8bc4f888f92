package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/drift"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
	"github.com/leapstack-labs/leapdq/internal/state"
)

// RunOptions restrict a run.
type RunOptions struct {
	// Stages limits the run to the named stages.
	Stages []string
}

// Result is the outcome of a run.
type Result struct {
	Run     *state.Run
	Data    *dataset.Dataset
	Steps   []*state.StageRun
	Outputs []*state.Output
}

// execution is the state of one run.
type execution struct {
	e      *Engine
	p      *pipeline.Pipeline
	runID  string
	rowsIn int
}

// Run validates p and executes it. The run is recorded even when it fails;
// the returned Result is nil only when the run could not be started.
func (e *Engine) Run(ctx context.Context, p *pipeline.Pipeline, opts RunOptions) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline %s: %w", p.Path, err)
	}
	plan, err := BuildPlan(p, opts.Stages)
	if err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(ctx, p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Info("starting run", "run_id", run.ID, "pipeline", p.Path, "stages", len(plan.Stages()))

	x := &execution{e: e, p: p, runID: run.ID}
	data, runErr := x.execute(ctx, plan)

	// record the outcome even when ctx was cancelled
	bg := context.WithoutCancel(ctx)
	var rowsOut int64
	if data != nil {
		rowsOut = int64(data.NumRows())
	}
	status, msg := state.RunStatusCompleted, ""
	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		status, msg = state.RunStatusCancelled, runErr.Error()
	case runErr != nil:
		status, msg = state.RunStatusFailed, runErr.Error()
	}
	if err := e.store.CompleteRun(bg, run.ID, status, int64(x.rowsIn), rowsOut, msg); err != nil {
		e.logger.Error("failed to complete run", "run_id", run.ID, "error", err)
	}
	if runErr != nil {
		e.logger.Info("run failed", "run_id", run.ID, "error", runErr.Error())
	} else {
		e.logger.Info("run completed", "run_id", run.ID, "rows", rowsOut)
	}

	res := &Result{Data: data, Run: run}
	if r, err := e.store.GetRun(bg, run.ID); err == nil {
		res.Run = r
	}
	res.Steps, _ = e.store.GetStageRuns(bg, run.ID)
	res.Outputs, _ = e.store.GetOutputs(bg, run.ID)
	return res, runErr
}

func (x *execution) execute(ctx context.Context, plan *Plan) (*dataset.Dataset, error) {
	ds, err := x.readMain(ctx)
	if err != nil {
		x.skip(ctx, "input dataset failed", plan.Stages()...)
		return nil, fmt.Errorf("%s: %w", pipeline.InputDatasetKey, err)
	}
	x.rowsIn = ds.NumRows()

	for i, level := range plan.Levels {
		ds, err = x.level(ctx, ds, level)
		if err != nil {
			for _, rest := range plan.Levels[i+1:] {
				x.skip(ctx, "upstream stage failed", rest...)
			}
			return ds, err
		}
	}

	if loc := x.p.WriteMain; loc != nil {
		if err := x.write(ctx, ds, state.OutputMain, "final_dataset", *loc, loc.FilePath, "", nil); err != nil {
			return ds, fmt.Errorf("%s: %w", pipeline.WriteMainKey, err)
		}
	}
	return ds, nil
}

// level runs one execution level. Read-only stages of a level share the
// dataset and run concurrently.
func (x *execution) level(ctx context.Context, ds *dataset.Dataset, level []pipeline.Stage) (*dataset.Dataset, error) {
	concurrent := len(level) > 1
	for _, st := range level {
		if Mutates(st.Name) {
			concurrent = false
		}
	}
	if !concurrent {
		for j, st := range level {
			out, err := x.stage(ctx, ds, st)
			if err != nil {
				x.skip(ctx, "upstream stage failed", level[j+1:]...)
				return ds, err
			}
			ds = out
		}
		return ds, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range level {
		g.Go(func() error {
			_, err := x.stage(gctx, ds, st)
			return err
		})
	}
	return ds, g.Wait()
}

func (x *execution) stage(ctx context.Context, ds *dataset.Dataset, st pipeline.Stage) (*dataset.Dataset, error) {
	if st.Name == pipeline.ReportGeneration {
		x.e.logger.Warn("report rendering is not supported, skipping stage", "stage", st.Name)
		x.skip(ctx, "report rendering is not supported", st)
		return ds, nil
	}
	x.e.logger.Debug("running stage", "stage", st.Name, "steps", len(st.Steps))

	if Mutates(st.Name) {
		for i, step := range st.Steps {
			out, err := x.step(ctx, ds, st.Name, step)
			if err != nil {
				x.skipSteps(ctx, st.Name, "previous step failed", st.Steps[i+1:])
				return ds, err
			}
			ds = out
		}
		return ds, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.e.workers)
	for _, step := range st.Steps {
		g.Go(func() error {
			_, err := x.step(gctx, ds, st.Name, step)
			return err
		})
	}
	return ds, g.Wait()
}

func stepName(step pipeline.Step) string {
	if step.Group != "" {
		return step.Group + "." + step.Name
	}
	return step.Name
}

func (x *execution) step(ctx context.Context, ds *dataset.Dataset, stageName string, step pipeline.Step) (*dataset.Dataset, error) {
	sr := &state.StageRun{
		RunID:  x.runID,
		Stage:  stageName,
		Step:   stepName(step),
		RowsIn: int64(ds.NumRows()),
		ColsIn: int64(ds.NumCols()),
	}
	if err := x.e.store.RecordStageRun(ctx, sr); err != nil {
		return ds, err
	}
	x.e.emit(Event{Kind: EventStepStarted, RunID: x.runID, Stage: stageName, Step: sr.Step})
	start := time.Now()

	out := ds
	res, err := x.runner(stageName, step).Run(ctx, step.Name, ds, pipeline.StepDecoder(step.Args))
	if err == nil {
		if res.Data != nil && Mutates(stageName) {
			out = res.Data
		}
		err = x.outputs(ctx, stageName, step, sr.ID, ds, out, res.Stats)
	}

	sr.RowsOut, sr.ColsOut = int64(out.NumRows()), int64(out.NumCols())
	sr.Status = state.StageRunStatusSuccess
	if err != nil {
		sr.Status, sr.Error = state.StageRunStatusFailed, err.Error()
	}
	if uerr := x.e.store.UpdateStageRun(context.WithoutCancel(ctx), sr); uerr != nil {
		x.e.logger.Error("failed to update stage run", "stage", stageName, "step", sr.Step, "error", uerr)
	}
	x.e.emit(Event{
		Kind:     EventStepFinished,
		RunID:    x.runID,
		Stage:    stageName,
		Step:     sr.Step,
		Status:   sr.Status,
		Rows:     out.NumRows(),
		Cols:     out.NumCols(),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return ds, fmt.Errorf("%s: %w", step.Path(stageName), err)
	}
	x.e.logger.Debug("step complete", "stage", stageName, "step", sr.Step,
		"rows", out.NumRows(), "cols", out.NumCols(), "duration", time.Since(start))
	return out, nil
}

func (x *execution) runner(stageName string, step pipeline.Step) Runner {
	switch stageName {
	case pipeline.StatsGenerator:
		return x.e.stats
	case pipeline.QualityChecker:
		return x.e.quality
	case pipeline.AssociationEvaluator:
		return x.e.association
	case pipeline.DriftDetector:
		return drift.NewRunner(x.e.detector, x.driftEnv(step))
	case pipeline.ReportPreprocessing:
		return x.e.report
	default:
		return x.e.transform
	}
}

// driftEnv binds the nested dataset blocks of a drift_detector function.
func (x *execution) driftEnv(step pipeline.Step) drift.Env {
	return drift.Env{
		Load: func(ctx context.Context, key string) (*dataset.Dataset, error) {
			raw, ok := step.Args[key]
			if !ok || raw == nil {
				return nil, nil
			}
			in, err := pipeline.DecodeInput(raw)
			if err != nil {
				return nil, err
			}
			return x.e.readInput(ctx, in)
		},
		ReadTable: x.e.readTable,
		Tables:    x.e.resolver,
		History:   x.e.store,
	}
}

// skip records the steps of stages that will not run.
func (x *execution) skip(ctx context.Context, reason string, stages ...pipeline.Stage) {
	for _, st := range stages {
		steps := st.Steps
		if len(steps) == 0 {
			steps = []pipeline.Step{{}}
		}
		x.skipSteps(ctx, st.Name, reason, steps)
	}
}

func (x *execution) skipSteps(ctx context.Context, stageName, reason string, steps []pipeline.Step) {
	for _, step := range steps {
		sr := &state.StageRun{
			RunID:  x.runID,
			Stage:  stageName,
			Step:   stepName(step),
			Status: state.StageRunStatusSkipped,
			Error:  reason,
		}
		bg := context.WithoutCancel(ctx)
		if err := x.e.store.RecordStageRun(bg, sr); err != nil {
			x.e.logger.Error("failed to record skipped step", "stage", stageName, "error", err)
			continue
		}
		if err := x.e.store.UpdateStageRun(bg, sr); err != nil {
			x.e.logger.Error("failed to update stage run", "stage", stageName, "step", sr.Step, "error", err)
		}
		x.e.emit(Event{Kind: EventStepFinished, RunID: x.runID, Stage: stageName, Step: sr.Step, Status: sr.Status})
	}
}
