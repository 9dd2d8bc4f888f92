package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/engine"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
	"github.com/leapstack-labs/leapdq/internal/state"
)

// watchDebounce groups the burst of events an editor save produces.
const watchDebounce = 300 * time.Millisecond

// impactRows limits the rows printed per print_impact table.
const impactRows = 50

// RunOptions holds options for the run command.
type RunOptions struct {
	Stages     []string
	JSONOutput bool
	Watch      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run a pipeline",
		Long: `Read the input dataset, apply the column operations, run the configured
stages in dependency order and write the intermediate, final and statistics
outputs.

Every run is recorded in the state database. Use --stages to run a subset
of the stages, and --watch to run again whenever the pipeline file changes.`,
		Example: `  # Run a pipeline
  leapdq run configs/income.yaml

  # Only compute statistics and quality checks
  leapdq run configs/income.yaml --stages stats_generator,quality_checker

  # Re-run on every save
  leapdq run configs/income.yaml --watch

  # Emit JSON lines for CI/CD integration
  leapdq run configs/income.yaml --json`,
		Aliases: []string{"exec"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Stages, "stages", "s", nil, "Comma-separated list of stages to run")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Run again when the pipeline file changes")

	_ = cmd.RegisterFlagCompletionFunc("stages", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return pipeline.StageNames, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var progress *runProgress
	cmdCtx, cleanup, err := NewCommandContext(cmd, func(ev engine.Event) { progress.event(ev) })
	if err != nil {
		return err
	}
	defer cleanup()
	progress = &runProgress{r: cmdCtx.Renderer, json: opts.JSONOutput}

	if !opts.Watch {
		return runOnce(ctx, cmdCtx, progress, path, opts)
	}
	return watchPipeline(ctx, cmdCtx, path, func() {
		if err := runOnce(ctx, cmdCtx, progress, path, opts); err != nil && !opts.JSONOutput {
			cmdCtx.Renderer.Error(err.Error())
		}
	})
}

func runOnce(ctx context.Context, cmdCtx *CommandContext, progress *runProgress, path string, opts *RunOptions) error {
	p, err := pipeline.Load(path)
	if err != nil {
		return err
	}
	plan, err := engine.BuildPlan(p, opts.Stages)
	if err != nil {
		return err
	}
	var names []string
	for _, st := range plan.Stages() {
		names = append(names, st.Name)
	}

	progress.start(p.Path, names)
	start := time.Now()
	res, runErr := cmdCtx.Engine.Run(ctx, p, engine.RunOptions{Stages: opts.Stages})
	progress.finish(res, runErr, time.Since(start))
	return runErr
}

// runProgress renders engine events for the run command.
type runProgress struct {
	r    *output.Renderer
	json bool
}

func (p *runProgress) emit(ev output.RunEvent) {
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	_ = p.r.JSONLine(ev)
}

func (p *runProgress) start(path string, stages []string) {
	if p.json {
		p.emit(output.RunEvent{Event: "run_start", Pipeline: path, Stages: stages})
		return
	}
	p.r.Header(1, "Running "+filepath.Base(path))
	p.r.Muted("Stages: " + strings.Join(stages, ", "))
}

func (p *runProgress) event(ev engine.Event) {
	if p == nil {
		return
	}
	if p.json {
		p.emit(jsonEvent(ev))
		return
	}
	styles := p.r.Styles()
	switch ev.Kind {
	case engine.EventStepFinished:
		name := styles.Stage.Render(ev.Stage + "." + ev.Step)
		switch ev.Status {
		case state.StageRunStatusSuccess:
			p.r.Printf("  %s %s %s\n", styles.Success.Render("✓"), name,
				styles.Muted.Render(fmt.Sprintf("(%d rows, %d cols, %s)", ev.Rows, ev.Cols, ev.Duration.Round(time.Millisecond))))
		case state.StageRunStatusSkipped:
			p.r.Printf("  %s %s %s\n", styles.Muted.Render("○"), name, styles.Muted.Render("skipped"))
		default:
			p.r.Printf("  %s %s\n", styles.Error.Render("✗"), name)
		}
	case engine.EventImpact:
		p.r.Println("")
		p.r.Header(2, ev.Stage+": "+ev.Name)
		p.r.Dataset(ev.Data, impactRows)
		p.r.Println("")
	case engine.EventOutput:
		p.r.Muted(fmt.Sprintf("    wrote %s to %s (%d rows)", ev.Name, ev.Location, ev.Rows))
	}
}

func (p *runProgress) finish(res *engine.Result, runErr error, elapsed time.Duration) {
	var ok, failed, skipped int
	runID := ""
	if res != nil {
		runID = res.Run.ID
		for _, sr := range res.Steps {
			switch sr.Status {
			case state.StageRunStatusSuccess:
				ok++
			case state.StageRunStatusFailed:
				failed++
			case state.StageRunStatusSkipped:
				skipped++
			}
		}
	}

	if p.json {
		ev := output.RunEvent{
			Event:      "run_complete",
			RunID:      runID,
			Status:     string(state.RunStatusCompleted),
			Successful: ok,
			Failed:     failed,
			Skipped:    skipped,
			TotalMS:    elapsed.Milliseconds(),
		}
		if res != nil {
			ev.Status = string(res.Run.Status)
		}
		if runErr != nil {
			ev.Error = runErr.Error()
			if res == nil {
				ev.Status = string(state.RunStatusFailed)
			}
		}
		p.emit(ev)
		return
	}

	p.r.Println("")
	summary := fmt.Sprintf("%d steps succeeded, %d failed, %d skipped in %s", ok, failed, skipped, elapsed.Round(time.Millisecond))
	switch {
	case runErr == nil:
		p.r.Success(fmt.Sprintf("Run %s completed: %s", runID, summary))
	case errors.Is(runErr, context.Canceled):
		p.r.Warning(fmt.Sprintf("Run %s cancelled: %s", runID, summary))
	default:
		p.r.Error(fmt.Sprintf("Run %s failed: %s", runID, summary))
	}
}

func jsonEvent(ev engine.Event) output.RunEvent {
	out := output.RunEvent{
		Event:       string(ev.Kind),
		RunID:       ev.RunID,
		Stage:       ev.Stage,
		Step:        ev.Step,
		Status:      string(ev.Status),
		Rows:        ev.Rows,
		Cols:        ev.Cols,
		ExecutionMS: ev.Duration.Milliseconds(),
		Name:        ev.Name,
		Location:    ev.Location,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	if ev.Data != nil {
		out.Data = records(ev.Data)
	}
	return out
}

// records converts ds to one map per row.
func records(ds *dataset.Dataset) []map[string]any {
	names := ds.ColumnNames()
	out := make([]map[string]any, ds.NumRows())
	for i := range out {
		row := ds.Row(i)
		rec := make(map[string]any, len(names))
		for j, name := range names {
			rec[name] = row[j]
		}
		out[i] = rec
	}
	return out
}

// watchPipeline calls fn now and after every change to the file at path,
// until ctx is done.
func watchPipeline(ctx context.Context, cmdCtx *CommandContext, path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	// Editors often replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	fn()
	cmdCtx.Renderer.Muted("Watching " + path + " for changes (Ctrl+C to stop)")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(watchDebounce)
		case <-pending:
			pending = nil
			cmdCtx.Logger.Info("pipeline changed, running again", "path", path)
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cmdCtx.Logger.Warn("watch error", "error", err)
		}
	}
}
