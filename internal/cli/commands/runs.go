package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded pipeline runs",
		Long: `List the most recent runs from the state database, or show the steps
and outputs of a single run.`,
		Example: `  # List recent runs
  leapdq runs

  # Show one run
  leapdq runs 5f0c6a0e-1d2b-4f7e-9a51-3c1b2f4d6e8a

  # Output as JSON
  leapdq runs --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func runSummary(run *state.Run) output.RunSummary {
	return output.RunSummary{
		ID:          run.ID,
		Pipeline:    run.Pipeline,
		Status:      string(run.Status),
		RowsIn:      run.RowsIn,
		RowsOut:     run.RowsOut,
		StartedAt:   formatTime(&run.StartedAt),
		CompletedAt: formatTime(run.CompletedAt),
		Error:       run.Error,
	}
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	runs, err := cmdCtx.Engine.Store().ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	summaries := make([]output.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary(run))
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summaries)
	}
	if len(summaries) == 0 {
		r.Muted("No runs recorded in " + cmdCtx.Cfg.StatePath)
		return nil
	}
	rows := make([][]any, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []any{s.ID, s.Pipeline, s.Status, s.RowsIn, s.RowsOut, s.StartedAt})
	}
	r.Header(1, "Runs")
	r.Table([]string{"id", "pipeline", "status", "rows in", "rows out", "started"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, id string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer
	store := cmdCtx.Engine.Store()
	ctx := cmd.Context()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	stageRuns, err := store.GetStageRuns(ctx, id)
	if err != nil {
		return err
	}
	outputs, err := store.GetOutputs(ctx, id)
	if err != nil {
		return err
	}

	steps := make([]output.StepSummary, 0, len(stageRuns))
	for _, sr := range stageRuns {
		steps = append(steps, output.StepSummary{
			Stage:       sr.Stage,
			Step:        sr.Step,
			Status:      string(sr.Status),
			RowsIn:      sr.RowsIn,
			RowsOut:     sr.RowsOut,
			ExecutionMS: sr.ExecutionMS,
			Error:       sr.Error,
		})
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"run": runSummary(run), "steps": steps, "outputs": outputs})
	}

	s := runSummary(run)
	r.Header(1, "Run "+s.ID)
	r.Println(output.FormatKeyValue("Pipeline", s.Pipeline))
	r.Println(output.FormatKeyValue("Status", s.Status))
	r.Println(output.FormatKeyValue("Rows", fmt.Sprintf("%d in, %d out", s.RowsIn, s.RowsOut)))
	r.Println(output.FormatKeyValue("Started", s.StartedAt))
	if s.CompletedAt != "" {
		r.Println(output.FormatKeyValue("Completed", s.CompletedAt))
	}
	if s.Error != "" {
		r.Println(output.FormatKeyValue("Error", s.Error))
	}

	r.Println("")
	r.Header(2, "Steps")
	rows := make([][]any, 0, len(steps))
	for _, st := range steps {
		rows = append(rows, []any{st.Stage, st.Step, st.Status, st.RowsIn, st.RowsOut, st.ExecutionMS, st.Error})
	}
	r.Table([]string{"stage", "step", "status", "rows in", "rows out", "ms", "error"}, rows)

	if len(outputs) > 0 {
		r.Println("")
		r.Header(2, "Outputs")
		rows = rows[:0]
		for _, o := range outputs {
			rows = append(rows, []any{o.Kind, o.Name, o.FileType, o.Location, o.Rows})
		}
		r.Table([]string{"kind", "name", "format", "location", "rows"}, rows)
	}
	return nil
}
