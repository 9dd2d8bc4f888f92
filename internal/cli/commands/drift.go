package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/drift"
)

// NewDriftCommand creates the drift command.
func NewDriftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift [series]",
		Short: "Show stored stability metric history",
		Long: `List the metric history series kept in the state database by the
stability_index function, or print the history of one series: the mean,
standard deviation and kurtosis of each attribute per period.`,
		Example: `  # List series
  leapdq drift

  # Show a series
  leapdq drift income_monthly`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			if len(args) == 1 {
				return showSeries(cmd, cmdCtx, args[0])
			}
			return listSeries(cmd, cmdCtx)
		},
	}
	return cmd
}

func listSeries(cmd *cobra.Command, cmdCtx *CommandContext) error {
	r := cmdCtx.Renderer
	series, err := cmdCtx.Engine.Store().ListSeries(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list series: %w", err)
	}
	if r.EffectiveMode() == output.ModeJSON {
		if series == nil {
			series = []string{}
		}
		return r.JSON(series)
	}
	if len(series) == 0 {
		r.Muted("No metric history recorded in " + cmdCtx.Cfg.StatePath)
		return nil
	}
	r.Header(1, "Metric history series")
	for _, s := range series {
		r.Printf("- %s\n", s)
	}
	return nil
}

func showSeries(cmd *cobra.Command, cmdCtx *CommandContext, series string) error {
	r := cmdCtx.Renderer
	history, err := cmdCtx.Engine.Store().LoadHistory(cmd.Context(), series)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", series, err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no metric history for series %q", series)
	}
	ds, err := drift.HistoryDataset(history)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(records(ds))
	}
	r.Header(1, fmt.Sprintf("%s (%d periods)", series, history[len(history)-1].Idx))
	r.Dataset(ds, 0)
	return nil
}
