package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapdq/internal/association"
	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/drift"
	"github.com/leapstack-labs/leapdq/internal/engine"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
	"github.com/leapstack-labs/leapdq/internal/quality"
	"github.com/leapstack-labs/leapdq/internal/report"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/transform"
)

// NewStagesCommand creates the stages command.
func NewStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the stages and the functions each one accepts",
		Long: `List every stage block a pipeline file may contain, in default execution
order, with the functions (or metrics) it accepts. Transformer functions are
shown as group.function.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd)
		},
	}
}

// stageFunctions returns the function names accepted by a stage block.
func stageFunctions(name string) []string {
	switch name {
	case pipeline.StatsGenerator:
		return stats.Metrics
	case pipeline.QualityChecker:
		return quality.Checks
	case pipeline.AssociationEvaluator:
		return association.Evaluations
	case pipeline.DriftDetector:
		return drift.Functions
	case pipeline.ReportPreprocessing:
		return report.Functions
	case pipeline.Transformers:
		var out []string
		for _, g := range transform.GroupNames() {
			for _, fn := range transform.Groups[g] {
				out = append(out, g+"."+fn)
			}
		}
		return out
	}
	return []string{}
}

func runStages(cmd *cobra.Command) error {
	r := NewCommandContextWithoutEngine(cmd).Renderer

	infos := make([]output.StageInfo, 0, len(pipeline.StageNames))
	for _, name := range pipeline.StageNames {
		infos = append(infos, output.StageInfo{
			Name:      name,
			Mutating:  engine.Mutates(name),
			Functions: stageFunctions(name),
		})
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(infos)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Stages"))
		for _, info := range infos {
			r.Println("")
			r.Println(output.FormatHeader(2, info.Name+mutatingSuffix(info.Mutating)))
			for _, fn := range info.Functions {
				r.Printf("- %s\n", fn)
			}
		}
	default:
		titleCaser := cases.Title(language.English)
		styles := r.Styles()
		for _, info := range infos {
			title := titleCaser.String(strings.ReplaceAll(info.Name, "_", " "))
			r.Println(styles.Header2.Render(title) + styles.Muted.Render(" ("+info.Name+")"+mutatingSuffix(info.Mutating)))
			for _, fn := range info.Functions {
				r.Printf("  %s\n", fn)
			}
			r.Println("")
		}
	}
	return nil
}
