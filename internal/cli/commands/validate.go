package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/engine"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var printPlan bool

	cmd := &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline file without running it",
		Long: `Load a pipeline file, report every configuration problem at once and
show the execution plan: the stages grouped into levels, with the steps
each stage runs.

Use --print to emit the resolved plan, including step arguments, as YAML.`,
		Example: `  # Validate a pipeline
  leapdq validate configs/income.yaml

  # Show the resolved plan with arguments
  leapdq validate configs/income.yaml --print`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], printPlan)
		},
	}

	cmd.Flags().BoolVar(&printPlan, "print", false, "Print the resolved plan as YAML")
	return cmd
}

func runValidate(cmd *cobra.Command, path string, printPlan bool) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer

	p, err := pipeline.Load(path)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		problems := validationProblems(err)
		if r.EffectiveMode() == output.ModeJSON {
			_ = r.JSON(map[string]any{"valid": false, "errors": problems})
		} else {
			r.Header(1, fmt.Sprintf("%s has %d problem(s)", path, len(problems)))
			for _, msg := range problems {
				r.Printf("- %s\n", msg)
			}
		}
		return fmt.Errorf("%s is invalid", path)
	}

	plan, err := engine.BuildPlan(p, nil)
	if err != nil {
		return err
	}
	if printPlan {
		return printResolved(r, p, plan)
	}

	levels := planLevels(plan)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(map[string]any{"valid": true, "levels": levels})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Execution Plan"))
		r.Println("")
		for _, l := range levels {
			r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", l.Level)))
			for _, st := range l.Stages {
				r.Printf("- %s%s\n", st.Name, mutatingSuffix(st.Mutating))
				for _, step := range st.Steps {
					r.Printf("  - %s\n", step)
				}
			}
			r.Println("")
		}
	default:
		styles := r.Styles()
		r.Success(path + " is valid")
		r.Println("")
		for _, l := range levels {
			r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", l.Level)))
			for _, st := range l.Stages {
				r.Printf("  %s%s\n", styles.Stage.Render(st.Name), styles.Muted.Render(mutatingSuffix(st.Mutating)))
				if len(st.Steps) > 0 {
					r.Printf("    %s\n", styles.Muted.Render(strings.Join(st.Steps, ", ")))
				}
			}
		}
	}
	return nil
}

func mutatingSuffix(mutating bool) string {
	if mutating {
		return " (changes the dataset)"
	}
	return ""
}

// validationProblems flattens a joined validation error.
func validationProblems(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func planLevels(plan *engine.Plan) []output.PlanLevel {
	levels := make([]output.PlanLevel, 0, len(plan.Levels))
	for i, l := range plan.Levels {
		level := output.PlanLevel{Level: i}
		for _, st := range l {
			ps := output.PlanStage{Name: st.Name, Mutating: engine.Mutates(st.Name), Steps: []string{}}
			for _, step := range st.Steps {
				ps.Steps = append(ps.Steps, strings.TrimPrefix(step.Path(st.Name), st.Name+"."))
			}
			level.Stages = append(level.Stages, ps)
		}
		levels = append(levels, level)
	}
	return levels
}

// resolvedStep is a step as printed by validate --print.
type resolvedStep struct {
	Group string         `yaml:"group,omitempty"`
	Name  string         `yaml:"name"`
	Args  map[string]any `yaml:"args,omitempty"`
}

type resolvedStage struct {
	Stage string         `yaml:"stage"`
	Level int            `yaml:"level"`
	Steps []resolvedStep `yaml:"steps,omitempty"`
}

type resolvedPlan struct {
	Pipeline string                       `yaml:"pipeline"`
	Input    pipeline.Location            `yaml:"input"`
	Stages   []resolvedStage              `yaml:"stages"`
	Outputs  map[string]pipeline.Location `yaml:"outputs,omitempty"`
}

func printResolved(r *output.Renderer, p *pipeline.Pipeline, plan *engine.Plan) error {
	doc := resolvedPlan{Pipeline: p.Path, Input: p.Input.ReadDataset, Outputs: map[string]pipeline.Location{}}
	for i, l := range plan.Levels {
		for _, st := range l {
			rs := resolvedStage{Stage: st.Name, Level: i}
			for _, step := range st.Steps {
				rs.Steps = append(rs.Steps, resolvedStep{Group: step.Group, Name: step.Name, Args: step.Args})
			}
			doc.Stages = append(doc.Stages, rs)
		}
	}
	for key, loc := range map[string]*pipeline.Location{
		pipeline.WriteIntermediateKey: p.WriteIntermediate,
		pipeline.WriteMainKey:         p.WriteMain,
		pipeline.WriteStatsKey:        p.WriteStats,
	} {
		if loc != nil {
			doc.Outputs[key] = *loc
		}
	}

	enc := yaml.NewEncoder(r.Writer())
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
