package engine

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapdq/internal/dag"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
)

// dependencies lists, per stage, the stages that must finish first when
// both are present. Stages read the dataset as the quality checker left it
// and the transformers run last.
var dependencies = map[string][]string{
	pipeline.QualityChecker:       {pipeline.StatsGenerator},
	pipeline.AssociationEvaluator: {pipeline.StatsGenerator, pipeline.QualityChecker},
	pipeline.DriftDetector:        {pipeline.StatsGenerator, pipeline.QualityChecker},
	pipeline.ReportPreprocessing: {pipeline.StatsGenerator, pipeline.QualityChecker,
		pipeline.AssociationEvaluator, pipeline.DriftDetector},
	pipeline.ReportGeneration: {pipeline.ReportPreprocessing},
	pipeline.Transformers: {pipeline.StatsGenerator, pipeline.QualityChecker,
		pipeline.AssociationEvaluator, pipeline.DriftDetector, pipeline.ReportPreprocessing,
		pipeline.ReportGeneration},
}

// Mutates reports whether a stage replaces the dataset. Mutating stages run
// their steps one after another; the others run their steps concurrently
// and may share an execution level.
func Mutates(stageName string) bool {
	return stageName == pipeline.QualityChecker || stageName == pipeline.Transformers
}

// Plan is the execution order of a pipeline's stages.
type Plan struct {
	Levels [][]pipeline.Stage
}

// Stages returns the planned stages in execution order.
func (p *Plan) Stages() []pipeline.Stage {
	var out []pipeline.Stage
	for _, l := range p.Levels {
		out = append(out, l...)
	}
	return out
}

// BuildPlan orders the stages of p. When only is not empty, the plan is
// restricted to the named stages.
func BuildPlan(p *pipeline.Pipeline, only []string) (*Plan, error) {
	g := dag.New[pipeline.Stage]()
	for _, st := range p.Stages {
		g.Add(st.Name, st)
	}
	for _, name := range only {
		if _, ok := g.Get(name); !ok {
			return nil, fmt.Errorf("stage %q is not configured in %s", name, p.Path)
		}
	}
	for _, st := range p.Stages {
		for _, dep := range dependencies[st.Name] {
			if _, ok := g.Get(dep); ok {
				if err := g.AddEdge(dep, st.Name); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(only) > 0 {
		var ids []string
		for _, id := range g.IDs() {
			if slices.Contains(only, id) {
				ids = append(ids, id)
			}
		}
		g = g.Subgraph(ids)
	}

	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	for _, ids := range levels {
		level := make([]pipeline.Stage, 0, len(ids))
		for _, id := range ids {
			st, _ := g.Get(id)
			level = append(level, st)
		}
		plan.Levels = append(plan.Levels, level)
	}
	return plan, nil
}
