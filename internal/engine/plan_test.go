package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/pipeline"
)

func stages(names ...string) *pipeline.Pipeline {
	p := &pipeline.Pipeline{Path: "test.yaml"}
	for _, n := range names {
		p.Stages = append(p.Stages, pipeline.Stage{Name: n})
	}
	return p
}

func levelNames(plan *Plan) [][]string {
	var out [][]string
	for _, l := range plan.Levels {
		var names []string
		for _, st := range l {
			names = append(names, st.Name)
		}
		out = append(out, names)
	}
	return out
}

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		name   string
		stages []string
		only   []string
		want   [][]string
	}{
		{
			name: "full pipeline in file order",
			stages: []string{pipeline.Transformers, pipeline.DriftDetector, pipeline.StatsGenerator,
				pipeline.AssociationEvaluator, pipeline.QualityChecker, pipeline.ReportPreprocessing},
			want: [][]string{
				{pipeline.StatsGenerator},
				{pipeline.QualityChecker},
				{pipeline.DriftDetector, pipeline.AssociationEvaluator},
				{pipeline.ReportPreprocessing},
				{pipeline.Transformers},
			},
		},
		{
			name:   "independent stages share a level",
			stages: []string{pipeline.AssociationEvaluator, pipeline.DriftDetector, pipeline.Transformers},
			want: [][]string{
				{pipeline.AssociationEvaluator, pipeline.DriftDetector},
				{pipeline.Transformers},
			},
		},
		{
			name:   "restricted",
			stages: []string{pipeline.StatsGenerator, pipeline.QualityChecker, pipeline.Transformers},
			only:   []string{pipeline.Transformers, pipeline.StatsGenerator},
			want: [][]string{
				{pipeline.StatsGenerator},
				{pipeline.Transformers},
			},
		},
		{
			name:   "empty",
			stages: nil,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(stages(tt.stages...), tt.only)
			require.NoError(t, err)
			assert.Equal(t, tt.want, levelNames(plan))
		})
	}
}

func TestBuildPlan_UnknownStage(t *testing.T) {
	_, err := BuildPlan(stages(pipeline.StatsGenerator), []string{pipeline.DriftDetector})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestMutates(t *testing.T) {
	assert.True(t, Mutates(pipeline.QualityChecker))
	assert.True(t, Mutates(pipeline.Transformers))
	assert.False(t, Mutates(pipeline.StatsGenerator))
	assert.False(t, Mutates(pipeline.DriftDetector))
}
