package cli

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/cli/config"
	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/cli/testutil"
)

// execute runs the root command against the project config.
func execute(t *testing.T, p *testutil.Project, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", p.Config}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_Commands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "validate", "runs", "drift", "stages", "version", "completion"} {
		assert.Contains(t, names, want)
	}
}

func TestRun_Markdown(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "run", p.Pipeline)
	require.NoError(t, err)

	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Running pipeline.yaml")
	assert.Contains(t, out, "quality_checker: duplicate_detection", "print_impact table")
	assert.Contains(t, out, "transformers.numerical_rescaling.normalization")
	assert.DirExists(t, filepath.Join(p.Dir, "out", "main"))
	assert.FileExists(t, filepath.Join(p.Dir, ".leapdq", "state.db"))

	out, _, err = execute(t, p, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "pipeline.yaml")
}

func TestRun_JSON(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "run", p.Pipeline, "--json", "--stages", "stats_generator")
	require.NoError(t, err)

	var events []output.RunEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var ev output.RunEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "run_start", events[0].Event)
	assert.Equal(t, []string{"stats_generator"}, events[0].Stages)

	last := events[len(events)-1]
	assert.Equal(t, "run_complete", last.Event)
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 1, last.Successful)
	assert.NotEmpty(t, last.RunID)
}

func TestRun_Failure(t *testing.T) {
	p := testutil.SetupTestProject(t)
	p.WritePipeline(t, strings.Replace(testutil.PipelineYAML, "list_of_cols: income", "list_of_cols: salary", 1))

	_, errOut, err := execute(t, p, "run", p.Pipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transformers.numerical_rescaling.normalization")
	assert.Contains(t, errOut, "failed")
}

func TestValidate(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "validate", p.Pipeline)
	require.NoError(t, err)
	assert.Contains(t, out, "# Execution Plan")
	assert.Contains(t, out, "## Level 2")
	assert.Contains(t, out, "- transformers (changes the dataset)")
	assert.Contains(t, out, "  - numerical_rescaling.normalization")

	out, _, err = execute(t, p, "validate", p.Pipeline, "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "stage: quality_checker")
	assert.Contains(t, out, "file_type: csv")
	assert.Contains(t, out, "treatment: true")
}

func TestValidate_Invalid(t *testing.T) {
	p := testutil.SetupTestProject(t)
	body := strings.Replace(testutil.PipelineYAML, "metric: [measures_of_counts]", "metric: [measures_of_nothing]", 1)
	body = strings.Replace(body, "duplicate_detection:", "triplicate_detection:", 1)
	p.WritePipeline(t, body)

	out, _, err := execute(t, p, "validate", p.Pipeline)
	require.Error(t, err)
	assert.Contains(t, out, "problem(s)")
	assert.Contains(t, out, "measures_of_nothing")
	assert.Contains(t, out, "triplicate_detection")
}

func TestStages_JSON(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "stages", "--output", "json")
	require.NoError(t, err)

	var infos []output.StageInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.NotEmpty(t, infos)
	assert.Equal(t, "stats_generator", infos[0].Name)
	assert.Contains(t, infos[0].Functions, "global_summary")
	for _, info := range infos {
		if info.Name == "transformers" {
			assert.True(t, info.Mutating)
			assert.Contains(t, info.Functions, "numerical_binning.attribute_binning")
		}
	}
}

func TestDrift_Empty(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "drift", "--output", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, _, err = execute(t, p, "drift", "missing_series")
	require.Error(t, err)
}

func TestCompletion(t *testing.T) {
	p := testutil.SetupTestProject(t)

	out, _, err := execute(t, p, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapdq")
}
