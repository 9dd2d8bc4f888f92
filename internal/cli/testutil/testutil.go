// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapdq/internal/cli/output"
)

// IncomeCSV is a small dataset with one duplicated row.
const IncomeCSV = `id,age,income,city
1,25,1000,paris
2,35,2000,lyon
2,35,2000,lyon
3,45,3000,nice
4,55,5000,paris
`

// PipelineYAML reads data/income.csv and writes under out/. DIR is replaced
// with the project directory.
const PipelineYAML = `input_dataset:
  read_dataset:
    file_path: DIR/data/income.csv
    file_type: csv
    file_configs:
      header: true
      inferSchema: true

stats_generator:
  metric: [measures_of_counts]
  metric_args:
    list_of_cols: all

quality_checker:
  duplicate_detection:
    treatment: true
    print_impact: true

transformers:
  numerical_rescaling:
    normalization:
      list_of_cols: income

write_main:
  file_path: DIR/out/main
  file_type: csv
  file_configs:
    mode: overwrite
write_stats:
  file_path: DIR/out/stats
  file_type: csv
  file_configs:
    mode: overwrite
`

// Project is a temporary leapdq project.
type Project struct {
	Dir      string
	Config   string
	Pipeline string
}

// SetupTestProject creates a temporary project with a config file, a
// dataset and a pipeline.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "data"), 0755); err != nil {
		t.Fatalf("failed to create data directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "data", "income.csv"), []byte(IncomeCSV), 0644); err != nil {
		t.Fatalf("failed to create income.csv: %v", err)
	}

	p := &Project{
		Dir:      tmpDir,
		Config:   filepath.Join(tmpDir, "leapdq.yaml"),
		Pipeline: filepath.Join(tmpDir, "pipeline.yaml"),
	}
	if err := os.WriteFile(p.Config, []byte("state_path: .leapdq/state.db\nlog_level: error\n"), 0644); err != nil {
		t.Fatalf("failed to create leapdq.yaml: %v", err)
	}
	p.WritePipeline(t, PipelineYAML)
	return p
}

// WritePipeline replaces the project pipeline. DIR is replaced with the
// project directory.
func (p *Project) WritePipeline(t *testing.T, body string) {
	t.Helper()
	if err := os.WriteFile(p.Pipeline, []byte(strings.ReplaceAll(body, "DIR", p.Dir)), 0644); err != nil {
		t.Fatalf("failed to write pipeline: %v", err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
