package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"text":     ModeText,
		"markdown": ModeMarkdown,
		"md":       ModeMarkdown,
		"json":     ModeJSON,
		"yaml":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), in)
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &errOut, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).EffectiveMode())
}

func TestRenderer_Dataset(t *testing.T) {
	ds, err := dataset.FromRows([]string{"attribute", "mean"},
		[]dataset.DType{dataset.String, dataset.Double},
		[][]any{{"age", 40.5}, {"income", nil}, {"score", 1.0}})
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeAuto)
	r.Dataset(ds, 2)

	s := out.String()
	assert.Contains(t, s, "| attribute | mean |")
	assert.Contains(t, s, "| age | 40.5 |")
	assert.NotContains(t, s, "score")
	assert.Contains(t, s, "1 more rows")
}

func TestRenderer_Messages(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)
	r.Success("done")
	r.Warning("careful")
	r.Error("broken")
	r.Header(1, "Title")

	assert.Contains(t, out.String(), "✓ done")
	assert.Contains(t, out.String(), "Title")
	assert.Contains(t, errOut.String(), "⚠ careful")
	assert.Contains(t, errOut.String(), "✗ broken")
}

func TestRenderer_JSONLine(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeJSON)
	require.NoError(t, r.JSONLine(RunEvent{Event: "run_start", RunID: "r1"}))
	assert.Equal(t, `{"event":"run_start","timestamp":"","run_id":"r1"}`+"\n", out.String())
}
