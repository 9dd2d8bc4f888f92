package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Table writes rows under header. Markdown mode emits a pipe table; text
// mode a box drawn table.
func (r *Renderer) Table(header []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	if r.isTTY {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleLight)
	}

	h := make(table.Row, len(header))
	for i, name := range header {
		h[i] = name
	}
	t.AppendHeader(h)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

// Dataset writes ds as a table, formatting values the way the csv writer
// does. Only the first limit rows are shown when limit is positive.
func (r *Renderer) Dataset(ds *dataset.Dataset, limit int) {
	n := ds.NumRows()
	if limit > 0 && n > limit {
		n = limit
	}
	rows := make([][]any, n)
	for i := range rows {
		row := ds.Row(i)
		for j, v := range row {
			row[j] = dataset.FormatValue(v)
		}
		rows[i] = row
	}
	r.Table(ds.ColumnNames(), rows)
	if n < ds.NumRows() {
		r.Muted(fmt.Sprintf("... %d more rows", ds.NumRows()-n))
	}
}
