package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/pipeline"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/state"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/storage"
)

var tableChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// readInput reads a dataset block and applies its column operations.
func (e *Engine) readInput(ctx context.Context, in pipeline.InputDataset) (*dataset.Dataset, error) {
	loc := in.ReadDataset
	ds, err := e.resolver.Read(ctx, loc.FileType, loc.FilePath, loc.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc.FilePath, err)
	}
	return in.Apply(ds)
}

// readTable reads a csv written by an earlier run.
func (e *Engine) readTable(ctx context.Context, path string) (*dataset.Dataset, error) {
	return e.resolver.Read(ctx, "csv", path, dataio.Options{"header": true, "inferSchema": true})
}

// readMain reads the input dataset and reports the column operations that
// asked for print_impact.
func (x *execution) readMain(ctx context.Context) (*dataset.Dataset, error) {
	in := x.p.Input
	ds, err := x.e.readInput(ctx, in)
	if err != nil {
		return nil, err
	}
	x.e.logger.Info("read input dataset", "location", in.ReadDataset.FilePath,
		"rows", ds.NumRows(), "cols", ds.NumCols())

	if (in.RenameColumn != nil && in.RenameColumn.PrintImpact) ||
		(in.RecastColumn != nil && in.RecastColumn.PrintImpact) {
		schema, err := schemaOf(ds)
		if err != nil {
			return nil, err
		}
		x.e.emit(Event{Kind: EventImpact, RunID: x.runID, Stage: pipeline.InputDatasetKey, Name: "schema", Data: schema})
	}
	return ds, nil
}

func schemaOf(ds *dataset.Dataset) (*dataset.Dataset, error) {
	rows := make([][]any, 0, ds.NumCols())
	for _, c := range ds.Columns() {
		rows = append(rows, []any{c.Name, string(c.Type)})
	}
	return dataset.FromRows([]string{"attribute", "dtype"}, []dataset.DType{dataset.String, dataset.String}, rows)
}

// impactArgs is the print_impact switch, set at the top of a function's
// arguments or inside its configs.
type impactArgs struct {
	PrintImpact bool `mapstructure:"print_impact"`
	Configs     struct {
		PrintImpact bool `mapstructure:"print_impact"`
	} `mapstructure:"configs"`
}

func printImpact(step pipeline.Step) bool {
	var a impactArgs
	if err := pipeline.StepDecoder(step.Args)(&a); err != nil {
		return false
	}
	return a.PrintImpact || a.Configs.PrintImpact
}

// changedColumns lists the columns of out that are new or were rebuilt.
// Untouched columns are shared with in.
func changedColumns(in, out *dataset.Dataset) []string {
	prev := make(map[*dataset.Column]bool, in.NumCols())
	for _, c := range in.Columns() {
		prev[c] = true
	}
	var changed []string
	for _, c := range out.Columns() {
		if !prev[c] {
			changed = append(changed, c.Name)
		}
	}
	return changed
}

// outputs reports and writes what a step produced.
func (x *execution) outputs(ctx context.Context, stageName string, step pipeline.Step, stageRunID string,
	in, out *dataset.Dataset, results []stage.Output) error {
	impact := printImpact(step)
	prefix := []string{stageName}
	if step.Group != "" {
		prefix = append(prefix, step.Group)
	}

	for _, o := range results {
		if o.Data == nil {
			continue
		}
		if impact {
			x.e.emit(Event{Kind: EventImpact, RunID: x.runID, Stage: stageName, Step: stepName(step), Name: o.Name, Data: o.Data})
		}
		switch {
		case o.Path != "":
			loc := pipeline.Location{FilePath: o.Path, FileType: "csv",
				FileConfigs: map[string]any{"header": true, "mode": string(dataio.Overwrite)}}
			if err := x.write(ctx, o.Data, state.OutputStats, o.Name, loc, o.Path, stageRunID, nil); err != nil {
				return err
			}
		case x.p.WriteStats != nil:
			parts := append(append([]string(nil), prefix...), o.Name)
			loc := *x.p.WriteStats
			if err := x.write(ctx, o.Data, state.OutputStats, o.Name, loc,
				storage.Join(loc.FilePath, parts...), stageRunID, parts); err != nil {
				return err
			}
		}
	}

	if !Mutates(stageName) || out == in {
		return nil
	}
	if impact {
		if cols := changedColumns(in, out); len(cols) > 0 {
			summary, err := x.e.stats.Compute(ctx, out, stats.MeasuresOfCentral, cols)
			if err != nil {
				return err
			}
			x.e.emit(Event{Kind: EventImpact, RunID: x.runID, Stage: stageName, Step: stepName(step),
				Name: step.Name + "_impact", Data: summary})
		}
	}
	if loc := x.p.WriteIntermediate; loc != nil {
		parts := append(append([]string(nil), prefix...), step.Name)
		location := storage.Join(loc.FilePath, append(parts, "dataset")...)
		if err := x.write(ctx, out, state.OutputIntermediate, stepName(step), *loc, location, stageRunID, parts); err != nil {
			return err
		}
	}
	return nil
}

// write stores ds and records the output. For table formats, parts name a
// table derived from the configured one; nil keeps the configured table.
func (x *execution) write(ctx context.Context, ds *dataset.Dataset, kind state.OutputKind, name string,
	loc pipeline.Location, location, stageRunID string, parts []string) error {
	opts := loc.Options()
	target, recorded := location, location
	if !dataio.IsFileFormat(loc.FileType) {
		target = loc.FilePath
		table := opts.String("table", "")
		switch {
		case parts == nil && table == "":
			table = name
		case parts != nil:
			suffix := tableChars.ReplaceAllString(strings.Join(parts, "_"), "_")
			if table != "" {
				suffix = table + "_" + suffix
			}
			table = suffix
		}
		opts["table"] = table
		recorded = target + "#" + table
	}

	if err := x.e.resolver.Write(ctx, ds, loc.FileType, target, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	x.e.logger.Debug("wrote output", "kind", kind, "name", name, "location", recorded, "rows", ds.NumRows())

	o := &state.Output{
		RunID:      x.runID,
		StageRunID: stageRunID,
		Kind:       kind,
		Name:       name,
		Location:   recorded,
		FileType:   loc.FileType,
		Rows:       int64(ds.NumRows()),
	}
	if err := x.e.store.RecordOutput(ctx, o); err != nil {
		return err
	}
	x.e.emit(Event{Kind: EventOutput, RunID: x.runID, Name: name, Location: recorded, Rows: ds.NumRows()})
	return nil
}
