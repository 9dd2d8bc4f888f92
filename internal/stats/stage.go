package stats

import (
	"context"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
)

// Run computes the named metric over the columns selected by metric_args.
func (g *Generator) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	if !IsMetric(name) {
		return stage.Result{}, &stage.UnknownError{Group: "stats metric", Name: name, Available: Metrics}
	}
	cols := stage.AllColumns()
	if err := decode(&cols); err != nil {
		return stage.Result{}, err
	}
	names, err := cols.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return stage.Result{}, err
	}
	out, err := g.Compute(ctx, ds, name, names)
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{Stats: []stage.Output{{Name: name, Data: out}}}, nil
}
