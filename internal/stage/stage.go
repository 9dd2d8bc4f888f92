// Package stage holds the types shared by the analysis and transformation
// stages: argument decoding, column selectors and stage results.
package stage

import (
	"fmt"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Decoder decodes a stage's argument map into target. Fields already set on
// target act as defaults.
type Decoder func(target any) error

// Columns is the column selection every stage accepts.
type Columns struct {
	ListOfCols  dataset.ColumnList `mapstructure:"list_of_cols"`
	DropCols    dataset.ColumnList `mapstructure:"drop_cols"`
	PrintImpact bool               `mapstructure:"print_impact"`
}

// AllColumns returns a selector for every column.
func AllColumns() Columns {
	return Columns{ListOfCols: dataset.ColumnList{dataset.All}}
}

// Resolve expands the selector against ds.
func (c Columns) Resolve(ds *dataset.Dataset, kind dataset.Kind) ([]string, error) {
	return ds.Resolve(c.ListOfCols, c.DropCols, kind)
}

// Output is a named statistics dataset produced by a stage. Path, when set,
// is an explicit destination that replaces the write_stats location.
type Output struct {
	Name string
	Data *dataset.Dataset
	Path string
}

// Result is what a stage hands back to the dispatcher. Data is nil for
// stages that do not change the dataset.
type Result struct {
	Data  *dataset.Dataset
	Stats []Output
}

// Stat returns the named statistics output.
func (r Result) Stat(name string) (*dataset.Dataset, bool) {
	for _, o := range r.Stats {
		if o.Name == name {
			return o.Data, true
		}
	}
	return nil, false
}

// UnknownError is returned when a stage or sub-stage name is not known.
type UnknownError struct {
	Group     string
	Name      string
	Available []string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown %s %q (available: %v)", e.Group, e.Name, e.Available)
}
