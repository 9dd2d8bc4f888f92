package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// DuplicateConfig configures duplicate_detection.
type DuplicateConfig struct {
	stage.Columns `mapstructure:",squash"`
	Treatment     bool `mapstructure:"treatment"`
}

// DefaultDuplicateConfig checks every column and drops duplicates.
func DefaultDuplicateConfig() DuplicateConfig {
	return DuplicateConfig{Columns: stage.AllColumns(), Treatment: true}
}

var metricValue = []dataset.DType{dataset.String, dataset.Double}

// rowKey renders the selected values of row i so that nulls and empty
// strings stay distinct.
func rowKey(cols []*dataset.Column, i int) string {
	var b strings.Builder
	for _, c := range cols {
		v := c.Values[i]
		if v == nil {
			b.WriteString("\x00")
			continue
		}
		b.WriteString("\x01")
		b.WriteString(dataset.FormatValue(v))
	}
	return b.String()
}

func columns(ds *dataset.Dataset, names []string) []*dataset.Column {
	out := make([]*dataset.Column, len(names))
	for j, n := range names {
		out[j], _ = ds.Column(n)
	}
	return out
}

// Duplicates counts rows that repeat an earlier row over the selected
// columns. Treatment keeps the first occurrence.
func (c *Checker) Duplicates(ds *dataset.Dataset, cfg DuplicateConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, nil, err
	}
	cols := columns(ds, names)
	seen := make(map[string]bool, ds.NumRows())
	keep := make([]bool, ds.NumRows())
	unique := 0
	for i := range keep {
		k := rowKey(cols, i)
		if !seen[k] {
			seen[k] = true
			keep[i] = true
			unique++
		}
	}
	rows := ds.NumRows()
	dup := rows - unique
	report, err := dataset.FromRows([]string{"metric", "value"}, metricValue, [][]any{
		{"rows_count", float64(rows)},
		{"unique_rows_count", float64(unique)},
		{"duplicate_rows", float64(dup)},
		{"duplicate_pct", share(dup, rows)},
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Treatment {
		return ds, report, nil
	}
	c.logger.Debug("dropping duplicate rows", "rows", dup)
	return ds.Filter(keep), report, nil
}

func share(n, d int) any {
	if d == 0 {
		return nil
	}
	return stats.Round(float64(n)/float64(d), 4)
}

// NullRowsConfig configures nullRows_detection.
type NullRowsConfig struct {
	stage.Columns `mapstructure:",squash"`
	Treatment     `mapstructure:",squash"`
}

// DefaultNullRowsConfig flags rows with more than 80% of columns null.
func DefaultNullRowsConfig() NullRowsConfig {
	return NullRowsConfig{Columns: stage.AllColumns(), Treatment: Treatment{TreatmentThreshold: 0.8}}
}

func checkThreshold(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}

// NullRows groups rows by how many selected columns are null. A group is
// flagged when its null share exceeds treatment_threshold; treatment drops
// flagged rows.
func (c *Checker) NullRows(ds *dataset.Dataset, cfg NullRowsConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	if err := checkThreshold("treatment_threshold", cfg.TreatmentThreshold); err != nil {
		return nil, nil, err
	}
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, nil, err
	}
	cols := columns(ds, names)
	counts := make([]int, ds.NumRows())
	groups := make(map[int]int)
	for i := range counts {
		for _, col := range cols {
			if col.Values[i] == nil {
				counts[i]++
			}
		}
		groups[counts[i]]++
	}

	flagged := func(nulls int) bool {
		return float64(nulls)/float64(len(cols)) > cfg.TreatmentThreshold
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		f := int64(0)
		if flagged(k) {
			f = 1
		}
		rows = append(rows, []any{int64(k), int64(groups[k]), share(groups[k], ds.NumRows()), f})
	}
	report, err := dataset.FromRows(
		[]string{"null_cols_count", "row_count", "row_pct", "flagged"},
		[]dataset.DType{dataset.Integer, dataset.Integer, dataset.Double, dataset.Integer},
		rows)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Treatment.Treatment {
		return ds, report, nil
	}
	keep := make([]bool, len(counts))
	for i, n := range counts {
		keep[i] = !flagged(n)
	}
	return ds.Filter(keep), report, nil
}

// Null column treatments.
const (
	TreatMMM           = "MMM"
	TreatRowRemoval    = "row_removal"
	TreatColumnRemoval = "column_removal"
)

// MissingColumns is the column list sentinel selecting columns with nulls.
const MissingColumns = "missing"

// NullColumnsConfig configures nullColumns_detection.
type NullColumnsConfig struct {
	stage.Columns    `mapstructure:",squash"`
	Treatment        bool             `mapstructure:"treatment"`
	TreatmentMethod  string           `mapstructure:"treatment_method"`
	TreatmentConfigs NullTreatmentCfg `mapstructure:"treatment_configs"`
}

// NullTreatmentCfg holds the options of a null column treatment.
type NullTreatmentCfg struct {
	MethodType         string  `mapstructure:"method_type"`
	TreatmentThreshold float64 `mapstructure:"treatment_threshold"`
}

// DefaultNullColumnsConfig checks the columns that have nulls.
func DefaultNullColumnsConfig() NullColumnsConfig {
	return NullColumnsConfig{
		Columns:         stage.Columns{ListOfCols: dataset.ColumnList{MissingColumns}},
		TreatmentMethod: TreatRowRemoval,
		TreatmentConfigs: NullTreatmentCfg{
			MethodType:         MethodMedian,
			TreatmentThreshold: 0.5,
		},
	}
}

// NullColumns reports the missing share of each selected column and
// optionally imputes, drops rows, or drops columns.
func (c *Checker) NullColumns(ds *dataset.Dataset, cfg NullColumnsConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	sel := cfg.Columns
	if len(sel.ListOfCols) == 1 && strings.EqualFold(sel.ListOfCols[0], MissingColumns) {
		sel.ListOfCols = nil
		for _, col := range ds.Columns() {
			if col.NullCount() > 0 {
				sel.ListOfCols = append(sel.ListOfCols, col.Name)
			}
		}
		if len(sel.ListOfCols) == 0 {
			report, err := nullColumnsReport(ds, nil)
			return ds, report, err
		}
	}
	names, err := sel.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, nil, err
	}
	report, err := nullColumnsReport(ds, names)
	if err != nil || !cfg.Treatment {
		return ds, report, err
	}

	switch cfg.TreatmentMethod {
	case TreatMMM:
		out, err := Impute(ds, names, cfg.TreatmentConfigs.MethodType)
		return out, report, err
	case TreatRowRemoval:
		cols := columns(ds, names)
		keep := make([]bool, ds.NumRows())
		for i := range keep {
			keep[i] = true
			for _, col := range cols {
				if col.Values[i] == nil {
					keep[i] = false
					break
				}
			}
		}
		return ds.Filter(keep), report, nil
	case TreatColumnRemoval:
		if err := checkThreshold("treatment_threshold", cfg.TreatmentConfigs.TreatmentThreshold); err != nil {
			return nil, nil, err
		}
		var drop []string
		for _, n := range names {
			col, _ := ds.Column(n)
			if float64(col.NullCount())/float64(max(ds.NumRows(), 1)) > cfg.TreatmentConfigs.TreatmentThreshold {
				drop = append(drop, n)
			}
		}
		out, err := ds.Drop(drop...)
		return out, report, err
	default:
		return nil, nil, fmt.Errorf("invalid treatment_method %q (want %s, %s or %s)",
			cfg.TreatmentMethod, TreatMMM, TreatRowRemoval, TreatColumnRemoval)
	}
}

func nullColumnsReport(ds *dataset.Dataset, names []string) (*dataset.Dataset, error) {
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		missing := col.NullCount()
		rows = append(rows, []any{n, int64(missing), share(missing, ds.NumRows())})
	}
	return dataset.FromRows(
		[]string{"attribute", "missing_count", "missing_pct"},
		[]dataset.DType{dataset.String, dataset.Integer, dataset.Double},
		rows)
}

// Imputation methods for numeric columns. Categorical columns always use
// the mode.
const (
	MethodMean   = "mean"
	MethodMedian = "median"
)

// Impute replaces nulls in the named columns with the column mean or median
// (numeric) or mode (categorical). Integer columns receive the rounded
// statistic. Columns without non-null values are left alone.
func Impute(ds *dataset.Dataset, names []string, method string) (*dataset.Dataset, error) {
	if method != MethodMean && method != MethodMedian {
		return nil, fmt.Errorf("invalid method_type %q (want mean or median)", method)
	}
	out := ds
	for _, n := range names {
		col, ok := ds.Column(n)
		if !ok {
			return nil, &dataset.UnknownColumnsError{Columns: []string{n}}
		}
		var fill any
		switch {
		case col.Type.IsNumeric():
			xs := col.Floats()
			if len(xs) == 0 {
				continue
			}
			v := stats.Mean(xs)
			if method == MethodMedian {
				v = stats.Median(xs)
			}
			if col.Type == dataset.Integer {
				fill = int64(math.Round(v))
			} else {
				fill = v
			}
		case col.Type == dataset.String || col.Type == dataset.Boolean:
			fill, _ = stats.Mode(col.Values)
		}
		if fill == nil {
			continue
		}
		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				v = fill
			}
			values[i] = v
		}
		var err error
		if out, err = out.WithColumn(dataset.NewColumn(n, col.Type, values)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
