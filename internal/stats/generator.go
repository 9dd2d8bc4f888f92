// Package stats implements the stats_generator stage: descriptive statistics
// per attribute, plus the numeric helpers the other analysis stages share.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Metric names accepted by the stats_generator stage.
const (
	GlobalSummary      = "global_summary"
	MeasuresOfCounts   = "measures_of_counts"
	MeasuresOfCentral  = "measures_of_centralTendency"
	MeasuresOfCardinal = "measures_of_cardinality"
	MeasuresOfPctiles  = "measures_of_percentiles"
	MeasuresOfDisperse = "measures_of_dispersion"
	MeasuresOfShape    = "measures_of_shape"
)

// Metrics lists every metric in the order reports are produced.
var Metrics = []string{
	GlobalSummary,
	MeasuresOfCounts,
	MeasuresOfCentral,
	MeasuresOfCardinal,
	MeasuresOfPctiles,
	MeasuresOfDisperse,
	MeasuresOfShape,
}

// IsMetric reports whether name is a known metric.
func IsMetric(name string) bool {
	for _, m := range Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// Percentiles reported by measures_of_percentiles.
var Percentiles = []float64{0.01, 0.05, 0.10, 0.25, 0.50, 0.75, 0.90, 0.95, 0.99}

// Generator computes descriptive statistics.
type Generator struct {
	logger      *slog.Logger
	concurrency int
}

// NewGenerator creates a generator. Concurrency bounds the number of columns
// processed at once (0 means one per CPU as decided by errgroup callers).
func NewGenerator(logger *slog.Logger, concurrency int) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Generator{logger: logger, concurrency: concurrency}
}

type columnRow func(c *dataset.Column, rows int) []any

// Compute runs one metric over the listed columns.
func (g *Generator) Compute(ctx context.Context, ds *dataset.Dataset, metric string, cols []string) (*dataset.Dataset, error) {
	g.logger.Debug("computing metric", "metric", metric, "columns", len(cols))

	switch metric {
	case GlobalSummary:
		return globalSummary(ds, cols)
	case MeasuresOfCounts:
		return g.perColumn(ctx, ds, cols, countsHeader, countsRow, dataset.AnyKind)
	case MeasuresOfCentral:
		return g.perColumn(ctx, ds, cols, centralHeader, centralRow, dataset.AnyKind)
	case MeasuresOfCardinal:
		return g.perColumn(ctx, ds, cols, cardinalityHeader, cardinalityRow, dataset.CategoricalKind)
	case MeasuresOfPctiles:
		return g.perColumn(ctx, ds, cols, percentilesHeader(), percentilesRow, dataset.NumericKind)
	case MeasuresOfDisperse:
		return g.perColumn(ctx, ds, cols, dispersionHeader, dispersionRow, dataset.NumericKind)
	case MeasuresOfShape:
		return g.perColumn(ctx, ds, cols, shapeHeader, shapeRow, dataset.NumericKind)
	default:
		return nil, fmt.Errorf("unknown stats metric %q", metric)
	}
}

type header struct {
	names []string
	types []dataset.DType
}

func (g *Generator) perColumn(ctx context.Context, ds *dataset.Dataset, cols []string, h header, fn columnRow, kind dataset.Kind) (*dataset.Dataset, error) {
	var eligible []*dataset.Column
	for _, name := range cols {
		c, ok := ds.Column(name)
		if !ok {
			return nil, &dataset.UnknownColumnsError{Columns: []string{name}}
		}
		if kind == dataset.NumericKind && !c.Type.IsNumeric() {
			continue
		}
		// integers count as discrete for cardinality, doubles do not
		if kind == dataset.CategoricalKind && c.Type == dataset.Double {
			continue
		}
		eligible = append(eligible, c)
	}

	rows := make([][]any, len(eligible))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, c := range eligible {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rows[i] = append([]any{c.Name}, fn(c, ds.NumRows())...)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return dataset.FromRows(h.names, h.types, rows)
}

func globalSummary(ds *dataset.Dataset, cols []string) (*dataset.Dataset, error) {
	var num, cat, other []string
	for _, name := range cols {
		c, ok := ds.Column(name)
		if !ok {
			return nil, &dataset.UnknownColumnsError{Columns: []string{name}}
		}
		switch {
		case c.Type.IsNumeric():
			num = append(num, name)
		case c.Type == dataset.String || c.Type == dataset.Boolean:
			cat = append(cat, name)
		default:
			other = append(other, name)
		}
	}
	rows := [][]any{
		{"rows_count", fmt.Sprint(ds.NumRows())},
		{"columns_count", fmt.Sprint(len(cols))},
		{"numcols_count", fmt.Sprint(len(num))},
		{"numcols_name", strings.Join(num, ", ")},
		{"catcols_count", fmt.Sprint(len(cat))},
		{"catcols_name", strings.Join(cat, ", ")},
		{"othercols_count", fmt.Sprint(len(other))},
		{"othercols_name", strings.Join(other, ", ")},
	}
	return dataset.FromRows([]string{"metric", "value"}, []dataset.DType{dataset.String, dataset.String}, rows)
}

var countsHeader = header{
	names: []string{"attribute", "fill_count", "fill_pct", "missing_count", "missing_pct", "nonzero_count", "nonzero_pct"},
	types: []dataset.DType{dataset.String, dataset.Integer, dataset.Double, dataset.Integer, dataset.Double, dataset.Integer, dataset.Double},
}

func countsRow(c *dataset.Column, rows int) []any {
	missing := c.NullCount()
	fill := rows - missing
	var nonzero any
	var nonzeroPct any
	if c.Type.IsNumeric() {
		n := 0
		for _, f := range c.Floats() {
			if f != 0 {
				n++
			}
		}
		nonzero = int64(n)
		nonzeroPct = ratio(n, rows)
	}
	return []any{int64(fill), ratio(fill, rows), int64(missing), ratio(missing, rows), nonzero, nonzeroPct}
}

var centralHeader = header{
	names: []string{"attribute", "mean", "median", "mode", "mode_rows", "mode_pct"},
	types: []dataset.DType{dataset.String, dataset.Double, dataset.Double, dataset.String, dataset.Integer, dataset.Double},
}

func centralRow(c *dataset.Column, _ int) []any {
	var mean, median any
	if c.Type.IsNumeric() {
		xs := c.Floats()
		mean = Nullable(Round(Mean(xs), 4))
		median = Nullable(Round(Median(xs), 4))
	}
	mode, count := Mode(c.Values)
	fill := c.Len() - c.NullCount()
	var modeVal any
	if mode != nil {
		modeVal = dataset.FormatValue(mode)
	}
	return []any{mean, median, modeVal, int64(count), ratio(count, fill)}
}

var cardinalityHeader = header{
	names: []string{"attribute", "unique_values", "IDness"},
	types: []dataset.DType{dataset.String, dataset.Integer, dataset.Double},
}

func cardinalityRow(c *dataset.Column, _ int) []any {
	unique := Distinct(c.Values)
	fill := c.Len() - c.NullCount()
	return []any{int64(unique), ratio(unique, fill)}
}

func percentilesHeader() header {
	h := header{names: []string{"attribute", "min"}, types: []dataset.DType{dataset.String, dataset.Double}}
	for _, p := range Percentiles {
		h.names = append(h.names, fmt.Sprintf("%d%%", int(math.Round(p*100))))
		h.types = append(h.types, dataset.Double)
	}
	h.names = append(h.names, "max")
	h.types = append(h.types, dataset.Double)
	return h
}

func percentilesRow(c *dataset.Column, _ int) []any {
	sorted := Sorted(c.Floats())
	lo, hi := MinMax(sorted)
	out := []any{Nullable(Round(lo, 4))}
	for _, p := range Percentiles {
		out = append(out, Nullable(Round(Quantile(sorted, p), 4)))
	}
	return append(out, Nullable(Round(hi, 4)))
}

var dispersionHeader = header{
	names: []string{"attribute", "stddev", "variance", "cov", "IQR", "range"},
	types: []dataset.DType{dataset.String, dataset.Double, dataset.Double, dataset.Double, dataset.Double, dataset.Double},
}

func dispersionRow(c *dataset.Column, _ int) []any {
	xs := c.Floats()
	sorted := Sorted(xs)
	sd := SampleStddev(xs)
	lo, hi := MinMax(sorted)
	return []any{
		Nullable(Round(sd, 4)),
		Nullable(Round(sd*sd, 4)),
		Nullable(Round(sd/Mean(xs), 4)),
		Nullable(Round(Quantile(sorted, 0.75)-Quantile(sorted, 0.25), 4)),
		Nullable(Round(hi-lo, 4)),
	}
}

var shapeHeader = header{
	names: []string{"attribute", "skewness", "kurtosis"},
	types: []dataset.DType{dataset.String, dataset.Double, dataset.Double},
}

func shapeRow(c *dataset.Column, _ int) []any {
	xs := c.Floats()
	return []any{Nullable(Round(Skewness(xs), 4)), Nullable(Round(ExcessKurtosis(xs), 4))}
}

func ratio(n, d int) any {
	if d == 0 {
		return nil
	}
	return Round(float64(n)/float64(d), 4)
}

// Mode returns the most frequent non-null value and its count. Ties are
// broken by the smallest textual representation so results are stable.
func Mode(values []any) (any, int) {
	counts := make(map[string]int)
	first := make(map[string]any)
	for _, v := range values {
		if v == nil {
			continue
		}
		k := dataset.FormatValue(v)
		if _, ok := first[k]; !ok {
			first[k] = v
		}
		counts[k]++
	}
	if len(counts) == 0 {
		return nil, 0
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return first[best], counts[best]
}

// Distinct counts distinct non-null values.
func Distinct(values []any) int {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[dataset.FormatValue(v)] = struct{}{}
	}
	return len(seen)
}

// Frequencies counts non-null values by their textual form.
func Frequencies(values []any) map[string]int {
	counts := make(map[string]int)
	for _, v := range values {
		if v == nil {
			continue
		}
		counts[dataset.FormatValue(v)]++
	}
	return counts
}
