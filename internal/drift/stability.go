package drift

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Weights are the metric weightages of the stability index.
type Weights struct {
	Mean     float64 `koanf:"mean" mapstructure:"mean"`
	Stddev   float64 `koanf:"stddev" mapstructure:"stddev"`
	Kurtosis float64 `koanf:"kurtosis" mapstructure:"kurtosis"`
}

// DefaultWeights are used when metric_weightages is not configured.
var DefaultWeights = Weights{Mean: 0.5, Stddev: 0.3, Kurtosis: 0.2}

// ErrWeights is returned when the weightages do not add up to one.
var ErrWeights = errors.New("invalid input for metric weightages: the sum of metric weightages must be 1.0")

// Validate checks that the weights sum to one at three decimals.
func (w Weights) Validate() error {
	if stats.Round(w.Mean+w.Stddev+w.Kurtosis, 3) != 1 {
		return ErrWeights
	}
	return nil
}

// CVThresholds map a coefficient of variation to a score: below the first
// threshold scores 4, above the last scores 0.
var CVThresholds = []float64{0.03, 0.1, 0.2, 0.5}

// ScoreCV converts a coefficient of variation into a stability score.
// Nil stays nil.
func ScoreCV(cv any) any {
	f, ok := cv.(float64)
	if !ok {
		return nil
	}
	f = math.Abs(f)
	for i, t := range CVThresholds {
		if f < t {
			return int64(len(CVThresholds) - i)
		}
	}
	return int64(0)
}

// MetricRecord is one row of the metric history: the statistics of one
// attribute in one dataset (period). Missing statistics are NaN.
type MetricRecord struct {
	Idx       int
	Attribute string
	Mean      float64
	Stddev    float64
	Kurtosis  float64
}

// HistoryColumns is the layout of the metric history dataset.
var HistoryColumns = []string{"idx", "attribute", "mean", "stddev", "kurtosis"}

// ComputeMetrics computes the statistics of cols in each dataset. Periods are
// numbered from start+1 in argument order. Kurtosis is the non excess
// kurtosis; an excess kurtosis of exactly zero is recorded as missing.
func ComputeMetrics(start int, cols []string, datasets ...*dataset.Dataset) ([]MetricRecord, error) {
	var out []MetricRecord
	for k, ds := range datasets {
		for _, name := range cols {
			c, ok := ds.Column(name)
			if !ok || !c.Type.IsNumeric() {
				return nil, fmt.Errorf("dataset%d: %w", k+1, &dataset.UnknownColumnsError{Columns: []string{name}})
			}
			xs := c.Floats()
			kurt := stats.ExcessKurtosis(xs)
			if kurt == 0 {
				kurt = math.NaN()
			}
			out = append(out, MetricRecord{
				Idx:       start + k + 1,
				Attribute: name,
				Mean:      stats.Mean(xs),
				Stddev:    stats.SampleStddev(xs),
				Kurtosis:  kurt + 3,
			})
		}
	}
	return out, nil
}

// MaxIdx returns the largest period index in records, 0 when empty.
func MaxIdx(records []MetricRecord) int {
	m := 0
	for _, r := range records {
		if r.Idx > m {
			m = r.Idx
		}
	}
	return m
}

// HistoryDataset converts records into the metric history layout.
func HistoryDataset(records []MetricRecord) (*dataset.Dataset, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{int64(r.Idx), r.Attribute, stats.Nullable(r.Mean), stats.Nullable(r.Stddev), stats.Nullable(r.Kurtosis)}
	}
	return dataset.FromRows(HistoryColumns,
		[]dataset.DType{dataset.Integer, dataset.String, dataset.Double, dataset.Double, dataset.Double}, rows)
}

// HistoryFromDataset reads records from a dataset in the metric history
// layout, as written by HistoryDataset.
func HistoryFromDataset(ds *dataset.Dataset) ([]MetricRecord, error) {
	cols := make([]*dataset.Column, len(HistoryColumns))
	var missing []string
	for i, n := range HistoryColumns {
		c, ok := ds.Column(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		cols[i] = c
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("metric history: %w", &dataset.UnknownColumnsError{Columns: missing})
	}
	out := make([]MetricRecord, ds.NumRows())
	for i := range out {
		idx, ok := dataset.ToFloat(cols[0].Values[i])
		if !ok {
			return nil, fmt.Errorf("metric history row %d: missing idx", i)
		}
		out[i] = MetricRecord{
			Idx:       int(idx),
			Attribute: dataset.FormatValue(cols[1].Values[i]),
			Mean:      floatOrNaN(cols[2].Values[i]),
			Stddev:    floatOrNaN(cols[3].Values[i]),
			Kurtosis:  floatOrNaN(cols[4].Values[i]),
		}
	}
	return out, nil
}

func floatOrNaN(v any) float64 {
	f, ok := dataset.ToFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}

// series returns the values of one metric for one attribute ordered by idx.
func series(records []MetricRecord, attribute string, metric func(MetricRecord) float64) []float64 {
	var sel []MetricRecord
	for _, r := range records {
		if r.Attribute == attribute {
			sel = append(sel, r)
		}
	}
	sort.SliceStable(sel, func(i, j int) bool { return sel[i].Idx < sel[j].Idx })
	out := make([]float64, len(sel))
	for i, r := range sel {
		out[i] = metric(r)
	}
	return out
}

// CV returns the rounded coefficient of variation of xs, or nil when it is
// undefined or zero.
func CV(xs []float64) any {
	if len(xs) == 0 {
		return nil
	}
	cv := stats.Round(stats.Variation(xs), 4)
	if cv == 0 {
		return nil
	}
	return stats.Nullable(cv)
}

// StabilityIndex computes the stability of each attribute over the metric
// history. The result has columns [attribute, mean_cv, stddev_cv,
// kurtosis_cv, mean_si, stddev_si, kurtosis_si, stability_index, flagged].
// An attribute is flagged when its index is below threshold or undefined.
func StabilityIndex(history []MetricRecord, cols []string, w Weights, threshold float64) (*dataset.Dataset, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	metrics := []func(MetricRecord) float64{
		func(r MetricRecord) float64 { return r.Mean },
		func(r MetricRecord) float64 { return r.Stddev },
		func(r MetricRecord) float64 { return r.Kurtosis },
	}
	weights := []float64{w.Mean, w.Stddev, w.Kurtosis}

	rows := make([][]any, 0, len(cols))
	for _, name := range cols {
		cvs := make([]any, len(metrics))
		sis := make([]any, len(metrics))
		for i, m := range metrics {
			cvs[i] = CV(series(history, name, m))
			sis[i] = ScoreCV(cvs[i])
		}
		index := weightedIndex(sis, weights)
		row := []any{name}
		row = append(row, cvs...)
		row = append(row, sis...)
		row = append(row, index, flag(index, threshold))
		rows = append(rows, row)
	}
	return dataset.FromRows(
		[]string{"attribute", "mean_cv", "stddev_cv", "kurtosis_cv", "mean_si", "stddev_si", "kurtosis_si", "stability_index", "flagged"},
		[]dataset.DType{dataset.String, dataset.Double, dataset.Double, dataset.Double, dataset.Integer, dataset.Integer, dataset.Integer, dataset.Double, dataset.Integer},
		rows,
	)
}

// weightedIndex is nil when any score is nil.
func weightedIndex(scores []any, weights []float64) any {
	var s float64
	for i, sc := range scores {
		v, ok := sc.(int64)
		if !ok {
			return nil
		}
		s += float64(v) * weights[i]
	}
	return stats.Round(s, 4)
}

func flag(index any, threshold float64) int64 {
	v, ok := index.(float64)
	if !ok || v < threshold {
		return 1
	}
	return 0
}
