package quality

import (
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// IDnessConfig configures IDness_detection.
type IDnessConfig struct {
	stage.Columns `mapstructure:",squash"`
	Treatment     `mapstructure:",squash"`
}

// DefaultIDnessConfig flags discrete columns whose values are all unique.
func DefaultIDnessConfig() IDnessConfig {
	return IDnessConfig{Columns: stage.AllColumns(), Treatment: Treatment{TreatmentThreshold: 1.0}}
}

// IDness reports the share of unique values among non-null values of each
// discrete column. Columns at or above treatment_threshold are flagged and
// dropped under treatment.
func (c *Checker) IDness(ds *dataset.Dataset, cfg IDnessConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	if err := checkThreshold("treatment_threshold", cfg.TreatmentThreshold); err != nil {
		return nil, nil, err
	}
	names, err := cfg.Resolve(ds, dataset.DiscreteKind)
	if err != nil {
		return nil, nil, err
	}
	var drop []string
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		unique := stats.Distinct(col.Values)
		fill := col.Len() - col.NullCount()
		idness := share(unique, fill)
		flag := int64(0)
		if f, ok := idness.(float64); ok && f >= cfg.TreatmentThreshold {
			flag = 1
			drop = append(drop, n)
		}
		rows = append(rows, []any{n, int64(unique), idness, flag})
	}
	report, err := dataset.FromRows(
		[]string{"attribute", "unique_values", "IDness", "flagged"},
		[]dataset.DType{dataset.String, dataset.Integer, dataset.Double, dataset.Integer},
		rows)
	if err != nil || !cfg.Treatment.Treatment {
		return ds, report, err
	}
	out, err := ds.Drop(drop...)
	return out, report, err
}

// BiasednessConfig configures biasedness_detection.
type BiasednessConfig struct {
	stage.Columns `mapstructure:",squash"`
	Treatment     `mapstructure:",squash"`
}

// DefaultBiasednessConfig flags discrete columns dominated by one value.
func DefaultBiasednessConfig() BiasednessConfig {
	return BiasednessConfig{Columns: stage.AllColumns(), Treatment: Treatment{TreatmentThreshold: 0.8}}
}

// Biasedness reports the mode share of each discrete column. Columns at or
// above treatment_threshold are flagged and dropped under treatment.
func (c *Checker) Biasedness(ds *dataset.Dataset, cfg BiasednessConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	if err := checkThreshold("treatment_threshold", cfg.TreatmentThreshold); err != nil {
		return nil, nil, err
	}
	names, err := cfg.Resolve(ds, dataset.DiscreteKind)
	if err != nil {
		return nil, nil, err
	}
	var drop []string
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		mode, count := stats.Mode(col.Values)
		fill := col.Len() - col.NullCount()
		pct := share(count, fill)
		flag := int64(0)
		if f, ok := pct.(float64); ok && f >= cfg.TreatmentThreshold {
			flag = 1
			drop = append(drop, n)
		}
		var modeText any
		if mode != nil {
			modeText = dataset.FormatValue(mode)
		}
		rows = append(rows, []any{n, modeText, int64(count), pct, flag})
	}
	report, err := dataset.FromRows(
		[]string{"attribute", "mode", "mode_rows", "mode_pct", "flagged"},
		[]dataset.DType{dataset.String, dataset.String, dataset.Integer, dataset.Double, dataset.Integer},
		rows)
	if err != nil || !cfg.Treatment.Treatment {
		return ds, report, err
	}
	out, err := ds.Drop(drop...)
	return out, report, err
}
