package transform

import (
	"math"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/quality"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// RescaleConfig configures normalization, z_standardization and
// IQR_standardization.
type RescaleConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
}

// Rescale applies the named rescaling to every selected numeric column:
//
//	normalization        (x - min) / (max - min), 0.5 for constant columns
//	z_standardization    (x - mean) / stddev
//	IQR_standardization  (x - median) / (p75 - p25)
//
// Standardization skips columns whose scale is zero.
func (t *Transformer) Rescale(ds *dataset.Dataset, method string, cfg RescaleConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, n := range names {
		col, _ := ds.Column(n)
		xs := col.Floats()
		if len(xs) == 0 {
			continue
		}
		var center, scale float64
		switch method {
		case Normalization:
			lo, hi := stats.MinMax(xs)
			center, scale = lo, hi-lo
		case ZStandardization:
			center, scale = stats.Mean(xs), stats.SampleStddev(xs)
		case IQRStandardization:
			sorted := stats.Sorted(xs)
			center = stats.Quantile(sorted, 0.5)
			scale = stats.Quantile(sorted, 0.75) - stats.Quantile(sorted, 0.25)
		}
		var f func(float64) float64
		switch {
		case scale != 0 && !math.IsNaN(scale):
			f = func(x float64) float64 { return (x - center) / scale }
		case method == Normalization:
			f = func(float64) float64 { return 0.5 }
		default:
			t.logger.Warn("skipping column with zero scale", "column", n, "method", method)
			continue
		}
		if out, err = cfg.emit(out, n, "_scaled", dataset.Double, mapFloats(col.Values, f)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ImputationConfig configures imputation_MMM.
type ImputationConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	MethodType    string `mapstructure:"method_type"`
}

// DefaultImputationConfig imputes every column with its median (numeric) or
// mode (categorical).
func DefaultImputationConfig() ImputationConfig {
	return ImputationConfig{
		Columns:    stage.AllColumns(),
		Output:     Output{OutputMode: Replace},
		MethodType: quality.MethodMedian,
	}
}

// Imputation fills nulls with the column mean or median, or the mode for
// categorical columns. Columns without nulls are left alone.
func (t *Transformer) Imputation(ds *dataset.Dataset, cfg ImputationConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, n := range names {
		if col, _ := ds.Column(n); col.NullCount() > 0 && col.Type != dataset.Timestamp {
			missing = append(missing, n)
		}
	}
	imputed, err := quality.Impute(ds, missing, cfg.MethodType)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, n := range missing {
		col, _ := imputed.Column(n)
		if out, err = cfg.emit(out, n, "_imputed", col.Type, col.Values); err != nil {
			return nil, err
		}
	}
	t.logger.Debug("imputation applied", "method", cfg.MethodType, "columns", len(missing))
	return out, nil
}
