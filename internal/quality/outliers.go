package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Detection sides.
const (
	SideUpper = "upper"
	SideLower = "lower"
	SideBoth  = "both"
)

// Outlier treatments.
const (
	TreatValueReplacement = "value_replacement"
	TreatNullReplacement  = "null_replacement"
)

// DetectionConfigs holds the bound parameters of each detection method. A
// method takes part on a side only when its parameter for that side is set.
type DetectionConfigs struct {
	PctileLower   *float64 `mapstructure:"pctile_lower"`
	PctileUpper   *float64 `mapstructure:"pctile_upper"`
	StdevLower    *float64 `mapstructure:"stdev_lower"`
	StdevUpper    *float64 `mapstructure:"stdev_upper"`
	IQRLower      *float64 `mapstructure:"IQR_lower"`
	IQRUpper      *float64 `mapstructure:"IQR_upper"`
	MinValidation int      `mapstructure:"min_validation"`
}

// OutlierConfig configures outlier_detection.
type OutlierConfig struct {
	stage.Columns    `mapstructure:",squash"`
	DetectionSide    string           `mapstructure:"detection_side"`
	DetectionConfigs DetectionConfigs `mapstructure:"detection_configs"`
	Treatment        bool             `mapstructure:"treatment"`
	TreatmentMethod  string           `mapstructure:"treatment_method"`
}

func ptr(f float64) *float64 { return &f }

// DefaultDetectionConfigs uses all three methods and requires two of them
// to agree.
func DefaultDetectionConfigs() DetectionConfigs {
	return DetectionConfigs{
		PctileLower:   ptr(0.05),
		PctileUpper:   ptr(0.95),
		StdevLower:    ptr(3.0),
		StdevUpper:    ptr(3.0),
		IQRLower:      ptr(1.5),
		IQRUpper:      ptr(1.5),
		MinValidation: 2,
	}
}

// DefaultOutlierConfig detects upper outliers on every numeric column and
// clips them.
func DefaultOutlierConfig() OutlierConfig {
	return OutlierConfig{
		Columns:          stage.AllColumns(),
		DetectionSide:    SideUpper,
		DetectionConfigs: DefaultDetectionConfigs(),
		Treatment:        true,
		TreatmentMethod:  TreatValueReplacement,
	}
}

// Bounds are the outlier limits of one column. A nil side is not checked.
type Bounds struct {
	Lower *float64
	Upper *float64
}

// ComputeBounds derives the column bounds. On each side a value is an
// outlier when at least min_validation methods flag it, which is the same
// as exceeding the min_validation-th least strict bound.
func ComputeBounds(xs []float64, side string, cfg DetectionConfigs) (Bounds, error) {
	var b Bounds
	if len(xs) == 0 {
		return b, nil
	}
	sorted := stats.Sorted(xs)
	mean, sd := stats.Mean(xs), stats.SampleStddev(xs)
	q1, q3 := stats.Quantile(sorted, 0.25), stats.Quantile(sorted, 0.75)
	iqr := q3 - q1

	if side == SideLower || side == SideBoth {
		var lows []float64
		if cfg.PctileLower != nil {
			lows = append(lows, stats.Quantile(sorted, *cfg.PctileLower))
		}
		if cfg.StdevLower != nil && !math.IsNaN(sd) {
			lows = append(lows, mean-*cfg.StdevLower*sd)
		}
		if cfg.IQRLower != nil {
			lows = append(lows, q1-*cfg.IQRLower*iqr)
		}
		bound, err := pick(lows, cfg.MinValidation, true)
		if err != nil {
			return b, fmt.Errorf("lower side: %w", err)
		}
		b.Lower = bound
	}
	if side == SideUpper || side == SideBoth {
		var ups []float64
		if cfg.PctileUpper != nil {
			ups = append(ups, stats.Quantile(sorted, *cfg.PctileUpper))
		}
		if cfg.StdevUpper != nil && !math.IsNaN(sd) {
			ups = append(ups, mean+*cfg.StdevUpper*sd)
		}
		if cfg.IQRUpper != nil {
			ups = append(ups, q3+*cfg.IQRUpper*iqr)
		}
		bound, err := pick(ups, cfg.MinValidation, false)
		if err != nil {
			return b, fmt.Errorf("upper side: %w", err)
		}
		b.Upper = bound
	}
	return b, nil
}

func pick(bounds []float64, k int, lower bool) (*float64, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("no detection method configured")
	}
	if k < 1 || k > len(bounds) {
		return nil, fmt.Errorf("min_validation must be between 1 and %d, got %d", len(bounds), k)
	}
	sort.Float64s(bounds)
	if lower {
		return ptr(bounds[len(bounds)-k]), nil
	}
	return ptr(bounds[k-1]), nil
}

// Outliers flags values beyond the computed bounds. Treatment clips them to
// the bound, nulls them, or drops the rows.
func (c *Checker) Outliers(ds *dataset.Dataset, cfg OutlierConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	switch cfg.DetectionSide {
	case SideUpper, SideLower, SideBoth:
	default:
		return nil, nil, fmt.Errorf("invalid detection_side %q (want upper, lower or both)", cfg.DetectionSide)
	}
	switch cfg.TreatmentMethod {
	case TreatValueReplacement, TreatNullReplacement, TreatRowRemoval:
	default:
		return nil, nil, fmt.Errorf("invalid treatment_method %q (want %s, %s or %s)",
			cfg.TreatmentMethod, TreatValueReplacement, TreatNullReplacement, TreatRowRemoval)
	}
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, nil, err
	}

	out := ds
	drop := make([]bool, ds.NumRows())
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		b, err := ComputeBounds(col.Floats(), cfg.DetectionSide, cfg.DetectionConfigs)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", n, err)
		}
		values := make([]any, len(col.Values))
		lowerN, upperN := 0, 0
		for i, v := range col.Values {
			values[i] = v
			x, ok := dataset.ToFloat(v)
			if !ok {
				continue
			}
			switch {
			case b.Lower != nil && x < *b.Lower:
				lowerN++
				values[i] = treatValue(cfg.TreatmentMethod, col.Type, *b.Lower, true)
				drop[i] = true
			case b.Upper != nil && x > *b.Upper:
				upperN++
				values[i] = treatValue(cfg.TreatmentMethod, col.Type, *b.Upper, false)
				drop[i] = true
			}
		}
		rows = append(rows, []any{n, int64(lowerN), int64(upperN)})
		if cfg.Treatment && cfg.TreatmentMethod != TreatRowRemoval {
			if out, err = out.WithColumn(dataset.NewColumn(n, col.Type, values)); err != nil {
				return nil, nil, err
			}
		}
		c.logger.Debug("outliers detected", "attribute", n, "lower", lowerN, "upper", upperN)
	}
	report, err := dataset.FromRows(
		[]string{"attribute", "lower_outliers", "upper_outliers"},
		[]dataset.DType{dataset.String, dataset.Integer, dataset.Integer},
		rows)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Treatment && cfg.TreatmentMethod == TreatRowRemoval {
		keep := make([]bool, len(drop))
		for i, d := range drop {
			keep[i] = !d
		}
		out = out.Filter(keep)
	}
	return out, report, nil
}

// treatValue returns the replacement of an outlier. Integer columns are
// clipped to the nearest integer inside the bound.
func treatValue(method string, t dataset.DType, bound float64, lower bool) any {
	if method == TreatNullReplacement {
		return nil
	}
	if t == dataset.Integer {
		if lower {
			return int64(math.Ceil(bound))
		}
		return int64(math.Floor(bound))
	}
	return bound
}
