// Package quality implements the quality_checker stage. Each check reports
// on the selected columns and, when treatment is requested, returns a
// treated copy of the dataset.
package quality

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
)

// Check names accepted under quality_checker.
const (
	DuplicateDetection      = "duplicate_detection"
	NullRowsDetection       = "nullRows_detection"
	NullColumnsDetection    = "nullColumns_detection"
	OutlierDetection        = "outlier_detection"
	IDnessDetection         = "IDness_detection"
	BiasednessDetection     = "biasedness_detection"
	InvalidEntriesDetection = "invalidEntries_detection"
)

// Checks lists every check name.
var Checks = []string{
	DuplicateDetection,
	NullRowsDetection,
	NullColumnsDetection,
	OutlierDetection,
	IDnessDetection,
	BiasednessDetection,
	InvalidEntriesDetection,
}

// Checker runs quality checks.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a checker. If logger is nil, a discard logger is used.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{logger: logger}
}

// Run decodes the arguments of the named check and runs it.
func (c *Checker) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}
	var (
		data   *dataset.Dataset
		report *dataset.Dataset
		err    error
	)
	switch name {
	case DuplicateDetection:
		cfg := DefaultDuplicateConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.Duplicates(ds, cfg)
	case NullRowsDetection:
		cfg := DefaultNullRowsConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.NullRows(ds, cfg)
	case NullColumnsDetection:
		cfg := DefaultNullColumnsConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.NullColumns(ds, cfg)
	case OutlierDetection:
		cfg := DefaultOutlierConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.Outliers(ds, cfg)
	case IDnessDetection:
		cfg := DefaultIDnessConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.IDness(ds, cfg)
	case BiasednessDetection:
		cfg := DefaultBiasednessConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.Biasedness(ds, cfg)
	case InvalidEntriesDetection:
		cfg := DefaultInvalidEntriesConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		data, report, err = c.InvalidEntries(ds, cfg)
	default:
		return stage.Result{}, &stage.UnknownError{Group: "quality check", Name: name, Available: Checks}
	}
	if err != nil {
		return stage.Result{}, err
	}
	c.logger.Debug("quality check complete", "check", name, "rows_in", ds.NumRows(), "rows_out", data.NumRows())
	return stage.Result{Data: data, Stats: []stage.Output{{Name: name, Data: report}}}, nil
}

// Treatment is the common treatment switch.
type Treatment struct {
	Treatment          bool    `mapstructure:"treatment"`
	TreatmentThreshold float64 `mapstructure:"treatment_threshold"`
}
