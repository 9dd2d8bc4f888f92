package transform

import (
	"fmt"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Bin output types.
const (
	BinNumerical   = "numerical"
	BinCategorical = "categorical"
)

// BinningConfig configures attribute_binning.
type BinningConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	MethodType    string `mapstructure:"method_type"`
	BinSize       int    `mapstructure:"bin_size"`
	BinDtype      string `mapstructure:"bin_dtype"`
}

// DefaultBinningConfig bins every numeric column into 10 equal range bins.
func DefaultBinningConfig() BinningConfig {
	return BinningConfig{
		Columns:    stage.AllColumns(),
		Output:     Output{OutputMode: Replace},
		MethodType: stats.EqualRange,
		BinSize:    10,
		BinDtype:   BinNumerical,
	}
}

// AttributeBinning replaces numeric values with their bin: the 1-based bin
// index (bin_dtype numerical) or the interval label (categorical). Nulls
// stay null.
func (t *Transformer) AttributeBinning(ds *dataset.Dataset, cfg BinningConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BinDtype != BinNumerical && cfg.BinDtype != BinCategorical {
		return nil, fmt.Errorf("invalid bin_dtype %q (want %s or %s)", cfg.BinDtype, BinNumerical, BinCategorical)
	}
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, n := range names {
		col, _ := ds.Column(n)
		cuts, err := stats.Cutoffs(cfg.MethodType, cfg.BinSize, col.Floats())
		if err != nil {
			return nil, err
		}
		bins := stats.BinColumn(cuts, col.Values)
		values := make([]any, len(bins))
		typ := dataset.Integer
		if cfg.BinDtype == BinCategorical {
			typ = dataset.String
		}
		for i, b := range bins {
			switch {
			case b == stats.NullBin:
			case typ == dataset.String:
				values[i] = stats.BinLabel(cuts, b)
			default:
				values[i] = int64(b)
			}
		}
		if out, err = cfg.emit(out, n, "_binned", typ, values); err != nil {
			return nil, err
		}
		t.logger.Debug("attribute binned", "column", n, "cutoffs", cuts)
	}
	return out, nil
}
