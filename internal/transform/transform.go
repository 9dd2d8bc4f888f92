// Package transform implements the transformers stage: numeric math
// operations, binning, expressions, categorical encoding, rescaling and
// imputation. Every function writes its result either over the input
// column (output_mode replace) or into a new suffixed column (append).
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/starlark"
)

// Function names accepted under transformers.<group>.
const (
	FeatureTransformation = "feature_transformation"
	BoxCoxTransformation  = "boxcox_transformation"
	AttributeBinning      = "attribute_binning"
	ExpressionParser      = "expression_parser"
	OutlierCategories     = "outlier_categories"
	CatToNumUnsupervised  = "cat_to_num_unsupervised"
	CatToNumSupervised    = "cat_to_num_supervised"
	Normalization         = "normalization"
	ZStandardization      = "z_standardization"
	IQRStandardization    = "IQR_standardization"
	ImputationMMM         = "imputation_MMM"
)

// Groups maps each transformer group to its functions.
var Groups = map[string][]string{
	"numerical_mathops":    {FeatureTransformation, BoxCoxTransformation},
	"numerical_binning":    {AttributeBinning},
	"numerical_expression": {ExpressionParser},
	"categorical_outliers": {OutlierCategories},
	"categorical_encoding": {CatToNumUnsupervised, CatToNumSupervised},
	"numerical_rescaling":  {Normalization, ZStandardization, IQRStandardization},
	"numerical_imputation": {ImputationMMM},
}

// GroupNames returns the sorted group names.
func GroupNames() []string {
	names := make([]string, 0, len(Groups))
	for g := range Groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// IsFunction reports whether fn belongs to group.
func IsFunction(group, fn string) bool {
	for _, f := range Groups[group] {
		if f == fn {
			return true
		}
	}
	return false
}

// Output modes.
const (
	Replace = "replace"
	Append  = "append"
)

// Output selects where results are written.
type Output struct {
	OutputMode string `mapstructure:"output_mode"`
}

func (o Output) validate() error {
	if o.OutputMode != Replace && o.OutputMode != Append {
		return fmt.Errorf("invalid output_mode %q (want replace or append)", o.OutputMode)
	}
	return nil
}

// emit writes values for column name: over it in replace mode, or as
// name+suffix in append mode.
func (o Output) emit(ds *dataset.Dataset, name, suffix string, t dataset.DType, values []any) (*dataset.Dataset, error) {
	if o.OutputMode == Append {
		name += suffix
	}
	return ds.WithColumn(dataset.NewColumn(name, t, values))
}

// Transformer runs transformer functions.
type Transformer struct {
	logger *slog.Logger
	rows   *starlark.RowEvaluator
}

// NewTransformer creates a transformer. Expressions are evaluated with at
// most workers goroutines. If logger is nil, a discard logger is used.
func NewTransformer(logger *slog.Logger, workers int) *Transformer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transformer{logger: logger, rows: starlark.NewRowEvaluator(workers)}
}

// Run decodes the arguments of the named function and applies it.
func (t *Transformer) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}
	var (
		out *dataset.Dataset
		err error
	)
	switch name {
	case FeatureTransformation:
		cfg := DefaultMathConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.FeatureTransformation(ds, cfg)
	case BoxCoxTransformation:
		cfg := BoxCoxConfig{Columns: stage.AllColumns(), Output: Output{OutputMode: Replace}}
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.BoxCox(ds, cfg)
	case AttributeBinning:
		cfg := DefaultBinningConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.AttributeBinning(ds, cfg)
	case ExpressionParser:
		cfg := ExpressionConfig{}
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.ExpressionParser(ctx, ds, cfg)
	case OutlierCategories:
		cfg := DefaultOutlierCategoriesConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.OutlierCategories(ds, cfg)
	case CatToNumUnsupervised:
		cfg := DefaultUnsupervisedConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.CatToNumUnsupervised(ds, cfg)
	case CatToNumSupervised:
		cfg := DefaultSupervisedConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.CatToNumSupervised(ds, cfg)
	case Normalization, ZStandardization, IQRStandardization:
		cfg := RescaleConfig{Columns: stage.AllColumns(), Output: Output{OutputMode: Replace}}
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.Rescale(ds, name, cfg)
	case ImputationMMM:
		cfg := DefaultImputationConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = t.Imputation(ds, cfg)
	default:
		var all []string
		for _, g := range GroupNames() {
			all = append(all, Groups[g]...)
		}
		return stage.Result{}, &stage.UnknownError{Group: "transformer", Name: name, Available: all}
	}
	if err != nil {
		return stage.Result{}, fmt.Errorf("%s: %w", name, err)
	}
	return stage.Result{Data: out}, nil
}
