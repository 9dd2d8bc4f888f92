package transform

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// OutlierCategory replaces the rare categories of a column.
const OutlierCategory = "outlier_categories"

// OutlierCategoriesConfig configures outlier_categories. Categories are kept
// in descending frequency until Coverage of the non-null rows is reached or
// MaxCategory-1 categories are kept; the rest become "outlier_categories".
type OutlierCategoriesConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	Coverage      float64 `mapstructure:"coverage"`
	MaxCategory   int     `mapstructure:"max_category"`
}

// DefaultOutlierCategoriesConfig keeps full coverage with at most 50
// categories.
func DefaultOutlierCategoriesConfig() OutlierCategoriesConfig {
	return OutlierCategoriesConfig{
		Columns:     stage.AllColumns(),
		Output:      Output{OutputMode: Replace},
		Coverage:    1.0,
		MaxCategory: 50,
	}
}

type category struct {
	value string
	count int
}

// ranked returns the categories of values ordered by descending frequency,
// ties broken alphabetically.
func ranked(values []any) ([]category, int) {
	freq := stats.Frequencies(values)
	out := make([]category, 0, len(freq))
	total := 0
	for v, n := range freq {
		out = append(out, category{v, n})
		total += n
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].count != out[b].count {
			return out[a].count > out[b].count
		}
		return out[a].value < out[b].value
	})
	return out, total
}

// OutlierCategories groups rare categories of categorical columns.
func (t *Transformer) OutlierCategories(ds *dataset.Dataset, cfg OutlierCategoriesConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Coverage <= 0 || cfg.Coverage > 1 {
		return nil, fmt.Errorf("coverage must be in (0, 1], got %v", cfg.Coverage)
	}
	if cfg.MaxCategory < 2 {
		return nil, fmt.Errorf("max_category must be at least 2, got %d", cfg.MaxCategory)
	}
	names, err := cfg.Resolve(ds, dataset.CategoricalKind)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, n := range names {
		col, _ := ds.Column(n)
		cats, total := ranked(col.Values)
		keep := make(map[string]bool)
		covered := 0
		for _, c := range cats {
			if float64(covered)/float64(total) >= cfg.Coverage || len(keep) >= cfg.MaxCategory-1 {
				break
			}
			keep[c.value] = true
			covered += c.count
		}
		if len(keep) == len(cats) {
			continue
		}
		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			s := dataset.FormatValue(v)
			if keep[s] {
				values[i] = s
			} else {
				values[i] = OutlierCategory
			}
		}
		if out, err = cfg.emit(out, n, "_outliered", dataset.String, values); err != nil {
			return nil, err
		}
		t.logger.Debug("outlier categories grouped", "column", n, "kept", len(keep), "categories", len(cats))
	}
	return out, nil
}

// Index orders for label encoding.
const (
	FrequencyDesc = "frequencyDesc"
	FrequencyAsc  = "frequencyAsc"
	AlphabetDesc  = "alphabetDesc"
	AlphabetAsc   = "alphabetAsc"
)

// Encoding methods of cat_to_num_unsupervised.
const (
	OneHotEncoding = 0
	LabelEncoding  = 1
)

// UnsupervisedConfig configures cat_to_num_unsupervised. Columns with more
// categories than CardinalityThreshold are left unencoded.
type UnsupervisedConfig struct {
	stage.Columns        `mapstructure:",squash"`
	Output               `mapstructure:",squash"`
	MethodType           int    `mapstructure:"method_type"`
	IndexOrder           string `mapstructure:"index_order"`
	CardinalityThreshold int    `mapstructure:"cardinality_threshold"`
}

// DefaultUnsupervisedConfig label encodes by descending frequency.
func DefaultUnsupervisedConfig() UnsupervisedConfig {
	return UnsupervisedConfig{
		Columns:              stage.AllColumns(),
		Output:               Output{OutputMode: Replace},
		MethodType:           LabelEncoding,
		IndexOrder:           FrequencyDesc,
		CardinalityThreshold: 100,
	}
}

func order(cats []category, by string) ([]category, error) {
	out := append([]category(nil), cats...)
	switch by {
	case FrequencyDesc:
	case FrequencyAsc:
		sort.SliceStable(out, func(a, b int) bool {
			if out[a].count != out[b].count {
				return out[a].count < out[b].count
			}
			return out[a].value < out[b].value
		})
	case AlphabetAsc:
		sort.SliceStable(out, func(a, b int) bool { return out[a].value < out[b].value })
	case AlphabetDesc:
		sort.SliceStable(out, func(a, b int) bool { return out[a].value > out[b].value })
	default:
		return nil, fmt.Errorf("invalid index_order %q", by)
	}
	return out, nil
}

// CatToNumUnsupervised label encodes (index from 0 in index_order) or one
// hot encodes (one 0/1 column per category named <col>_<category>)
// categorical columns. One hot columns are always added; in replace mode
// the source column is dropped.
func (t *Transformer) CatToNumUnsupervised(ds *dataset.Dataset, cfg UnsupervisedConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MethodType != OneHotEncoding && cfg.MethodType != LabelEncoding {
		return nil, fmt.Errorf("invalid method_type %d (want 0 onehot or 1 label)", cfg.MethodType)
	}
	names, err := cfg.Resolve(ds, dataset.CategoricalKind)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, n := range names {
		col, _ := ds.Column(n)
		cats, _ := ranked(col.Values)
		if len(cats) > cfg.CardinalityThreshold {
			t.logger.Warn("skipping high cardinality column", "column", n, "categories", len(cats), "threshold", cfg.CardinalityThreshold)
			continue
		}
		cats, err = order(cats, cfg.IndexOrder)
		if err != nil {
			return nil, err
		}
		if cfg.MethodType == LabelEncoding {
			index := make(map[string]int64, len(cats))
			for k, c := range cats {
				index[c.value] = int64(k)
			}
			values := make([]any, len(col.Values))
			for i, v := range col.Values {
				if v != nil {
					values[i] = index[dataset.FormatValue(v)]
				}
			}
			if out, err = cfg.emit(out, n, "_index", dataset.Integer, values); err != nil {
				return nil, err
			}
			continue
		}

		for _, c := range cats {
			values := make([]any, len(col.Values))
			for i, v := range col.Values {
				if v == nil {
					continue
				}
				if dataset.FormatValue(v) == c.value {
					values[i] = int64(1)
				} else {
					values[i] = int64(0)
				}
			}
			if out, err = out.WithColumn(dataset.NewColumn(n+"_"+c.value, dataset.Integer, values)); err != nil {
				return nil, err
			}
		}
		if cfg.OutputMode == Replace {
			if out, err = out.Drop(n); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SupervisedConfig configures cat_to_num_supervised.
type SupervisedConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	LabelCol      string `mapstructure:"label_col"`
	EventLabel    any    `mapstructure:"event_label"`
}

// DefaultSupervisedConfig encodes against label_col "label" with event 1.
func DefaultSupervisedConfig() SupervisedConfig {
	return SupervisedConfig{
		Columns:    stage.AllColumns(),
		Output:     Output{OutputMode: Replace},
		LabelCol:   "label",
		EventLabel: int64(1),
	}
}

// CatToNumSupervised replaces each category with its event rate: the share
// of rows of that category whose label equals event_label. Rows with a null
// label do not count.
func (t *Transformer) CatToNumSupervised(ds *dataset.Dataset, cfg SupervisedConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	label, ok := ds.Column(cfg.LabelCol)
	if !ok {
		return nil, &dataset.UnknownColumnsError{Columns: []string{cfg.LabelCol}}
	}
	cfg.DropCols = append(append(dataset.ColumnList{}, cfg.DropCols...), cfg.LabelCol)
	names, err := cfg.Resolve(ds, dataset.CategoricalKind)
	if err != nil {
		return nil, err
	}
	event := dataset.FormatValue(cfg.EventLabel)
	out := ds
	for _, n := range names {
		col, _ := ds.Column(n)
		type rate struct{ events, rows int }
		rates := make(map[string]*rate)
		for i, v := range col.Values {
			if v == nil || label.Values[i] == nil {
				continue
			}
			k := dataset.FormatValue(v)
			r, ok := rates[k]
			if !ok {
				r = &rate{}
				rates[k] = r
			}
			r.rows++
			if dataset.FormatValue(label.Values[i]) == event {
				r.events++
			}
		}
		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			if r, ok := rates[dataset.FormatValue(v)]; ok {
				values[i] = stats.Round(float64(r.events)/float64(r.rows), 4)
			}
		}
		if out, err = cfg.emit(out, n, "_encoded", dataset.Double, values); err != nil {
			return nil, err
		}
	}
	t.logger.Debug("supervised encoding applied", "columns", len(names), "label", cfg.LabelCol)
	return out, nil
}
