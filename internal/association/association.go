// Package association implements the association_evaluator stage:
// correlation between numeric attributes and the predictive power of
// attributes against a binary label (information value and information
// gain).
package association

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Evaluation names accepted under association_evaluator.
const (
	CorrelationMatrix  = "correlation_matrix"
	IVCalculation      = "IV_calculation"
	IGCalculation      = "IG_calculation"
	VariableClustering = "variable_clustering"
)

// Evaluations lists the supported evaluations.
var Evaluations = []string{CorrelationMatrix, IVCalculation, IGCalculation}

// ErrClusteringUnsupported is returned for variable_clustering.
var ErrClusteringUnsupported = fmt.Errorf("%s is not supported", VariableClustering)

// Evaluator runs association evaluations.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. If logger is nil, a discard logger is
// used.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{logger: logger}
}

// CorrelationConfig configures correlation_matrix.
type CorrelationConfig struct {
	stage.Columns `mapstructure:",squash"`
}

// EncodingConfigs controls how numeric attributes are binned before IV and
// IG are computed.
type EncodingConfigs struct {
	BinMethod string `mapstructure:"bin_method"`
	BinSize   int    `mapstructure:"bin_size"`
}

// LabelConfig configures IV_calculation and IG_calculation.
type LabelConfig struct {
	stage.Columns   `mapstructure:",squash"`
	LabelCol        string          `mapstructure:"label_col"`
	EventLabel      any             `mapstructure:"event_label"`
	EncodingConfigs EncodingConfigs `mapstructure:"encoding_configs"`
}

// DefaultLabelConfig bins numeric attributes into 10 equal frequency bins.
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{
		Columns:    stage.AllColumns(),
		LabelCol:   "label",
		EventLabel: int64(1),
		EncodingConfigs: EncodingConfigs{
			BinMethod: stats.EqualFrequency,
			BinSize:   10,
		},
	}
}

// Run decodes the arguments of the named evaluation and runs it.
func (e *Evaluator) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}
	var (
		out *dataset.Dataset
		err error
	)
	switch name {
	case CorrelationMatrix:
		cfg := CorrelationConfig{Columns: stage.AllColumns()}
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = e.Correlation(ds, cfg)
	case IVCalculation:
		cfg := DefaultLabelConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = e.InformationValue(ds, cfg)
	case IGCalculation:
		cfg := DefaultLabelConfig()
		if err := decode(&cfg); err != nil {
			return stage.Result{}, err
		}
		out, err = e.InformationGain(ds, cfg)
	case VariableClustering:
		return stage.Result{}, ErrClusteringUnsupported
	default:
		return stage.Result{}, &stage.UnknownError{Group: "association evaluation", Name: name, Available: Evaluations}
	}
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{Stats: []stage.Output{{Name: name, Data: out}}}, nil
}

// Correlation computes the Pearson correlation of every pair of numeric
// columns over the rows where both are present. The output has one row per
// attribute and one column per attribute.
func (e *Evaluator) Correlation(ds *dataset.Dataset, cfg CorrelationConfig) (*dataset.Dataset, error) {
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, err
	}
	cols := make([]*dataset.Column, len(names))
	for j, n := range names {
		cols[j], _ = ds.Column(n)
	}

	header := append([]string{"attribute"}, names...)
	types := make([]dataset.DType, len(header))
	types[0] = dataset.String
	for j := 1; j < len(types); j++ {
		types[j] = dataset.Double
	}
	rows := make([][]any, len(names))
	for a := range cols {
		rows[a] = make([]any, len(header))
		rows[a][0] = names[a]
	}
	for a := range cols {
		for b := a; b < len(cols); b++ {
			xs, ys := pairs(cols[a], cols[b])
			r := stats.Nullable(stats.Round(stats.Pearson(xs, ys), 4))
			rows[a][b+1] = r
			rows[b][a+1] = r
		}
	}
	e.logger.Debug("correlation computed", "columns", len(names))
	return dataset.FromRows(header, types, rows)
}

func pairs(a, b *dataset.Column) ([]float64, []float64) {
	var xs, ys []float64
	for i := range a.Values {
		x, okX := dataset.ToFloat(a.Values[i])
		y, okY := dataset.ToFloat(b.Values[i])
		if okX && okY {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

// labelled holds the event flag of every row with a label.
type labelled struct {
	event []bool
	rows  []int
}

func (cfg LabelConfig) events(ds *dataset.Dataset) (labelled, error) {
	if cfg.LabelCol == "" {
		return labelled{}, fmt.Errorf("label_col is required")
	}
	col, ok := ds.Column(cfg.LabelCol)
	if !ok {
		return labelled{}, &dataset.UnknownColumnsError{Columns: []string{cfg.LabelCol}}
	}
	want := dataset.FormatValue(cfg.EventLabel)
	var l labelled
	events := 0
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		ev := dataset.FormatValue(v) == want
		if ev {
			events++
		}
		l.event = append(l.event, ev)
		l.rows = append(l.rows, i)
	}
	if events == 0 || events == len(l.rows) {
		return labelled{}, fmt.Errorf("label_col %s must contain both event (%s) and non-event rows", cfg.LabelCol, want)
	}
	return l, nil
}

// groups returns the group key of every labelled row: the bin for numeric
// attributes and the value for categorical ones. Nulls share one group.
func (cfg LabelConfig) groups(col *dataset.Column, l labelled) ([]string, error) {
	keys := make([]string, len(l.rows))
	if col.Type.IsNumeric() {
		cuts, err := stats.Cutoffs(cfg.EncodingConfigs.BinMethod, cfg.EncodingConfigs.BinSize, col.Floats())
		if err != nil {
			return nil, err
		}
		bins := stats.BinColumn(cuts, col.Values)
		for k, i := range l.rows {
			keys[k] = fmt.Sprint(bins[i])
		}
		return keys, nil
	}
	for k, i := range l.rows {
		if v := col.Values[i]; v != nil {
			keys[k] = "v:" + dataset.FormatValue(v)
		}
	}
	return keys, nil
}

type counts struct{ event, nonEvent int }

func tally(keys []string, l labelled) (map[string]*counts, int, int) {
	byKey := make(map[string]*counts)
	totalEv, totalNon := 0, 0
	for k, key := range keys {
		c, ok := byKey[key]
		if !ok {
			c = &counts{}
			byKey[key] = c
		}
		if l.event[k] {
			c.event++
			totalEv++
		} else {
			c.nonEvent++
			totalNon++
		}
	}
	return byKey, totalEv, totalNon
}

func (e *Evaluator) perAttribute(ds *dataset.Dataset, cfg LabelConfig, metric string, fn func(map[string]*counts, int, int) float64) (*dataset.Dataset, error) {
	l, err := cfg.events(ds)
	if err != nil {
		return nil, err
	}
	cfg.DropCols = append(append(dataset.ColumnList{}, cfg.DropCols...), cfg.LabelCol)
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, err
	}
	type result struct {
		name  string
		value float64
	}
	results := make([]result, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		if col.Type == dataset.Timestamp {
			continue
		}
		keys, err := cfg.groups(col, l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		byKey, ev, non := tally(keys, l)
		results = append(results, result{n, stats.Round(fn(byKey, ev, non), 4)})
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].value > results[b].value })
	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = []any{r.name, r.value}
	}
	return dataset.FromRows([]string{"attribute", metric}, []dataset.DType{dataset.String, dataset.Double}, rows)
}

// smoothing replaces empty event or non-event shares.
const smoothing = 0.0001

// InformationValue computes IV = Σ (e_i - n_i) ln(e_i / n_i) where e_i and
// n_i are the shares of events and non-events falling in group i. Results
// are sorted by IV, highest first.
func (e *Evaluator) InformationValue(ds *dataset.Dataset, cfg LabelConfig) (*dataset.Dataset, error) {
	return e.perAttribute(ds, cfg, "iv", func(byKey map[string]*counts, ev, non int) float64 {
		iv := 0.0
		for _, c := range byKey {
			de := float64(c.event) / float64(ev)
			dn := float64(c.nonEvent) / float64(non)
			if de == 0 {
				de = smoothing
			}
			if dn == 0 {
				dn = smoothing
			}
			iv += (de - dn) * math.Log(de/dn)
		}
		return iv
	})
}

func entropy(ev, non int) float64 {
	total := float64(ev + non)
	h := 0.0
	for _, n := range []int{ev, non} {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

// InformationGain computes the reduction in label entropy (base 2) from
// splitting the rows by attribute group. Results are sorted by IG, highest
// first.
func (e *Evaluator) InformationGain(ds *dataset.Dataset, cfg LabelConfig) (*dataset.Dataset, error) {
	return e.perAttribute(ds, cfg, "ig", func(byKey map[string]*counts, ev, non int) float64 {
		total := float64(ev + non)
		conditional := 0.0
		for _, c := range byKey {
			conditional += float64(c.event+c.nonEvent) / total * entropy(c.event, c.nonEvent)
		}
		return entropy(ev, non) - conditional
	})
}
