// Package report implements the report_preprocessing stage. It turns the
// dataset into the chart-ready tables a report renderer consumes:
// frequency distributions, event rates and drift comparisons per attribute.
// Rendering itself is out of scope.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/drift"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/storage"
)

// ChartsToObjects is the only report_preprocessing function.
const ChartsToObjects = "charts_to_objects"

// Functions lists the supported functions.
var Functions = []string{ChartsToObjects}

// Others labels the categories beyond the coverage cut.
const Others = "others"

// Config configures charts_to_objects.
type Config struct {
	stage.Columns  `mapstructure:",squash"`
	LabelCol       string  `mapstructure:"label_col"`
	EventLabel     any     `mapstructure:"event_label"`
	BinMethod      string  `mapstructure:"bin_method"`
	BinSize        int     `mapstructure:"bin_size"`
	Coverage       float64 `mapstructure:"coverage"`
	DriftDetector  bool    `mapstructure:"drift_detector"`
	SourcePath     string  `mapstructure:"source_path"`
	ModelDirectory string  `mapstructure:"model_directory"`
	MasterPath     string  `mapstructure:"master_path"`
}

// DefaultConfig bins numeric attributes into 10 equal range bins and keeps
// every category.
func DefaultConfig() Config {
	return Config{
		Columns:        stage.AllColumns(),
		EventLabel:     int64(1),
		BinMethod:      stats.EqualRange,
		BinSize:        10,
		Coverage:       1.0,
		SourcePath:     "NA",
		ModelDirectory: "drift_statistics",
	}
}

// Preprocessor builds chart objects.
type Preprocessor struct {
	logger *slog.Logger
	tables drift.Tables
}

// NewPreprocessor creates a preprocessor that reads drift models through
// tables. If logger is nil, a discard logger is used; if tables is nil,
// models are read from the local file system.
func NewPreprocessor(logger *slog.Logger, tables drift.Tables) *Preprocessor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Preprocessor{logger: logger, tables: tables}
}

// Run decodes the arguments of the named function and runs it.
func (p *Preprocessor) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	if name != ChartsToObjects {
		return stage.Result{}, &stage.UnknownError{Group: "report_preprocessing function", Name: name, Available: Functions}
	}
	cfg := DefaultConfig()
	if err := decode(&cfg); err != nil {
		return stage.Result{}, err
	}
	var store drift.ModelStore
	if cfg.DriftDetector {
		root := cfg.SourcePath
		if root == "" || root == "NA" {
			root = drift.DefaultModelRoot
		}
		store = drift.DirStore{Dir: storage.Join(root, cfg.ModelDirectory), Tables: p.tables}
	}
	outputs, err := p.Charts(ctx, ds, cfg, store)
	if err != nil {
		return stage.Result{}, err
	}
	if cfg.MasterPath != "" {
		for i := range outputs {
			outputs[i].Path = storage.Join(cfg.MasterPath, outputs[i].Name)
		}
	}
	return stage.Result{Stats: outputs}, nil
}

// Charts builds, for every selected attribute except the label:
//
//	freqDist_<attr>   [bin, count, pct]
//	eventDist_<attr>  [bin, event_rate]        when label_col is set
//	drift_<attr>      [bin, source, target]    when store is not nil
//
// Numeric attributes are binned and labelled by interval; categorical
// attributes keep their most frequent categories up to Coverage and group
// the rest under "others". The null bin has a null label.
func (p *Preprocessor) Charts(ctx context.Context, ds *dataset.Dataset, cfg Config, store drift.ModelStore) ([]stage.Output, error) {
	if cfg.Coverage <= 0 || cfg.Coverage > 1 {
		return nil, fmt.Errorf("coverage must be in (0, 1], got %v", cfg.Coverage)
	}
	var label *dataset.Column
	if cfg.LabelCol != "" {
		var ok bool
		if label, ok = ds.Column(cfg.LabelCol); !ok {
			return nil, &dataset.UnknownColumnsError{Columns: []string{cfg.LabelCol}}
		}
		cfg.DropCols = append(append(dataset.ColumnList{}, cfg.DropCols...), cfg.LabelCol)
	}
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, err
	}

	var model *drift.Model
	if store != nil {
		if model, err = store.LoadModel(ctx); err != nil {
			return nil, fmt.Errorf("load drift model: %w", err)
		}
	}

	var outputs []stage.Output
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		col, _ := ds.Column(n)
		if col.Type == dataset.Timestamp {
			continue
		}
		keys, order, err := p.groups(col, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		freq, err := frequencyTable(keys, order)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, stage.Output{Name: "freqDist_" + n, Data: freq})

		if label != nil {
			events, err := eventTable(keys, order, label.Values, dataset.FormatValue(cfg.EventLabel))
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, stage.Output{Name: "eventDist_" + n, Data: events})
		}
		if model != nil {
			cmp, err := driftTable(ctx, col, model, store)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n, err)
			}
			if cmp != nil {
				outputs = append(outputs, stage.Output{Name: "drift_" + n, Data: cmp})
			}
		}
	}
	p.logger.Debug("chart objects built", "attributes", len(names), "outputs", len(outputs))
	return outputs, nil
}

// groups returns the chart bin of every row (nil for nulls) and the bins in
// display order.
func (p *Preprocessor) groups(col *dataset.Column, cfg Config) ([]any, []string, error) {
	keys := make([]any, col.Len())
	if col.Type.IsNumeric() {
		cuts, err := stats.Cutoffs(cfg.BinMethod, cfg.BinSize, col.Floats())
		if err != nil {
			return nil, nil, err
		}
		bins := stats.BinColumn(cuts, col.Values)
		seen := make(map[int]bool)
		for i, b := range bins {
			if b == stats.NullBin {
				continue
			}
			keys[i] = stats.BinLabel(cuts, b)
			seen[b] = true
		}
		ids := make([]int, 0, len(seen))
		for b := range seen {
			ids = append(ids, b)
		}
		sort.Ints(ids)
		order := make([]string, len(ids))
		for k, b := range ids {
			order[k] = stats.BinLabel(cuts, b)
		}
		return keys, order, nil
	}

	freq := stats.Frequencies(col.Values)
	total := 0
	cats := make([]string, 0, len(freq))
	for c, cnt := range freq {
		cats = append(cats, c)
		total += cnt
	}
	sort.Slice(cats, func(a, b int) bool {
		if freq[cats[a]] != freq[cats[b]] {
			return freq[cats[a]] > freq[cats[b]]
		}
		return cats[a] < cats[b]
	})
	keep := make(map[string]bool)
	var order []string
	covered := 0
	for _, c := range cats {
		if float64(covered)/float64(total) >= cfg.Coverage {
			break
		}
		keep[c] = true
		order = append(order, c)
		covered += freq[c]
	}
	if len(keep) < len(cats) {
		order = append(order, Others)
	}
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		if s := dataset.FormatValue(v); keep[s] {
			keys[i] = s
		} else {
			keys[i] = Others
		}
	}
	return keys, order, nil
}

func frequencyTable(keys []any, order []string) (*dataset.Dataset, error) {
	counts := make(map[string]int)
	nulls := 0
	for _, k := range keys {
		if k == nil {
			nulls++
			continue
		}
		counts[k.(string)]++
	}
	total := len(keys)
	rows := make([][]any, 0, len(order)+1)
	for _, b := range order {
		rows = append(rows, []any{b, int64(counts[b]), share(counts[b], total)})
	}
	if nulls > 0 {
		rows = append(rows, []any{nil, int64(nulls), share(nulls, total)})
	}
	return dataset.FromRows(
		[]string{"bin", "count", "pct"},
		[]dataset.DType{dataset.String, dataset.Integer, dataset.Double},
		rows,
	)
}

func share(n, d int) any {
	if d == 0 {
		return nil
	}
	return stats.Round(float64(n)/float64(d), 4)
}

func eventTable(keys []any, order []string, label []any, event string) (*dataset.Dataset, error) {
	type rate struct{ events, rows int }
	rates := make(map[string]*rate)
	var nulls rate
	for i, k := range keys {
		if label[i] == nil {
			continue
		}
		r := &nulls
		if k != nil {
			key := k.(string)
			if rates[key] == nil {
				rates[key] = &rate{}
			}
			r = rates[key]
		}
		r.rows++
		if dataset.FormatValue(label[i]) == event {
			r.events++
		}
	}
	var rows [][]any
	for _, b := range order {
		if r, ok := rates[b]; ok {
			rows = append(rows, []any{b, share(r.events, r.rows)})
		}
	}
	if nulls.rows > 0 {
		rows = append(rows, []any{nil, share(nulls.events, nulls.rows)})
	}
	return dataset.FromRows([]string{"bin", "event_rate"}, []dataset.DType{dataset.String, dataset.Double}, rows)
}

// driftTable compares the saved source frequencies of col with the current
// ones. It returns nil when the model has no entry for a numeric attribute.
func driftTable(ctx context.Context, col *dataset.Column, model *drift.Model, store drift.ModelStore) (*dataset.Dataset, error) {
	if _, ok := model.Cutoffs[col.Name]; !ok && col.Type.IsNumeric() {
		return nil, nil
	}
	source, err := store.LoadFrequencies(ctx, col.Name)
	if err != nil {
		return nil, fmt.Errorf("load source frequencies: %w", err)
	}
	target, err := model.Frequencies(col)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for k := range source {
		keys[k] = true
	}
	for k := range target {
		keys[k] = true
	}
	bins := make([]string, 0, len(keys))
	for k := range keys {
		bins = append(bins, k)
	}
	cuts := model.Cutoffs[col.Name]
	numeric := col.Type.IsNumeric()
	sort.Slice(bins, func(a, b int) bool {
		if numeric {
			x, _ := strconv.Atoi(bins[a])
			y, _ := strconv.Atoi(bins[b])
			return x < y
		}
		return bins[a] < bins[b]
	})
	rows := make([][]any, len(bins))
	for i, b := range bins {
		var label any = b
		if numeric {
			id, _ := strconv.Atoi(b)
			label = nil
			if id != stats.NullBin {
				label = stats.BinLabel(cuts, id)
			}
		} else if b == strconv.Itoa(stats.NullBin) {
			label = nil
		}
		rows[i] = []any{label, stats.Round(source[b], 4), stats.Round(target[b], 4)}
	}
	return dataset.FromRows(
		[]string{"bin", "source", "target"},
		[]dataset.DType{dataset.String, dataset.Double, dataset.Double},
		rows,
	)
}
