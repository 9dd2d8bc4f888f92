package drift

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/storage"
)

// Functions accepted under drift_detector.
const (
	DriftStatistics    = "drift_statistics"
	StabilityIndexFn   = "stability_index"
	FeatureStabilityFn = "feature_stability"
)

// Functions lists the drift_detector functions.
var Functions = []string{DriftStatistics, StabilityIndexFn, FeatureStabilityFn}

// DefaultModelRoot holds drift models when source_path is "NA".
const DefaultModelRoot = "intermediate_data"

// HistoryStore keeps stability metric history by series name.
type HistoryStore interface {
	LoadHistory(ctx context.Context, series string) ([]MetricRecord, error)
	AppendHistory(ctx context.Context, series string, records []MetricRecord) error
}

// Env is what drift functions need from the pipeline besides the main
// dataset.
type Env struct {
	// Load reads the nested dataset block under key of the function's
	// arguments (source_dataset, dataset1, ...). It returns nil, nil when
	// the block is absent.
	Load func(ctx context.Context, key string) (*dataset.Dataset, error)
	// ReadTable reads a dataset written by an earlier run, such as a metric
	// history file.
	ReadTable func(ctx context.Context, path string) (*dataset.Dataset, error)
	// Tables stores the drift model. Nil means the local file system.
	Tables Tables
	// History is optional.
	History HistoryStore
}

// Runner dispatches drift_detector functions.
type Runner struct {
	detector *Detector
	env      Env
}

// NewRunner creates a runner bound to env.
func NewRunner(detector *Detector, env Env) *Runner {
	return &Runner{detector: detector, env: env}
}

// StatisticsConfigs are the configs of drift_statistics.
type StatisticsConfigs struct {
	stage.Columns     `mapstructure:",squash"`
	MethodType        dataset.ColumnList `mapstructure:"method_type"`
	Threshold         float64            `mapstructure:"threshold"`
	BinMethod         string             `mapstructure:"bin_method"`
	BinSize           int                `mapstructure:"bin_size"`
	PreExistingSource bool               `mapstructure:"pre_existing_source"`
	SourcePath        string             `mapstructure:"source_path"`
	ModelDirectory    string             `mapstructure:"model_directory"`
}

// DefaultStatisticsConfigs compare every column with all metrics.
func DefaultStatisticsConfigs() StatisticsConfigs {
	return StatisticsConfigs{
		Columns:        stage.AllColumns(),
		MethodType:     dataset.ColumnList{dataset.All},
		Threshold:      0.1,
		BinMethod:      stats.EqualRange,
		BinSize:        10,
		SourcePath:     "NA",
		ModelDirectory: "drift_statistics",
	}
}

// StabilityConfigs are the configs of stability_index and
// feature_stability.
type StabilityConfigs struct {
	stage.Columns           `mapstructure:",squash"`
	MetricWeightages        Weights           `mapstructure:"metric_weightages"`
	ExistingMetricPath      string            `mapstructure:"existing_metric_path"`
	AppendedMetricPath      string            `mapstructure:"appended_metric_path"`
	Threshold               float64           `mapstructure:"threshold"`
	MetricHistory           string            `mapstructure:"metric_history"`
	AttributeTransformation map[string]string `mapstructure:"attribute_transformation"`
}

// DefaultStabilityConfigs use the default weights and flag indexes below 1.
func DefaultStabilityConfigs() StabilityConfigs {
	return StabilityConfigs{
		Columns:          stage.AllColumns(),
		MetricWeightages: DefaultWeights,
		Threshold:        1,
	}
}

// Run decodes the configs of the named function and runs it.
func (r *Runner) Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error) {
	switch name {
	case DriftStatistics:
		args := struct {
			Configs StatisticsConfigs `mapstructure:"configs"`
		}{Configs: DefaultStatisticsConfigs()}
		if err := decode(&args); err != nil {
			return stage.Result{}, err
		}
		return r.statistics(ctx, ds, args.Configs)
	case StabilityIndexFn, FeatureStabilityFn:
		args := struct {
			Configs StabilityConfigs `mapstructure:"configs"`
		}{Configs: DefaultStabilityConfigs()}
		if err := decode(&args); err != nil {
			return stage.Result{}, err
		}
		if name == FeatureStabilityFn {
			return r.featureStability(ctx, args.Configs)
		}
		return r.stabilityIndex(ctx, args.Configs)
	default:
		return stage.Result{}, &stage.UnknownError{Group: "drift_detector function", Name: name, Available: Functions}
	}
}

func (r *Runner) modelStore(cfg StatisticsConfigs) ModelStore {
	root := cfg.SourcePath
	if root == "" || root == "NA" {
		root = DefaultModelRoot
	}
	return DirStore{Dir: storage.Join(root, cfg.ModelDirectory), Tables: r.env.Tables}
}

func (r *Runner) statistics(ctx context.Context, target *dataset.Dataset, cfg StatisticsConfigs) (stage.Result, error) {
	methods, err := ParseMethods(cfg.MethodType)
	if err != nil {
		return stage.Result{}, err
	}
	cols, err := cfg.Resolve(target, dataset.AnyKind)
	if err != nil {
		return stage.Result{}, err
	}
	store := r.modelStore(cfg)
	var source *dataset.Dataset
	if !cfg.PreExistingSource {
		if r.env.Load == nil {
			return stage.Result{}, errors.New("drift_statistics: no dataset loader configured")
		}
		if source, err = r.env.Load(ctx, "source_dataset"); err != nil {
			return stage.Result{}, fmt.Errorf("source_dataset: %w", err)
		}
	}
	out, err := r.detector.Statistics(ctx, source, target, cols, StatisticsConfig{
		Methods:           methods,
		Threshold:         cfg.Threshold,
		BinMethod:         cfg.BinMethod,
		BinSize:           cfg.BinSize,
		PreExistingSource: cfg.PreExistingSource,
	}, store)
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{Stats: []stage.Output{{Name: DriftStatistics, Data: out}}}, nil
}

// history loads the existing metric history from the configured file and
// series.
func (r *Runner) history(ctx context.Context, cfg StabilityConfigs) ([]MetricRecord, error) {
	var out []MetricRecord
	if cfg.ExistingMetricPath != "" {
		if r.env.ReadTable == nil {
			return nil, errors.New("existing_metric_path: no reader configured")
		}
		ds, err := r.env.ReadTable(ctx, cfg.ExistingMetricPath)
		if err != nil {
			return nil, fmt.Errorf("existing_metric_path: %w", err)
		}
		recs, err := HistoryFromDataset(ds)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if cfg.MetricHistory != "" && r.env.History != nil {
		recs, err := r.env.History.LoadHistory(ctx, cfg.MetricHistory)
		if err != nil {
			return nil, fmt.Errorf("metric_history %s: %w", cfg.MetricHistory, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// periods loads dataset1, dataset2, ... until the first absent key.
func (r *Runner) periods(ctx context.Context) ([]*dataset.Dataset, error) {
	if r.env.Load == nil {
		return nil, nil
	}
	var out []*dataset.Dataset
	for k := 1; ; k++ {
		key := fmt.Sprintf("dataset%d", k)
		ds, err := r.env.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if ds == nil {
			return out, nil
		}
		out = append(out, ds)
	}
}

// historyColumns selects attributes from the history when there are no new
// datasets to resolve against.
func historyColumns(history []MetricRecord, sel stage.Columns) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range history {
		seen[r.Attribute] = true
	}
	drop := make(map[string]bool)
	for _, d := range sel.DropCols {
		drop[d] = true
	}
	var cols []string
	if len(sel.ListOfCols) == 0 || sel.ListOfCols.IsAll() {
		for a := range seen {
			cols = append(cols, a)
		}
		sort.Strings(cols)
	} else {
		var missing []string
		for _, a := range sel.ListOfCols {
			if !seen[a] {
				missing = append(missing, a)
			}
			cols = append(cols, a)
		}
		if len(missing) > 0 {
			return nil, &dataset.UnknownColumnsError{Columns: missing}
		}
	}
	out := cols[:0]
	for _, c := range cols {
		if !drop[c] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, dataset.ErrNoColumns
	}
	return out, nil
}

func (r *Runner) stabilityIndex(ctx context.Context, cfg StabilityConfigs) (stage.Result, error) {
	if err := cfg.MetricWeightages.Validate(); err != nil {
		return stage.Result{}, err
	}
	history, err := r.history(ctx, cfg)
	if err != nil {
		return stage.Result{}, err
	}
	periods, err := r.periods(ctx)
	if err != nil {
		return stage.Result{}, err
	}
	if len(periods) == 0 && len(history) == 0 {
		return stage.Result{}, errors.New("stability_index: no datasets and no existing metrics")
	}

	var cols []string
	if len(periods) > 0 {
		cols, err = cfg.Resolve(periods[0], dataset.NumericKind)
	} else {
		cols, err = historyColumns(history, cfg.Columns)
	}
	if err != nil {
		return stage.Result{}, err
	}
	added, err := ComputeMetrics(MaxIdx(history), cols, periods...)
	if err != nil {
		return stage.Result{}, err
	}
	all := append(append([]MetricRecord{}, history...), added...)

	out, err := StabilityIndex(all, cols, cfg.MetricWeightages, cfg.Threshold)
	if err != nil {
		return stage.Result{}, err
	}
	res := stage.Result{Stats: []stage.Output{{Name: StabilityIndexFn, Data: out}}}

	if cfg.AppendedMetricPath != "" {
		hist, err := HistoryDataset(all)
		if err != nil {
			return stage.Result{}, err
		}
		res.Stats = append(res.Stats, stage.Output{Name: "metric_history", Data: hist, Path: cfg.AppendedMetricPath})
	}
	if cfg.MetricHistory != "" && r.env.History != nil && len(added) > 0 {
		if err := r.env.History.AppendHistory(ctx, cfg.MetricHistory, added); err != nil {
			return stage.Result{}, fmt.Errorf("metric_history %s: %w", cfg.MetricHistory, err)
		}
	}
	return res, nil
}

func (r *Runner) featureStability(ctx context.Context, cfg StabilityConfigs) (stage.Result, error) {
	if len(cfg.AttributeTransformation) == 0 {
		return stage.Result{}, errors.New("feature_stability: attribute_transformation is required")
	}
	history, err := r.history(ctx, cfg)
	if err != nil {
		return stage.Result{}, err
	}
	if len(history) == 0 {
		return stage.Result{}, errors.New("feature_stability: existing_metric_path or metric_history is required")
	}
	keys := make([]string, 0, len(cfg.AttributeTransformation))
	for k := range cfg.AttributeTransformation {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	trs := make([]Transformation, len(keys))
	for i, k := range keys {
		trs[i] = ParseTransformation(k, cfg.AttributeTransformation[k])
	}
	out, err := FeatureStability(history, trs, cfg.MetricWeightages, cfg.Threshold)
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{Stats: []stage.Output{{Name: FeatureStabilityFn, Data: out}}}, nil
}
