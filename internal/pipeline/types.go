// Package pipeline loads and validates pipeline descriptions: the YAML file
// that names the input dataset, the column operations, the analysis and
// transformation stages and where results are written.
package pipeline

import (
	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Top level keys of a pipeline file.
const (
	InputDatasetKey      = "input_dataset"
	StatsGenerator       = "stats_generator"
	QualityChecker       = "quality_checker"
	AssociationEvaluator = "association_evaluator"
	DriftDetector        = "drift_detector"
	ReportPreprocessing  = "report_preprocessing"
	ReportGeneration     = "report_generation"
	Transformers         = "transformers"
	WriteIntermediateKey = "write_intermediate"
	WriteMainKey         = "write_main"
	WriteStatsKey        = "write_stats"
)

// StageNames lists the stage blocks in their default execution order.
var StageNames = []string{
	StatsGenerator,
	QualityChecker,
	AssociationEvaluator,
	DriftDetector,
	ReportPreprocessing,
	ReportGeneration,
	Transformers,
}

// IsStage reports whether key is a stage block.
func IsStage(key string) bool {
	for _, s := range StageNames {
		if s == key {
			return true
		}
	}
	return false
}

// Location names a dataset in storage: a file path (or table location) and
// the format that reads and writes it.
type Location struct {
	FilePath    string         `koanf:"file_path" yaml:"file_path"`
	FileType    string         `koanf:"file_type" yaml:"file_type"`
	FileConfigs map[string]any `koanf:"file_configs" yaml:"file_configs,omitempty"`
}

// Options returns a copy of the format options.
func (l Location) Options() dataio.Options {
	opts := make(dataio.Options, len(l.FileConfigs))
	for k, v := range l.FileConfigs {
		opts[k] = v
	}
	return opts
}

// RenameColumn renames columns pairwise.
type RenameColumn struct {
	ListOfCols    dataset.ColumnList `koanf:"list_of_cols"`
	ListOfNewcols dataset.ColumnList `koanf:"list_of_newcols"`
	PrintImpact   bool               `koanf:"print_impact"`
}

// RecastColumn changes column types pairwise.
type RecastColumn struct {
	ListOfCols   dataset.ColumnList `koanf:"list_of_cols"`
	ListOfDtypes dataset.ColumnList `koanf:"list_of_dtypes"`
	PrintImpact  bool               `koanf:"print_impact"`
}

// InputDataset reads a dataset and applies the column operations in the
// order delete, select, rename, recast. The drift detector's nested
// source_dataset and datasetN blocks share this layout.
type InputDataset struct {
	ReadDataset  Location           `koanf:"read_dataset"`
	DeleteColumn dataset.ColumnList `koanf:"delete_column"`
	SelectColumn dataset.ColumnList `koanf:"select_column"`
	RenameColumn *RenameColumn      `koanf:"rename_column"`
	RecastColumn *RecastColumn      `koanf:"recast_column"`
}

// Apply runs the column operations on ds.
func (in InputDataset) Apply(ds *dataset.Dataset) (*dataset.Dataset, error) {
	var err error
	if len(in.DeleteColumn) > 0 {
		if ds, err = ds.Drop(in.DeleteColumn...); err != nil {
			return nil, err
		}
	}
	if len(in.SelectColumn) > 0 {
		if ds, err = ds.Select(in.SelectColumn...); err != nil {
			return nil, err
		}
	}
	if r := in.RenameColumn; r != nil && len(r.ListOfCols) > 0 {
		if ds, err = ds.Rename(r.ListOfCols, r.ListOfNewcols); err != nil {
			return nil, err
		}
	}
	if r := in.RecastColumn; r != nil && len(r.ListOfCols) > 0 {
		types := make([]dataset.DType, len(r.ListOfDtypes))
		for i, s := range r.ListOfDtypes {
			if types[i], err = dataset.ParseDType(s); err != nil {
				return nil, err
			}
		}
		if ds, err = ds.Recast(r.ListOfCols, types); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// Step is one function call inside a stage block, e.g.
// quality_checker.duplicate_detection or
// transformers.numerical_mathops.feature_transformation.
type Step struct {
	Group string
	Name  string
	Args  map[string]any
}

// Path is the dotted location of the step in the pipeline file.
func (s Step) Path(stage string) string {
	if s.Group != "" {
		return stage + "." + s.Group + "." + s.Name
	}
	return stage + "." + s.Name
}

// Stage is a stage block with its steps in declaration order.
type Stage struct {
	Name  string
	Args  map[string]any
	Steps []Step
}

// Pipeline is a loaded pipeline description.
type Pipeline struct {
	Path              string
	Input             InputDataset
	WriteIntermediate *Location
	WriteMain         *Location
	WriteStats        *Location
	Stages            []Stage

	keys []string
	raw  map[string]any
}

// Stage returns the named stage block.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Keys returns the top level keys in file order.
func (p *Pipeline) Keys() []string {
	return append([]string(nil), p.keys...)
}
