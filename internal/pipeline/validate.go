package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/association"
	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/drift"
	"github.com/leapstack-labs/leapdq/internal/quality"
	"github.com/leapstack-labs/leapdq/internal/report"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/transform"
)

// ValidationError is one problem found in a pipeline file.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

type validator struct {
	errs []error
}

func (v *validator) add(path, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate reports every problem in the pipeline at once. The returned
// error joins *ValidationError values.
func (p *Pipeline) Validate() error {
	v := &validator{}

	for _, key := range p.keys {
		switch {
		case IsStage(key), key == InputDatasetKey,
			key == WriteIntermediateKey, key == WriteMainKey, key == WriteStatsKey:
		default:
			v.add(key, "unknown key")
		}
	}

	if _, ok := p.raw[InputDatasetKey]; !ok {
		v.add(InputDatasetKey, "is required")
	} else {
		v.input(InputDatasetKey, p.Input)
	}

	writes := []struct {
		key string
		loc *Location
	}{
		{WriteIntermediateKey, p.WriteIntermediate},
		{WriteMainKey, p.WriteMain},
		{WriteStatsKey, p.WriteStats},
	}
	for _, w := range writes {
		if w.loc != nil {
			v.location(w.key, *w.loc, true)
		}
	}

	for _, st := range p.Stages {
		v.stage(st)
	}
	return errors.Join(v.errs...)
}

func (v *validator) input(path string, in InputDataset) {
	v.location(path+".read_dataset", in.ReadDataset, false)
	if r := in.RenameColumn; r != nil && len(r.ListOfCols) != len(r.ListOfNewcols) {
		v.add(path+".rename_column", "list_of_cols has %d names but list_of_newcols has %d", len(r.ListOfCols), len(r.ListOfNewcols))
	}
	if r := in.RecastColumn; r != nil {
		if len(r.ListOfCols) != len(r.ListOfDtypes) {
			v.add(path+".recast_column", "list_of_cols has %d names but list_of_dtypes has %d", len(r.ListOfCols), len(r.ListOfDtypes))
		}
		for _, t := range r.ListOfDtypes {
			if _, err := dataset.ParseDType(t); err != nil {
				v.add(path+".recast_column.list_of_dtypes", "%v", err)
			}
		}
	}
}

func (v *validator) location(path string, loc Location, write bool) {
	switch {
	case loc.FileType == "":
		v.add(path+".file_type", "is required")
	case !dataio.IsRegistered(loc.FileType):
		v.add(path+".file_type", "unknown file type %q (available: %s)", loc.FileType, strings.Join(dataio.Formats(), ", "))
	case dataio.IsFileFormat(loc.FileType) && loc.FilePath == "":
		v.add(path+".file_path", "is required for %s", loc.FileType)
	}
	if write {
		if _, err := loc.Options().Mode(); err != nil {
			v.add(path+".file_configs.mode", "%v", err)
		}
	}
}

func (v *validator) stage(st Stage) {
	switch st.Name {
	case StatsGenerator:
		if len(st.Steps) == 0 {
			v.add(st.Name+".metric", "at least one metric is required")
		}
		for _, step := range st.Steps {
			if !stats.IsMetric(step.Name) {
				v.add(st.Name+".metric", "unknown metric %q (available: %s)", step.Name, strings.Join(stats.Metrics, ", "))
			}
		}
	case QualityChecker:
		v.names(st, quality.Checks)
	case AssociationEvaluator:
		for _, step := range st.Steps {
			if step.Name == association.VariableClustering {
				v.add(step.Path(st.Name), "%v", association.ErrClusteringUnsupported)
			}
		}
		v.names(st, append(slices.Clone(association.Evaluations), association.VariableClustering))
	case DriftDetector:
		v.names(st, drift.Functions)
		for _, step := range st.Steps {
			v.drift(st.Name, step)
		}
	case ReportPreprocessing:
		v.names(st, report.Functions)
	case Transformers:
		for _, step := range st.Steps {
			if _, ok := transform.Groups[step.Group]; !ok {
				v.add(st.Name+"."+step.Group, "unknown transformer group (available: %s)", strings.Join(transform.GroupNames(), ", "))
				continue
			}
			if !transform.IsFunction(step.Group, step.Name) {
				v.add(step.Path(st.Name), "unknown function (available: %s)", strings.Join(transform.Groups[step.Group], ", "))
			}
		}
	}
}

func (v *validator) names(st Stage, known []string) {
	for _, step := range st.Steps {
		if !slices.Contains(known, step.Name) {
			v.add(step.Path(st.Name), "unknown function (available: %s)", strings.Join(known, ", "))
		}
	}
}

// drift checks the parts of drift_detector that can be judged without data.
func (v *validator) drift(stageName string, step Step) {
	path := step.Path(stageName)
	decoder := StepDecoder(step.Args)
	switch step.Name {
	case drift.DriftStatistics:
		args := struct {
			Configs drift.StatisticsConfigs `mapstructure:"configs"`
		}{Configs: drift.DefaultStatisticsConfigs()}
		if err := decoder(&args); err != nil {
			v.add(path+".configs", "%v", err)
			return
		}
		if _, err := drift.ParseMethods(args.Configs.MethodType); err != nil {
			v.add(path+".configs.method_type", "%v", err)
		}
		if !args.Configs.PreExistingSource {
			v.nested(path, "source_dataset", step.Args, true)
		}
	case drift.StabilityIndexFn, drift.FeatureStabilityFn:
		args := struct {
			Configs drift.StabilityConfigs `mapstructure:"configs"`
		}{Configs: drift.DefaultStabilityConfigs()}
		if err := decoder(&args); err != nil {
			v.add(path+".configs", "%v", err)
			return
		}
		if err := args.Configs.MetricWeightages.Validate(); err != nil {
			v.add(path+".configs.metric_weightages", "%v", err)
		}
		if step.Name == drift.FeatureStabilityFn && len(args.Configs.AttributeTransformation) == 0 {
			v.add(path+".configs.attribute_transformation", "is required")
		}
		if step.Name == drift.StabilityIndexFn {
			for i := 1; ; i++ {
				key := fmt.Sprintf("dataset%d", i)
				if _, ok := step.Args[key]; !ok {
					break
				}
				v.nested(path, key, step.Args, true)
			}
		}
	}
}

func (v *validator) nested(path, key string, args map[string]any, required bool) {
	raw, ok := args[key]
	if !ok {
		if required {
			v.add(path+"."+key, "is required")
		}
		return
	}
	in, err := DecodeInput(raw)
	if err != nil {
		v.add(path+"."+key, "%v", err)
		return
	}
	v.input(path+"."+key, in)
}
