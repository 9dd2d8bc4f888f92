package drift

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/storage"
)

// Model is the binning model fitted on the source dataset.
type Model struct {
	BinMethod string
	BinSize   int
	Cutoffs   map[string][]float64
}

// ModelStore persists the source side of drift statistics so that later
// runs can compare new targets without reading the source again.
type ModelStore interface {
	LoadModel(ctx context.Context) (*Model, error)
	SaveModel(ctx context.Context, m *Model) error
	LoadFrequencies(ctx context.Context, attribute string) (Frequencies, error)
	SaveFrequencies(ctx context.Context, attribute string, f Frequencies) error
}

// Tables reads and writes datasets at locations. *storage.Resolver
// implements it, which places the model under the run type root and stages
// s3:// locations through the object store.
type Tables interface {
	Read(ctx context.Context, fileType, location string, opts dataio.Options) (*dataset.Dataset, error)
	Write(ctx context.Context, ds *dataset.Dataset, fileType, location string, opts dataio.Options) error
}

type localTables struct{}

func (localTables) Read(ctx context.Context, fileType, location string, opts dataio.Options) (*dataset.Dataset, error) {
	return dataio.Read(ctx, fileType, location, opts)
}

func (localTables) Write(ctx context.Context, ds *dataset.Dataset, fileType, location string, opts dataio.Options) error {
	return dataio.Write(ctx, ds, fileType, location, opts)
}

// DirStore keeps the model as csv tables under a directory:
//
//	<dir>/attribute_binning            [attribute, bin_method, bin_size, cutoffs]
//	<dir>/frequency_counts/<attribute> [bin, p]
//
// Tables defaults to the local file system.
type DirStore struct {
	Dir    string
	Tables Tables
}

var (
	readOpts  = dataio.Options{"header": true}
	writeOpts = dataio.Options{"header": true, "mode": string(dataio.Overwrite)}
)

func (s DirStore) tables() Tables {
	if s.Tables == nil {
		return localTables{}
	}
	return s.Tables
}

func (s DirStore) modelPath() string {
	return storage.Join(s.Dir, "attribute_binning")
}

func (s DirStore) frequencyPath(attribute string) string {
	return storage.Join(s.Dir, "frequency_counts", attribute)
}

func columns(ds *dataset.Dataset, names ...string) ([]*dataset.Column, error) {
	out := make([]*dataset.Column, len(names))
	var missing []string
	for i, name := range names {
		c, ok := ds.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[i] = c
	}
	if len(missing) > 0 {
		return nil, &dataset.UnknownColumnsError{Columns: missing}
	}
	return out, nil
}

// LoadModel reads the binning model.
func (s DirStore) LoadModel(ctx context.Context) (*Model, error) {
	ds, err := s.tables().Read(ctx, "csv", s.modelPath(), readOpts)
	if err != nil {
		return nil, err
	}
	cols, err := columns(ds, "attribute", "bin_method", "bin_size", "cutoffs")
	if err != nil {
		return nil, fmt.Errorf("attribute_binning: %w", err)
	}
	m := &Model{Cutoffs: make(map[string][]float64)}
	for i := 0; i < ds.NumRows(); i++ {
		attr := dataset.FormatValue(cols[0].Values[i])
		m.BinMethod = dataset.FormatValue(cols[1].Values[i])
		if m.BinSize, err = strconv.Atoi(dataset.FormatValue(cols[2].Values[i])); err != nil {
			return nil, fmt.Errorf("attribute_binning %s: invalid bin_size: %w", attr, err)
		}
		var cuts []float64
		for _, f := range strings.Split(dataset.FormatValue(cols[3].Values[i]), "|") {
			if f == "" {
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("attribute_binning %s: invalid cutoff %q", attr, f)
			}
			cuts = append(cuts, v)
		}
		m.Cutoffs[attr] = cuts
	}
	return m, nil
}

// SaveModel writes the binning model, replacing any previous one.
func (s DirStore) SaveModel(ctx context.Context, m *Model) error {
	attrs := make([]string, 0, len(m.Cutoffs))
	for a := range m.Cutoffs {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	rows := make([][]any, len(attrs))
	for i, a := range attrs {
		cuts := make([]string, len(m.Cutoffs[a]))
		for j, c := range m.Cutoffs[a] {
			cuts[j] = strconv.FormatFloat(c, 'g', -1, 64)
		}
		rows[i] = []any{a, m.BinMethod, int64(m.BinSize), strings.Join(cuts, "|")}
	}
	ds, err := dataset.FromRows(
		[]string{"attribute", "bin_method", "bin_size", "cutoffs"},
		[]dataset.DType{dataset.String, dataset.String, dataset.Integer, dataset.String},
		rows)
	if err != nil {
		return err
	}
	return s.tables().Write(ctx, ds, "csv", s.modelPath(), writeOpts)
}

// LoadFrequencies reads the source frequencies of one attribute.
func (s DirStore) LoadFrequencies(ctx context.Context, attribute string) (Frequencies, error) {
	ds, err := s.tables().Read(ctx, "csv", s.frequencyPath(attribute), readOpts)
	if err != nil {
		return nil, err
	}
	cols, err := columns(ds, "bin", "p")
	if err != nil {
		return nil, err
	}
	out := make(Frequencies, ds.NumRows())
	for i := range cols[0].Values {
		p, ok := dataset.ToFloat(cols[1].Values[i])
		if !ok {
			return nil, fmt.Errorf("frequency_counts/%s row %d: invalid share %v", attribute, i, cols[1].Values[i])
		}
		out[dataset.FormatValue(cols[0].Values[i])] = p
	}
	return out, nil
}

// SaveFrequencies writes the source frequencies of one attribute.
func (s DirStore) SaveFrequencies(ctx context.Context, attribute string, f Frequencies) error {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k, f[k]}
	}
	ds, err := dataset.FromRows([]string{"bin", "p"}, []dataset.DType{dataset.String, dataset.Double}, rows)
	if err != nil {
		return err
	}
	return s.tables().Write(ctx, ds, "csv", s.frequencyPath(attribute), writeOpts)
}
