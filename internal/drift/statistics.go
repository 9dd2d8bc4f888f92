package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Smoothing replaces empty bins so the log based metrics stay finite.
const Smoothing = 0.0001

// StatisticsConfig holds the drift_statistics settings.
type StatisticsConfig struct {
	Methods           []string
	Threshold         float64
	BinMethod         string
	BinSize           int
	PreExistingSource bool
}

// Detector runs the drift_detector computations.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{logger: logger}
}

// Statistics measures the drift of every listed target column against the
// source distribution. Numeric columns are binned with cutoffs fitted on the
// source; categorical values are their own bins.
//
// Without PreExistingSource the binning model and the source frequencies are
// saved to store. With it, they are loaded from store and source may be nil.
// The result has columns [attribute, <methods>..., flagged], flagged rows
// first.
func (d *Detector) Statistics(ctx context.Context, source, target *dataset.Dataset, cols []string, cfg StatisticsConfig, store ModelStore) (*dataset.Dataset, error) {
	if len(cfg.Methods) == 0 {
		return nil, errors.New("drift statistics: no method_type selected")
	}
	model, err := d.sourceModel(ctx, source, target, cols, cfg, store)
	if err != nil {
		return nil, err
	}

	type result struct {
		attr    string
		metrics []float64
		flagged bool
	}
	results := make([]result, 0, len(cols))

	for _, name := range cols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tc, ok := target.Column(name)
		if !ok {
			return nil, &dataset.UnknownColumnsError{Columns: []string{name}}
		}

		var p Frequencies
		if cfg.PreExistingSource {
			p, err = store.LoadFrequencies(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("load source frequencies for %q: %w", name, err)
			}
		} else {
			sc, ok := source.Column(name)
			if !ok {
				return nil, fmt.Errorf("source dataset: %w", &dataset.UnknownColumnsError{Columns: []string{name}})
			}
			if p, err = model.Frequencies(sc); err != nil {
				return nil, err
			}
			if err := store.SaveFrequencies(ctx, name, p); err != nil {
				return nil, fmt.Errorf("save source frequencies for %q: %w", name, err)
			}
		}
		q, err := model.Frequencies(tc)
		if err != nil {
			return nil, err
		}

		pv, qv := Align(p, q)
		r := result{attr: name}
		for _, m := range cfg.Methods {
			v := stats.Round(distances[m](pv, qv), 4)
			r.metrics = append(r.metrics, v)
			if v > cfg.Threshold {
				r.flagged = true
			}
		}
		d.logger.Debug("drift computed", "attribute", name, "bins", len(pv), "flagged", r.flagged)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].flagged && !results[j].flagged
	})

	names := append([]string{"attribute"}, cfg.Methods...)
	names = append(names, "flagged")
	types := []dataset.DType{dataset.String}
	for range cfg.Methods {
		types = append(types, dataset.Double)
	}
	types = append(types, dataset.Integer)

	rows := make([][]any, len(results))
	for i, r := range results {
		row := []any{r.attr}
		for _, v := range r.metrics {
			row = append(row, v)
		}
		flag := int64(0)
		if r.flagged {
			flag = 1
		}
		rows[i] = append(row, flag)
	}
	return dataset.FromRows(names, types, rows)
}

func (d *Detector) sourceModel(ctx context.Context, source, target *dataset.Dataset, cols []string, cfg StatisticsConfig, store ModelStore) (*Model, error) {
	if cfg.PreExistingSource {
		m, err := store.LoadModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("load binning model: %w", err)
		}
		d.logger.Debug("loaded binning model", "attributes", len(m.Cutoffs))
		return m, nil
	}
	if source == nil {
		return nil, errors.New("drift statistics: source_dataset is required unless pre_existing_source is true")
	}

	m := &Model{BinMethod: cfg.BinMethod, BinSize: cfg.BinSize, Cutoffs: make(map[string][]float64)}
	for _, name := range cols {
		tc, ok := target.Column(name)
		if !ok || !tc.Type.IsNumeric() {
			continue
		}
		sc, ok := source.Column(name)
		if !ok {
			return nil, fmt.Errorf("source dataset: %w", &dataset.UnknownColumnsError{Columns: []string{name}})
		}
		cuts, err := stats.Cutoffs(cfg.BinMethod, cfg.BinSize, sc.Floats())
		if err != nil {
			return nil, fmt.Errorf("binning %q: %w", name, err)
		}
		m.Cutoffs[name] = cuts
	}
	if err := store.SaveModel(ctx, m); err != nil {
		return nil, fmt.Errorf("save binning model: %w", err)
	}
	return m, nil
}

// Frequencies maps a bin key to its share of rows.
type Frequencies map[string]float64

// Frequencies bins c with the model and returns the share of rows per bin.
// Shares are over all rows, but the null bin "-1" is kept with a share of 0
// so that only the non-null distribution is compared.
func (m *Model) Frequencies(c *dataset.Column) (Frequencies, error) {
	n := c.Len()
	out := make(Frequencies)
	if n == 0 {
		return out, nil
	}
	counts := make(map[string]int)
	if cuts, ok := m.Cutoffs[c.Name]; ok {
		for _, b := range stats.BinColumn(cuts, c.Values) {
			counts[strconv.Itoa(b)]++
		}
	} else {
		if c.Type.IsNumeric() {
			return nil, fmt.Errorf("no binning model for numerical attribute %q", c.Name)
		}
		for _, v := range c.Values {
			if v == nil {
				counts[strconv.Itoa(stats.NullBin)]++
				continue
			}
			counts[dataset.FormatValue(v)]++
		}
	}
	nullKey := strconv.Itoa(stats.NullBin)
	for k, cnt := range counts {
		if k == nullKey {
			out[k] = 0
			continue
		}
		out[k] = float64(cnt) / float64(n)
	}
	return out, nil
}

// Align returns the probability vectors of p and q over the union of their
// bins in bin order. Missing and zero shares are replaced by Smoothing.
func Align(p, q Frequencies) ([]float64, []float64) {
	keySet := make(map[string]bool, len(p)+len(q))
	for k := range p {
		keySet[k] = true
	}
	for k := range q {
		keySet[k] = true
	}
	keys := make([]string, 0, len(keySet))
	numeric := true
	for k := range keySet {
		keys = append(keys, k)
		if _, err := strconv.ParseFloat(k, 64); err != nil {
			numeric = false
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if numeric {
			a, _ := strconv.ParseFloat(keys[i], 64)
			b, _ := strconv.ParseFloat(keys[j], 64)
			return a < b
		}
		return keys[i] < keys[j]
	})

	pv := make([]float64, len(keys))
	qv := make([]float64, len(keys))
	for i, k := range keys {
		pv[i] = smooth(p[k])
		qv[i] = smooth(q[k])
	}
	return pv, qv
}

func smooth(x float64) float64 {
	if x == 0 {
		return Smoothing
	}
	return x
}
