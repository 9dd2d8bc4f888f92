package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Detection types for invalidEntries_detection.
const (
	DetectAuto   = "auto"
	DetectManual = "manual"
	DetectBoth   = "both"
)

// Output modes shared by treatments that can keep the original column.
const (
	OutputReplace = "replace"
	OutputAppend  = "append"
)

// InvalidEntriesConfig configures invalidEntries_detection.
type InvalidEntriesConfig struct {
	stage.Columns  `mapstructure:",squash"`
	DetectionType  string             `mapstructure:"detection_type"`
	InvalidEntries dataset.ColumnList `mapstructure:"invalid_entries"`
	ValidEntries   dataset.ColumnList `mapstructure:"valid_entries"`
	PartialMatch   bool               `mapstructure:"partial_match"`
	Treatment      bool               `mapstructure:"treatment"`
	OutputMode     string             `mapstructure:"output_mode"`
}

// DefaultInvalidEntriesConfig runs the automatic detectors on every column.
func DefaultInvalidEntriesConfig() InvalidEntriesConfig {
	return InvalidEntriesConfig{
		Columns:       stage.AllColumns(),
		DetectionType: DetectAuto,
		OutputMode:    OutputReplace,
	}
}

// nullTokens are values commonly used in place of a real null.
var nullTokens = map[string]bool{
	"":            true,
	"nan":         true,
	"null":        true,
	"na":          true,
	"n/a":         true,
	"inf":         true,
	"-inf":        true,
	"none":        true,
	"nil":         true,
	"undefined":   true,
	"not defined": true,
	"blank":       true,
	"unknown":     true,
	"?":           true,
	"-":           true,
}

// AutoInvalid reports whether s looks like a placeholder rather than data:
// a null token, a run of one repeated character, only punctuation, or a
// run of consecutive digits such as 1234 or 98765.
func AutoInvalid(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if nullTokens[t] {
		return true
	}
	runes := []rune(t)
	if len(runes) >= 3 {
		same := true
		for _, r := range runes[1:] {
			if r != runes[0] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	special := true
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			special = false
			break
		}
	}
	if special {
		return true
	}
	return sequential(runes)
}

func sequential(runes []rune) bool {
	if len(runes) < 4 {
		return false
	}
	step := runes[1] - runes[0]
	if step != 1 && step != -1 {
		return false
	}
	for i, r := range runes {
		if r < '0' || r > '9' {
			return false
		}
		if i > 0 && r-runes[i-1] != step {
			return false
		}
	}
	return true
}

type matcher struct {
	auto    bool
	invalid []*regexp.Regexp
	valid   []*regexp.Regexp
}

func compileEntries(entries []string, partial bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(entries))
	for _, e := range entries {
		expr := e
		if !partial {
			expr = "^(?:" + e + ")$"
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid entry pattern %q: %w", e, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func newMatcher(cfg InvalidEntriesConfig) (*matcher, error) {
	m := &matcher{}
	switch cfg.DetectionType {
	case DetectAuto:
		m.auto = true
	case DetectBoth:
		m.auto = true
		fallthrough
	case DetectManual:
		var err error
		if m.invalid, err = compileEntries(cfg.InvalidEntries, cfg.PartialMatch); err != nil {
			return nil, err
		}
		if m.valid, err = compileEntries(cfg.ValidEntries, cfg.PartialMatch); err != nil {
			return nil, err
		}
		if cfg.DetectionType == DetectManual && len(m.invalid) == 0 && len(m.valid) == 0 {
			return nil, fmt.Errorf("manual detection requires invalid_entries or valid_entries")
		}
	default:
		return nil, fmt.Errorf("invalid detection_type %q (want auto, manual or both)", cfg.DetectionType)
	}
	return m, nil
}

// match applies the detectors. The automatic ones only run on text columns.
// With valid_entries, anything matching no valid pattern is invalid.
func (m *matcher) match(s string, text bool) bool {
	if m.auto && text && AutoInvalid(s) {
		return true
	}
	for _, re := range m.invalid {
		if re.MatchString(s) {
			return true
		}
	}
	if len(m.valid) > 0 {
		for _, re := range m.valid {
			if re.MatchString(s) {
				return false
			}
		}
		return true
	}
	return false
}

// InvalidEntries finds placeholder values in the selected columns. Timestamp
// and boolean columns are never checked. Treatment
// replaces them with null, in place or in a new <col>_invalid column.
func (c *Checker) InvalidEntries(ds *dataset.Dataset, cfg InvalidEntriesConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	if cfg.OutputMode != OutputReplace && cfg.OutputMode != OutputAppend {
		return nil, nil, fmt.Errorf("invalid output_mode %q (want replace or append)", cfg.OutputMode)
	}
	m, err := newMatcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	names, err := cfg.Resolve(ds, dataset.AnyKind)
	if err != nil {
		return nil, nil, err
	}

	out := ds
	rows := make([][]any, 0, len(names))
	for _, n := range names {
		col, _ := ds.Column(n)
		found := make(map[string]bool)
		count := 0
		values := make([]any, len(col.Values))
		for i, v := range col.Values {
			values[i] = v
			if v == nil || col.Type == dataset.Timestamp || col.Type == dataset.Boolean {
				continue
			}
			s := dataset.FormatValue(v)
			if m.match(s, col.Type == dataset.String) {
				found[s] = true
				count++
				values[i] = nil
			}
		}
		entries := make([]string, 0, len(found))
		for s := range found {
			entries = append(entries, s)
		}
		sort.Strings(entries)
		rows = append(rows, []any{n, strings.Join(entries, "|"), int64(count), share(count, ds.NumRows())})

		if !cfg.Treatment {
			continue
		}
		name := n
		if cfg.OutputMode == OutputAppend {
			name = n + "_invalid"
		}
		if out, err = out.WithColumn(dataset.NewColumn(name, col.Type, values)); err != nil {
			return nil, nil, err
		}
	}
	report, err := dataset.FromRows(
		[]string{"attribute", "invalid_entries", "invalid_count", "invalid_pct"},
		[]dataset.DType{dataset.String, dataset.String, dataset.Integer, dataset.Double},
		rows)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Debug("invalid entries checked", "columns", len(names), "max_pct", maxPct(rows))
	return out, report, nil
}

func maxPct(rows [][]any) float64 {
	best := 0.0
	for _, r := range rows {
		if f, ok := r[3].(float64); ok && f > best {
			best = f
		}
	}
	return stats.Round(best, 4)
}
