package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// All is the column list sentinel that selects every eligible column.
const All = "all"

// ErrNoColumns is returned by Resolve when nothing is left to analyse.
var ErrNoColumns = errors.New("no columns left after applying drop_cols")

// ColumnList is a column selector. It is written in configuration either as
// a list, as a pipe-delimited string ("a|b"), or as the sentinel "all".
type ColumnList []string

// SplitList splits a pipe-delimited list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseColumnList converts a decoded configuration value into a ColumnList.
func ParseColumnList(v any) (ColumnList, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case ColumnList:
		return x, nil
	case string:
		return ColumnList(SplitList(x)), nil
	case []string:
		return normalize(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				s = FormatValue(e)
			}
			out = append(out, s)
		}
		return normalize(out), nil
	default:
		return nil, fmt.Errorf("column list must be a list or a pipe-delimited string, got %T", v)
	}
}

func normalize(in []string) ColumnList {
	out := make(ColumnList, 0, len(in))
	for _, s := range in {
		out = append(out, SplitList(s)...)
	}
	return out
}

// IsAll reports whether the list is the "all" sentinel.
func (l ColumnList) IsAll() bool {
	return len(l) == 1 && strings.EqualFold(l[0], All)
}

// Kind restricts which columns a selector resolves to.
type Kind int

// Column kinds.
const (
	AnyKind Kind = iota
	NumericKind
	CategoricalKind
	// DiscreteKind is categorical plus integer columns.
	DiscreteKind
)

func (k Kind) accepts(t DType) bool {
	switch k {
	case NumericKind:
		return t.IsNumeric()
	case CategoricalKind:
		return t == String || t == Boolean
	case DiscreteKind:
		return t == String || t == Boolean || t == Integer
	default:
		return true
	}
}

func (k Kind) String() string {
	switch k {
	case NumericKind:
		return "numerical"
	case CategoricalKind:
		return "categorical"
	case DiscreteKind:
		return "discrete"
	default:
		return "any"
	}
}

// Resolve expands a column list against the dataset. The "all" sentinel (or
// an empty list) expands to every column of the requested kind. Names are
// de-duplicated in order and drop is applied last. Explicitly named columns
// must exist and be of the requested kind.
func (d *Dataset) Resolve(list, drop ColumnList, kind Kind) ([]string, error) {
	var candidates []string
	if len(list) == 0 || list.IsAll() {
		for _, c := range d.cols {
			if kind.accepts(c.Type) {
				candidates = append(candidates, c.Name)
			}
		}
	} else {
		var invalid []string
		for _, n := range list {
			c, ok := d.Column(n)
			if !ok || !kind.accepts(c.Type) {
				invalid = append(invalid, n)
				continue
			}
			candidates = append(candidates, n)
		}
		if len(invalid) > 0 {
			return nil, &UnknownColumnsError{Columns: invalid}
		}
	}

	dropSet := make(map[string]bool, len(drop))
	for _, n := range drop {
		dropSet[n] = true
	}
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, n := range candidates {
		if dropSet[n] || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, ErrNoColumns
	}
	return out, nil
}

// NumericColumns returns the names of numeric columns.
func (d *Dataset) NumericColumns() []string {
	var out []string
	for _, c := range d.cols {
		if c.Type.IsNumeric() {
			out = append(out, c.Name)
		}
	}
	return out
}

// CategoricalColumns returns the names of string and boolean columns.
func (d *Dataset) CategoricalColumns() []string {
	var out []string
	for _, c := range d.cols {
		if CategoricalKind.accepts(c.Type) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Floats returns the non-null numeric values of a column.
func (c *Column) Floats() []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if f, ok := ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// Strings returns the values rendered as text, nil for nulls.
func (c *Column) Strings() []*string {
	out := make([]*string, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		s := FormatValue(v)
		out[i] = &s
	}
	return out
}
