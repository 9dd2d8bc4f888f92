// Package dataset provides the in-memory tabular model that pipeline stages
// read and produce.
//
// A Dataset is an ordered set of equally sized columns. Operations never
// mutate column values in place: they return a new Dataset that shares the
// untouched columns with its parent, so a Dataset can be handed to several
// read-only stages concurrently.
package dataset

import (
	"fmt"
	"strings"
)

// Column is a named, typed vector of values. Null values are nil.
type Column struct {
	Name   string
	Type   DType
	Values []any
}

// NewColumn creates a column. Values must already be of the Go type that
// matches t (string, int64, float64, bool or time.Time) or nil.
func NewColumn(name string, t DType, values []any) *Column {
	return &Column{Name: name, Type: t, Values: values}
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// NullCount returns the number of nil values.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// Dataset is an ordered collection of columns with equal length.
type Dataset struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates a dataset from columns.
// All columns must have the same length and unique names.
func New(cols ...*Column) (*Dataset, error) {
	d := &Dataset{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := d.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if i == 0 {
			d.rows = c.Len()
		} else if c.Len() != d.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, c.Len(), d.rows)
		}
		d.index[c.Name] = i
		d.cols = append(d.cols, c)
	}
	return d, nil
}

// Empty returns a dataset without columns or rows.
func Empty() *Dataset {
	return &Dataset{index: map[string]int{}}
}

// FromRows builds a dataset from row-major values.
func FromRows(names []string, types []DType, rows [][]any) (*Dataset, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("got %d names but %d types", len(names), len(types))
	}
	cols := make([]*Column, len(names))
	for j, name := range names {
		values := make([]any, len(rows))
		for i, row := range rows {
			if len(row) != len(names) {
				return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(names))
			}
			values[i] = Cast(row[j], types[j])
		}
		cols[j] = NewColumn(name, types[j], values)
	}
	return New(cols...)
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	return d.rows
}

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int {
	return len(d.cols)
}

// Columns returns the columns in order. The slice must not be modified.
func (d *Dataset) Columns() []*Column {
	return d.cols
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns a column by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.cols[i], true
}

// Has reports whether the dataset contains a column.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Row returns the values of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.cols))
	for j, c := range d.cols {
		row[j] = c.Values[i]
	}
	return row
}

// Value returns a single cell.
func (d *Dataset) Value(row int, name string) any {
	c, ok := d.Column(name)
	if !ok {
		return nil
	}
	return c.Values[row]
}

// Select returns a dataset with only the named columns, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]*Column, 0, len(names))
	var missing []string
	for _, n := range names {
		c, ok := d.Column(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		cols = append(cols, c)
	}
	if len(missing) > 0 {
		return nil, &UnknownColumnsError{Columns: missing}
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = d.rows
	return out, nil
}

// Drop returns a dataset without the named columns.
func (d *Dataset) Drop(names ...string) (*Dataset, error) {
	drop := make(map[string]bool, len(names))
	var missing []string
	for _, n := range names {
		if !d.Has(n) {
			missing = append(missing, n)
		}
		drop[n] = true
	}
	if len(missing) > 0 {
		return nil, &UnknownColumnsError{Columns: missing}
	}
	cols := make([]*Column, 0, len(d.cols))
	for _, c := range d.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = d.rows
	return out, nil
}

// Rename renames columns pairwise: oldNames[i] becomes newNames[i].
func (d *Dataset) Rename(oldNames, newNames []string) (*Dataset, error) {
	if len(oldNames) != len(newNames) {
		return nil, fmt.Errorf("rename: %d columns but %d new names", len(oldNames), len(newNames))
	}
	mapping := make(map[string]string, len(oldNames))
	var missing []string
	for i, o := range oldNames {
		if !d.Has(o) {
			missing = append(missing, o)
			continue
		}
		mapping[o] = newNames[i]
	}
	if len(missing) > 0 {
		return nil, &UnknownColumnsError{Columns: missing}
	}
	cols := make([]*Column, len(d.cols))
	for i, c := range d.cols {
		if n, ok := mapping[c.Name]; ok {
			cols[i] = &Column{Name: n, Type: c.Type, Values: c.Values}
			continue
		}
		cols[i] = c
	}
	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	out.rows = d.rows
	return out, nil
}

// Recast converts columns to new types. Values that cannot be converted
// become null.
func (d *Dataset) Recast(names []string, types []DType) (*Dataset, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("recast: %d columns but %d types", len(names), len(types))
	}
	out := d
	for i, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, &UnknownColumnsError{Columns: []string{n}}
		}
		var err error
		out, err = out.WithColumn(CastColumn(c, types[i]))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WithColumn returns a dataset where the column with the same name is
// replaced, or the column is appended when no such column exists.
func (d *Dataset) WithColumn(c *Column) (*Dataset, error) {
	if len(d.cols) > 0 && c.Len() != d.rows {
		return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, c.Len(), d.rows)
	}
	cols := make([]*Column, len(d.cols), len(d.cols)+1)
	copy(cols, d.cols)
	if i, ok := d.index[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Filter keeps the rows where keep[i] is true.
func (d *Dataset) Filter(keep []bool) *Dataset {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	cols := make([]*Column, len(d.cols))
	for j, c := range d.cols {
		values := make([]any, 0, n)
		for i, v := range c.Values {
			if keep[i] {
				values = append(values, v)
			}
		}
		cols[j] = &Column{Name: c.Name, Type: c.Type, Values: values}
	}
	out, _ := New(cols...)
	out.rows = n
	return out
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n >= d.rows {
		return d
	}
	keep := make([]bool, d.rows)
	for i := 0; i < n; i++ {
		keep[i] = true
	}
	return d.Filter(keep)
}

// Concat appends the rows of other to d, matching columns by name.
// Columns missing on one side are filled with nulls and mismatched types
// are widened.
func Concat(a, b *Dataset) (*Dataset, error) {
	if a.NumCols() == 0 {
		return b, nil
	}
	if b.NumCols() == 0 {
		return a, nil
	}
	names := a.ColumnNames()
	for _, n := range b.ColumnNames() {
		if !a.Has(n) {
			names = append(names, n)
		}
	}
	cols := make([]*Column, len(names))
	for j, n := range names {
		ca, okA := a.Column(n)
		cb, okB := b.Column(n)
		t := String
		switch {
		case okA && okB:
			t = Widen(ca.Type, cb.Type)
		case okA:
			t = ca.Type
		case okB:
			t = cb.Type
		}
		values := make([]any, 0, a.rows+b.rows)
		values = appendCast(values, ca, okA, a.rows, t)
		values = appendCast(values, cb, okB, b.rows, t)
		cols[j] = NewColumn(n, t, values)
	}
	return New(cols...)
}

func appendCast(dst []any, c *Column, ok bool, rows int, t DType) []any {
	if !ok {
		for i := 0; i < rows; i++ {
			dst = append(dst, nil)
		}
		return dst
	}
	for _, v := range c.Values {
		dst = append(dst, Cast(v, t))
	}
	return dst
}

// String renders a short description used in log lines.
func (d *Dataset) String() string {
	parts := make([]string, len(d.cols))
	for i, c := range d.cols {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return fmt.Sprintf("dataset(%d rows; %s)", d.rows, strings.Join(parts, ", "))
}

// UnknownColumnsError is returned when an operation references columns that
// do not exist.
type UnknownColumnsError struct {
	Columns []string
}

func (e *UnknownColumnsError) Error() string {
	return fmt.Sprintf("invalid input for column(s): %s", strings.Join(e.Columns, ", "))
}
