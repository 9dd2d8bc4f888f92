package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Dataset {
	t.Helper()
	ds, err := FromRows(
		[]string{"id", "age", "income", "city"},
		[]DType{String, Integer, Double, String},
		[][]any{
			{"a", int64(30), 1000.5, "paris"},
			{"b", int64(41), nil, "lyon"},
			{"c", nil, 250.0, "paris"},
		},
	)
	require.NoError(t, err)
	return ds
}

func TestNew_Validation(t *testing.T) {
	_, err := New(NewColumn("a", String, []any{"x"}), NewColumn("a", String, []any{"y"}))
	assert.ErrorContains(t, err, "duplicate column")

	_, err = New(NewColumn("a", String, []any{"x"}), NewColumn("b", String, []any{"y", "z"}))
	assert.ErrorContains(t, err, "has 2 values")
}

func TestDataset_SelectDrop(t *testing.T) {
	ds := sample(t)

	sel, err := ds.Select("income", "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"income", "id"}, sel.ColumnNames())
	assert.Equal(t, 3, sel.NumRows())

	_, err = ds.Select("nope")
	var uce *UnknownColumnsError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, []string{"nope"}, uce.Columns)

	dropped, err := ds.Drop("city", "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "income"}, dropped.ColumnNames())

	// parent is untouched
	assert.Equal(t, 4, ds.NumCols())
}

func TestDataset_Rename(t *testing.T) {
	ds := sample(t)

	out, err := ds.Rename([]string{"age", "city"}, []string{"age_years", "town"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "age_years", "income", "town"}, out.ColumnNames())

	_, err = ds.Rename([]string{"age"}, []string{"a", "b"})
	assert.Error(t, err)

	_, err = ds.Rename([]string{"age"}, []string{"city"})
	assert.ErrorContains(t, err, "duplicate column")
}

func TestDataset_Recast(t *testing.T) {
	ds := sample(t)

	out, err := ds.Recast([]string{"age", "city"}, []DType{Double, Integer})
	require.NoError(t, err)

	age, _ := out.Column("age")
	assert.Equal(t, Double, age.Type)
	assert.Equal(t, []any{30.0, 41.0, nil}, age.Values)

	city, _ := out.Column("city")
	assert.Equal(t, []any{nil, nil, nil}, city.Values, "unparsable values become null")
}

func TestDataset_FilterAndConcat(t *testing.T) {
	ds := sample(t)

	f := ds.Filter([]bool{true, false, true})
	assert.Equal(t, 2, f.NumRows())
	assert.Equal(t, "c", f.Value(1, "id"))

	other, err := FromRows([]string{"id", "age", "extra"}, []DType{String, Double, Boolean},
		[][]any{{"z", 1.5, true}})
	require.NoError(t, err)

	c, err := Concat(ds, other)
	require.NoError(t, err)
	assert.Equal(t, 4, c.NumRows())
	assert.Equal(t, []string{"id", "age", "income", "city", "extra"}, c.ColumnNames())

	age, _ := c.Column("age")
	assert.Equal(t, Double, age.Type)
	assert.Equal(t, 1.5, age.Values[3])

	extra, _ := c.Column("extra")
	assert.Nil(t, extra.Values[0])
	assert.Equal(t, true, extra.Values[3])
}

func TestResolve(t *testing.T) {
	ds := sample(t)

	tests := []struct {
		name    string
		list    ColumnList
		drop    ColumnList
		kind    Kind
		want    []string
		wantErr error
	}{
		{name: "all", list: ColumnList{"all"}, want: []string{"id", "age", "income", "city"}},
		{name: "empty means all", want: []string{"id", "age", "income", "city"}},
		{name: "all numeric", list: ColumnList{"all"}, kind: NumericKind, want: []string{"age", "income"}},
		{name: "all categorical with drop", list: ColumnList{"ALL"}, drop: ColumnList{"id"}, kind: CategoricalKind, want: []string{"city"}},
		{name: "explicit dedupe", list: ColumnList{"city", "age", "city"}, want: []string{"city", "age"}},
		{name: "everything dropped", list: ColumnList{"age"}, drop: ColumnList{"age"}, wantErr: ErrNoColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ds.Resolve(tt.list, tt.drop, tt.kind)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ds.Resolve(ColumnList{"city"}, nil, NumericKind)
	assert.ErrorContains(t, err, "invalid input for column(s): city")
}

func TestParseColumnList(t *testing.T) {
	l, err := ParseColumnList(" a | b|c ")
	require.NoError(t, err)
	assert.Equal(t, ColumnList{"a", "b", "c"}, l)

	l, err = ParseColumnList([]any{"x", "y|z"})
	require.NoError(t, err)
	assert.Equal(t, ColumnList{"x", "y", "z"}, l)

	l, err = ParseColumnList("all")
	require.NoError(t, err)
	assert.True(t, l.IsAll())

	_, err = ParseColumnList(42)
	assert.Error(t, err)
}

func TestInferType(t *testing.T) {
	assert.Equal(t, Integer, InferType([]string{"1", "", "-3"}))
	assert.Equal(t, Double, InferType([]string{"1", "2.5"}))
	assert.Equal(t, Boolean, InferType([]string{"true", "FALSE"}))
	assert.Equal(t, Timestamp, InferType([]string{"2024-01-02", "2024-02-03 10:00:00"}))
	assert.Equal(t, String, InferType([]string{"1", "x"}))
	assert.Equal(t, String, InferType([]string{"", ""}))
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{"int": Integer, "float": Double, "STRING": String, "bool": Boolean, "date": Timestamp} {
		got, err := ParseDType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDType("blob")
	assert.Error(t, err)
}
