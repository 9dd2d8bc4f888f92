package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCutoffs(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	cuts, err := Cutoffs(EqualRange, 5, xs)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6, 8}, cuts)

	cuts, err = Cutoffs(EqualFrequency, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, cuts)

	_, err = Cutoffs("quantum", 5, xs)
	assert.ErrorContains(t, err, "unknown bin_method")

	_, err = Cutoffs(EqualRange, 1, xs)
	assert.Error(t, err)
}

func TestBinColumn(t *testing.T) {
	cuts := []float64{2, 4}
	got := BinColumn(cuts, []any{1.0, 2.0, int64(3), 4.5, nil, "x"})
	assert.Equal(t, []int{1, 1, 2, 3, NullBin, NullBin}, got)
}

func TestBinLabel(t *testing.T) {
	cuts := []float64{2, 4.25}
	assert.Equal(t, "<= 2", BinLabel(cuts, 1))
	assert.Equal(t, "2-4.25", BinLabel(cuts, 2))
	assert.Equal(t, "> 4.25", BinLabel(cuts, 3))
	assert.Equal(t, "", BinLabel(cuts, NullBin))
}
