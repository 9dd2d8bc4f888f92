package stats

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Binning methods.
const (
	EqualRange     = "equal_range"
	EqualFrequency = "equal_frequency"
)

// NullBin is the bin assigned to missing values.
const NullBin = -1

// Cutoffs computes the bin_size-1 inner boundaries of xs. Values at or below
// cutoffs[0] fall into bin 1, values above the last cutoff into bin_size.
func Cutoffs(method string, binSize int, xs []float64) ([]float64, error) {
	if binSize < 2 {
		return nil, fmt.Errorf("bin_size must be at least 2, got %d", binSize)
	}
	if len(xs) == 0 {
		return []float64{}, nil
	}
	cuts := make([]float64, 0, binSize-1)
	switch method {
	case EqualRange:
		lo, hi := MinMax(xs)
		width := (hi - lo) / float64(binSize)
		for k := 1; k < binSize; k++ {
			cuts = append(cuts, lo+float64(k)*width)
		}
	case EqualFrequency:
		sorted := Sorted(xs)
		for k := 1; k < binSize; k++ {
			cuts = append(cuts, Quantile(sorted, float64(k)/float64(binSize)))
		}
	default:
		return nil, fmt.Errorf("unknown bin_method %q (want %s or %s)", method, EqualRange, EqualFrequency)
	}
	return cuts, nil
}

// AssignBin maps a value to its 1-based bin.
func AssignBin(cuts []float64, x float64) int {
	if math.IsNaN(x) {
		return NullBin
	}
	for i, c := range cuts {
		if x <= c {
			return i + 1
		}
	}
	return len(cuts) + 1
}

// BinColumn bins every value of vals; missing values get NullBin.
func BinColumn(cuts []float64, vals []any) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		f, ok := dataset.ToFloat(v)
		if !ok {
			out[i] = NullBin
			continue
		}
		out[i] = AssignBin(cuts, f)
	}
	return out
}

// BinLabel renders bin i as the interval it covers, e.g. "10.5-20.0".
// The first and last bins are open ended.
func BinLabel(cuts []float64, bin int) string {
	switch {
	case bin == NullBin:
		return ""
	case len(cuts) == 0:
		return "all"
	case bin == 1:
		return fmt.Sprintf("<= %s", formatCut(cuts[0]))
	case bin > len(cuts):
		return fmt.Sprintf("> %s", formatCut(cuts[len(cuts)-1]))
	default:
		return fmt.Sprintf("%s-%s", formatCut(cuts[bin-2]), formatCut(cuts[bin-1]))
	}
}

func formatCut(x float64) string {
	return fmt.Sprintf("%g", Round(x, 4))
}
