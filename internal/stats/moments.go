package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, NaN for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// SampleVariance returns the unbiased variance, NaN for fewer than two values.
func SampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := Mean(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return s / float64(len(xs)-1)
}

// SampleStddev returns the unbiased standard deviation.
func SampleStddev(xs []float64) float64 {
	return math.Sqrt(SampleVariance(xs))
}

// PopulationStddev returns the population standard deviation.
func PopulationStddev(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m := Mean(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(xs)))
}

func centralMoments(xs []float64) (m2, m3, m4 float64) {
	m := Mean(xs)
	n := float64(len(xs))
	for _, x := range xs {
		d := x - m
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	return m2 / n, m3 / n, m4 / n
}

// Skewness returns the population skewness (the value Spark's skewness
// aggregate produces). NaN when the variance is zero.
func Skewness(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m2, m3, _ := centralMoments(xs)
	if m2 == 0 {
		return math.NaN()
	}
	return m3 / math.Pow(m2, 1.5)
}

// ExcessKurtosis returns the population excess kurtosis (Spark's kurtosis
// aggregate). NaN when the variance is zero.
func ExcessKurtosis(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m2, _, m4 := centralMoments(xs)
	if m2 == 0 {
		return math.NaN()
	}
	return m4/(m2*m2) - 3
}

// Variation returns the coefficient of variation: population standard
// deviation divided by the mean. NaN values in the input propagate.
func Variation(xs []float64) float64 {
	for _, x := range xs {
		if math.IsNaN(x) {
			return math.NaN()
		}
	}
	m := Mean(xs)
	return PopulationStddev(xs) / m
}

// Sorted returns a sorted copy.
func Sorted(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

// Quantile returns the p-quantile of sorted data as the element at rank
// ceil(p*n), which is what an exact approxQuantile returns. NaN for empty
// input.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Median of unsorted data.
func Median(xs []float64) float64 {
	return Quantile(Sorted(xs), 0.5)
}

// MinMax returns the extremes, NaN for empty input.
func MinMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// Pearson returns the correlation of paired samples.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return math.NaN()
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// Round rounds to n decimal places, keeping NaN.
func Round(x float64, n int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(n))
	return math.Round(x*p) / p
}

// Nullable converts NaN and Inf to nil so results serialize as nulls.
func Nullable(x float64) any {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return x
}
