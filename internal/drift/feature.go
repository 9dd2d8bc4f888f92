package drift

import (
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/starlark"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// Transformation is a derived feature g(X1..Xn) over attributes whose
// stability metrics are known.
type Transformation struct {
	Attributes []string
	Expr       string
}

// ParseTransformation builds a Transformation from an attribute_transformation
// entry such as "X|Y": "X * Y".
func ParseTransformation(key, expr string) Transformation {
	return Transformation{Attributes: dataset.SplitList(key), Expr: expr}
}

// FeatureStability estimates the stability index of derived features without
// reading historical data. For every period the mean and variance of g are
// approximated from the attribute statistics:
//
//	mean ≈ g(μ) + ½ Σ σi² ∂²g/∂xi²(μ)
//	var  ≈ Σ σi² (∂g/∂xi(μ))²
//
// Kurtosis cannot be estimated, so the index is reported as a range with the
// kurtosis score at its lowest (0) and highest (4) values.
func FeatureStability(history []MetricRecord, transformations []Transformation, w Weights, threshold float64) (*dataset.Dataset, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	type key struct {
		idx  int
		attr string
	}
	byKey := make(map[key]MetricRecord, len(history))
	idxSet := make(map[int]bool)
	for _, r := range history {
		byKey[key{r.Idx, r.Attribute}] = r
		idxSet[r.Idx] = true
	}
	periods := make([]int, 0, len(idxSet))
	for i := range idxSet {
		periods = append(periods, i)
	}
	sort.Ints(periods)

	rows := make([][]any, 0, len(transformations))
	for _, tr := range transformations {
		e, err := starlark.Compile(tr.Expr, tr.Attributes)
		if err != nil {
			return nil, err
		}
		thread := starlark.NewThread(tr.Expr)
		g := func(xs []float64) (float64, error) {
			return e.CallFloat(thread, xs...)
		}

		means := make([]float64, 0, len(periods))
		stddevs := make([]float64, 0, len(periods))
		for _, idx := range periods {
			mu := make([]float64, len(tr.Attributes))
			sigma := make([]float64, len(tr.Attributes))
			for i, a := range tr.Attributes {
				r, ok := byKey[key{idx, a}]
				if !ok {
					return nil, fmt.Errorf("invalid input for attribute_stats: %q has no statistics for period %d", a, idx)
				}
				mu[i], sigma[i] = r.Mean, r.Stddev
			}
			m, v, err := estimate(g, mu, sigma)
			if err != nil {
				return nil, err
			}
			means = append(means, m)
			stddevs = append(stddevs, math.Sqrt(v))
		}

		meanCV, stdCV := CV(means), CV(stddevs)
		meanSI, stdSI := ScoreCV(meanCV), ScoreCV(stdCV)
		lower := weightedIndex([]any{meanSI, stdSI}, []float64{w.Mean, w.Stddev})
		var upper any
		if l, ok := lower.(float64); ok {
			upper = stats.Round(l+4*w.Kurtosis, 4)
		}
		rows = append(rows, []any{tr.Expr, meanCV, stdCV, meanSI, stdSI, lower, upper, flag(lower, threshold), flag(upper, threshold)})
	}

	return dataset.FromRows(
		[]string{"feature_formula", "mean_cv", "stddev_cv", "mean_si", "stddev_si",
			"stability_index_lower_bound", "stability_index_upper_bound", "flagged_lower", "flagged_upper"},
		[]dataset.DType{dataset.String, dataset.Double, dataset.Double, dataset.Integer, dataset.Integer,
			dataset.Double, dataset.Double, dataset.Integer, dataset.Integer},
		rows,
	)
}

// estimate applies the second order delta method to g at mu. Derivatives are
// taken by finite differences with a step relative to mu. When g is not
// defined on one side of mu, the one sided difference on the other is used.
func estimate(g func([]float64) (float64, error), mu, sigma []float64) (mean, variance float64, err error) {
	g0, err := g(mu)
	if err != nil {
		return 0, 0, err
	}
	mean = g0
	x := make([]float64, len(mu))
	at := func(i int, v float64) (float64, error) {
		copy(x, mu)
		x[i] = v
		y, err := g(x)
		if err == nil && (math.IsNaN(y) || math.IsInf(y, 0)) {
			err = fmt.Errorf("%v is outside the domain", v)
		}
		return y, err
	}
	for i := range mu {
		h := 1e-3 * math.Abs(mu[i])
		if h == 0 {
			h = 1e-3
		}

		var first, second float64
		up, upErr := at(i, mu[i]+h)
		down, downErr := at(i, mu[i]-h)
		switch {
		case upErr == nil && downErr == nil:
			first = (up - down) / (2 * h)
			second = (up - 2*g0 + down) / (h * h)
		case upErr == nil:
			up2, err := at(i, mu[i]+2*h)
			if err != nil {
				return 0, 0, err
			}
			first = (up - g0) / h
			second = (up2 - 2*up + g0) / (h * h)
		case downErr == nil:
			down2, err := at(i, mu[i]-2*h)
			if err != nil {
				return 0, 0, err
			}
			first = (g0 - down) / h
			second = (g0 - 2*down + down2) / (h * h)
		default:
			return 0, 0, upErr
		}

		s2 := sigma[i] * sigma[i]
		mean += s2 * second / 2
		variance += s2 * first * first
	}
	return mean, variance, nil
}
