// Package drift implements the drift_detector stage: distribution drift
// between a source and a target dataset, the stability index over a history
// of datasets, and stability estimation for derived features.
package drift

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Distance metric names.
const (
	PSI = "PSI"
	JSD = "JSD"
	HD  = "HD"
	KS  = "KS"
)

// Methods lists the metrics in the order they are reported.
var Methods = []string{PSI, JSD, HD, KS}

// DistanceFunc compares two aligned probability vectors.
type DistanceFunc func(p, q []float64) float64

var distances = map[string]DistanceFunc{
	PSI: PopulationStabilityIndex,
	JSD: JensenShannon,
	HD:  Hellinger,
	KS:  KolmogorovSmirnov,
}

// ParseMethods resolves a method_type selector. "all" selects every metric.
func ParseMethods(list dataset.ColumnList) ([]string, error) {
	if len(list) == 0 || list.IsAll() {
		return append([]string(nil), Methods...), nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, m := range list {
		m = strings.ToUpper(strings.TrimSpace(m))
		if _, ok := distances[m]; !ok {
			return nil, fmt.Errorf("invalid method_type %q (want one of %s or all)", m, strings.Join(Methods, ", "))
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// PopulationStabilityIndex returns Σ (p-q)·ln(p/q).
func PopulationStabilityIndex(p, q []float64) float64 {
	var s float64
	for i := range p {
		s += (p[i] - q[i]) * math.Log(p[i]/q[i])
	}
	return s
}

func kl(p, q []float64) float64 {
	var s float64
	for i := range p {
		s += p[i] * math.Log(p[i]/q[i])
	}
	return s
}

// JensenShannon returns the Jensen-Shannon divergence with natural logs.
func JensenShannon(p, q []float64) float64 {
	m := make([]float64, len(p))
	for i := range p {
		m[i] = (p[i] + q[i]) / 2
	}
	return (kl(p, m) + kl(q, m)) / 2
}

// Hellinger returns the Hellinger distance.
func Hellinger(p, q []float64) float64 {
	var s float64
	for i := range p {
		d := math.Sqrt(p[i]) - math.Sqrt(q[i])
		s += d * d
	}
	return math.Sqrt(s / 2)
}

// KolmogorovSmirnov returns the largest gap between the two cumulative
// distributions.
func KolmogorovSmirnov(p, q []float64) float64 {
	var cp, cq, best float64
	for i := range p {
		cp += p[i]
		cq += q[i]
		if d := math.Abs(cp - cq); d > best {
			best = d
		}
	}
	return best
}
