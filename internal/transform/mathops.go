package transform

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// MathConfig configures feature_transformation.
type MathConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	MethodType    string   `mapstructure:"method_type"`
	N             *float64 `mapstructure:"N"`
}

// DefaultMathConfig applies sqrt to every numeric column.
func DefaultMathConfig() MathConfig {
	return MathConfig{
		Columns:    stage.AllColumns(),
		Output:     Output{OutputMode: Replace},
		MethodType: "sqrt",
	}
}

// unary returns NaN for inputs outside the function's domain.
type unary func(x, n float64) float64

func positive(f func(float64) float64) unary {
	return func(x, _ float64) float64 {
		if x <= 0 {
			return math.NaN()
		}
		return f(x)
	}
}

func plain(f func(float64) float64) unary {
	return func(x, _ float64) float64 { return f(x) }
}

var mathOps = map[string]unary{
	"ln":      positive(math.Log),
	"log10":   positive(math.Log10),
	"log2":    positive(math.Log2),
	"exp":     plain(math.Exp),
	"powOf2":  plain(func(x float64) float64 { return math.Pow(2, x) }),
	"powOf10": plain(func(x float64) float64 { return math.Pow(10, x) }),
	"powOfN":  func(x, n float64) float64 { return math.Pow(n, x) },
	"sqrt": func(x, _ float64) float64 {
		if x < 0 {
			return math.NaN()
		}
		return math.Sqrt(x)
	},
	"cbrt":     plain(math.Cbrt),
	"sq":       plain(func(x float64) float64 { return x * x }),
	"cb":       plain(func(x float64) float64 { return x * x * x }),
	"toPowerN": func(x, n float64) float64 { return math.Pow(x, n) },
	"sin":      plain(math.Sin),
	"cos":      plain(math.Cos),
	"tan":      plain(math.Tan),
	"asin":     plain(math.Asin),
	"acos":     plain(math.Acos),
	"atan":     plain(math.Atan),
	"radians":  plain(func(x float64) float64 { return x * math.Pi / 180 }),
	"remainderDivByN": func(x, n float64) float64 {
		if n == 0 {
			return math.NaN()
		}
		return math.Mod(x, n)
	},
	"factorial": plain(factorial),
	"mul_inv": plain(func(x float64) float64 {
		if x == 0 {
			return math.NaN()
		}
		return 1 / x
	}),
	"floor":  plain(math.Floor),
	"ceil":   plain(math.Ceil),
	"roundN": func(x, n float64) float64 { return stats.Round(x, int(n)) },
}

// needsN lists the methods that read N.
var needsN = map[string]bool{"powOfN": true, "toPowerN": true, "remainderDivByN": true, "roundN": true}

// factorial is defined for non-negative integers up to 170.
func factorial(x float64) float64 {
	if x < 0 || x != math.Trunc(x) || x > 170 {
		return math.NaN()
	}
	out := 1.0
	for k := 2.0; k <= x; k++ {
		out *= k
	}
	return out
}

// FeatureTransformation applies method_type to every selected numeric
// column. Results outside the function's domain are null.
func (t *Transformer) FeatureTransformation(ds *dataset.Dataset, cfg MathConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	op, ok := mathOps[cfg.MethodType]
	if !ok {
		return nil, fmt.Errorf("invalid method_type %q", cfg.MethodType)
	}
	var n float64
	switch {
	case cfg.N != nil:
		n = *cfg.N
	case needsN[cfg.MethodType]:
		return nil, fmt.Errorf("method_type %s requires N", cfg.MethodType)
	}
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, err
	}
	out := ds
	for _, name := range names {
		col, _ := ds.Column(name)
		values := mapFloats(col.Values, func(x float64) float64 { return op(x, n) })
		if out, err = cfg.emit(out, name, "_"+cfg.MethodType, dataset.Double, values); err != nil {
			return nil, err
		}
	}
	t.logger.Debug("feature transformation applied", "method", cfg.MethodType, "columns", len(names))
	return out, nil
}

// mapFloats applies f to every non-null value. NaN and Inf results are null.
func mapFloats(in []any, f func(float64) float64) []any {
	out := make([]any, len(in))
	for i, v := range in {
		x, ok := dataset.ToFloat(v)
		if !ok {
			continue
		}
		out[i] = stats.Nullable(f(x))
	}
	return out
}

// BoxCoxConfig configures boxcox_transformation. BoxCoxLambda is a single
// lambda for every column, a list with one lambda per column, or empty to
// pick the lambda that makes each column least skewed.
type BoxCoxConfig struct {
	stage.Columns `mapstructure:",squash"`
	Output        `mapstructure:",squash"`
	BoxCoxLambda  []float64 `mapstructure:"boxcox_lambda"`
}

// lambdaCandidates are tried when no lambda is given.
var lambdaCandidates = []float64{1, -1, 0.5, -0.5, 2, -2, 0.25, -0.25, 3, -3, 4, -4, 5, -5, 0}

func boxcox(x, lambda float64) float64 {
	if lambda == 0 {
		return math.Log(x)
	}
	return (math.Pow(x, lambda) - 1) / lambda
}

// BoxCox applies the Box-Cox power transformation. Every selected column
// must hold only positive values.
func (t *Transformer) BoxCox(ds *dataset.Dataset, cfg BoxCoxConfig) (*dataset.Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	names, err := cfg.Resolve(ds, dataset.NumericKind)
	if err != nil {
		return nil, err
	}
	if len(cfg.BoxCoxLambda) > 1 && len(cfg.BoxCoxLambda) != len(names) {
		return nil, fmt.Errorf("boxcox_lambda has %d values for %d columns", len(cfg.BoxCoxLambda), len(names))
	}
	out := ds
	for j, n := range names {
		col, _ := ds.Column(n)
		xs := col.Floats()
		for _, x := range xs {
			if x <= 0 {
				return nil, fmt.Errorf("column %s has non-positive values", n)
			}
		}
		var lambda float64
		switch len(cfg.BoxCoxLambda) {
		case 0:
			lambda = bestLambda(xs)
		case 1:
			lambda = cfg.BoxCoxLambda[0]
		default:
			lambda = cfg.BoxCoxLambda[j]
		}
		values := mapFloats(col.Values, func(x float64) float64 { return boxcox(x, lambda) })
		if out, err = cfg.emit(out, n, "_bxcx", dataset.Double, values); err != nil {
			return nil, err
		}
		t.logger.Debug("boxcox applied", "column", n, "lambda", lambda)
	}
	return out, nil
}

// bestLambda returns the candidate whose transform has the smallest absolute
// skewness. Earlier candidates win ties.
func bestLambda(xs []float64) float64 {
	best, bestSkew := 1.0, math.Inf(1)
	ys := make([]float64, len(xs))
	for _, l := range lambdaCandidates {
		for i, x := range xs {
			ys[i] = boxcox(x, l)
		}
		s := math.Abs(stats.Skewness(ys))
		if math.IsNaN(s) {
			continue
		}
		if s < bestSkew {
			best, bestSkew = l, s
		}
	}
	return best
}
