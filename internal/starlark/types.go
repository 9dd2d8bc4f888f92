// Package starlark evaluates the user supplied expressions of the
// numerical_expression transformer and of feature stability estimation.
//
// Expressions are Starlark expressions over column (or attribute) names with
// the functions of the Starlark math module available unqualified, so
// "log(income) / sqrt(age)" and "math.log(income)" are both valid.
package starlark

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a dataset value to a Starlark value.
// Supported types: nil, string, int, int64, float64, bool, time.Time.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case time.Time:
		return starlark.Float(float64(val.UnixNano()) / 1e9), nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool or nil.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return float64(val.Float()), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	default:
		return nil, fmt.Errorf("expression returned unsupported %s value", v.Type())
	}
}

// ToFloat converts a numeric Starlark value to float64.
func ToFloat(v starlark.Value) (float64, bool) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), true
	case starlark.Int:
		return float64(val.Float()), true
	case starlark.Bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
