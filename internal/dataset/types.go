package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DType is the logical type of a column.
type DType string

// Supported column types.
const (
	String    DType = "string"
	Integer   DType = "integer"
	Double    DType = "double"
	Boolean   DType = "boolean"
	Timestamp DType = "timestamp"
)

// IsNumeric reports whether values of this type can be used in numeric
// analysis.
func (t DType) IsNumeric() bool {
	return t == Integer || t == Double
}

// ParseDType parses a type name. Spark style aliases are accepted.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "varchar", "text", "categorical":
		return String, nil
	case "int", "integer", "long", "bigint", "smallint", "tinyint", "int32", "int64":
		return Integer, nil
	case "float", "double", "decimal", "numeric", "real", "float64", "numerical":
		return Double, nil
	case "bool", "boolean":
		return Boolean, nil
	case "timestamp", "date", "datetime":
		return Timestamp, nil
	default:
		return "", fmt.Errorf("unknown data type %q", s)
	}
}

// Widen returns the narrowest type both a and b can be represented as.
func Widen(a, b DType) DType {
	if a == b {
		return a
	}
	if a.IsNumeric() && b.IsNumeric() {
		return Double
	}
	return String
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp layouts leapdq reads and writes.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Cast converts v to the Go representation of t. It returns nil when the
// conversion is not possible.
func Cast(v any, t DType) any {
	if v == nil {
		return nil
	}
	switch t {
	case String:
		return FormatValue(v)
	case Integer:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil
			}
			return int64(x)
		case float32:
			return int64(x)
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		case string:
			s := strings.TrimSpace(x)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return int64(f)
			}
			return nil
		}
	case Double:
		f, ok := ToFloat(v)
		if !ok {
			return nil
		}
		return f
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case float64:
			return x != 0
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil
			}
			return b
		}
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x
		case string:
			if ts, ok := ParseTimestamp(strings.TrimSpace(x)); ok {
				return ts
			}
			return nil
		case int64:
			return time.Unix(x, 0).UTC()
		}
	}
	return nil
}

// CastColumn returns a copy of c converted to t.
func CastColumn(c *Column, t DType) *Column {
	values := make([]any, len(c.Values))
	for i, v := range c.Values {
		values[i] = Cast(v, t)
	}
	return NewColumn(c.Name, t, values)
}

// ToFloat converts numeric values (and numeric strings) to float64.
// NaN is treated as missing.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FormatValue renders a value as text. Nil renders as the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// InferType picks the narrowest type all non-empty strings parse as.
func InferType(values []string) DType {
	isInt, isFloat, isBool, isTime := true, true, true, true
	seen := false
	for _, s := range values {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if l := strings.ToLower(s); l != "true" && l != "false" {
				isBool = false
			}
		}
		if isTime {
			if _, ok := ParseTimestamp(s); !ok {
				isTime = false
			}
		}
		if !isInt && !isFloat && !isBool && !isTime {
			return String
		}
	}
	switch {
	case !seen:
		return String
	case isInt:
		return Integer
	case isFloat:
		return Double
	case isBool:
		return Boolean
	case isTime:
		return Timestamp
	}
	return String
}

// ParseStrings builds a column from raw text, inferring the type when
// infer is true. Empty strings become null.
func ParseStrings(name string, raw []string, infer bool) *Column {
	t := String
	if infer {
		t = InferType(raw)
	}
	values := make([]any, len(raw))
	for i, s := range raw {
		if s == "" {
			continue
		}
		values[i] = Cast(s, t)
	}
	return NewColumn(name, t, values)
}
