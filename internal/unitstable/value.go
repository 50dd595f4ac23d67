package unitstable

import (
	"encoding/json"
	"math"
	"strconv"
)

// SortValue is the primitive a column orders rows by: a number or a string.
type SortValue struct {
	num   float64
	str   string
	isStr bool
}

// Number returns a numeric sort value. NaN marks missing data.
func Number(v float64) SortValue { return SortValue{num: v} }

// String returns a string sort value.
func String(s string) SortValue { return SortValue{str: s, isStr: true} }

// IsString reports whether v holds a string.
func (v SortValue) IsString() bool { return v.isStr }

// Float returns the numeric value, or NaN for a string.
func (v SortValue) Float() float64 {
	if v.isStr {
		return math.NaN()
	}
	return v.num
}

// Str returns the string value, or "" for a number.
func (v SortValue) Str() string { return v.str }

// IsNaN reports whether v is the missing-number sentinel.
func (v SortValue) IsNaN() bool { return !v.isStr && math.IsNaN(v.num) }

func (v SortValue) String() string {
	if v.isStr {
		return strconv.Quote(v.str)
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON emits the number or string. NaN and infinities become null.
func (v SortValue) MarshalJSON() ([]byte, error) {
	if v.isStr {
		return json.Marshal(v.str)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.num)
}

// sortValueOf converts a provider value into a SortValue. Values that are
// neither numbers nor strings yield the column's sentinel.
func sortValueOf(v any, numeric bool) SortValue {
	switch x := v.(type) {
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case string:
		return String(x)
	default:
		return sentinel(numeric)
	}
}

func sentinel(numeric bool) SortValue {
	if numeric {
		return Number(math.NaN())
	}
	return String("")
}

// jsonSafe replaces float values JSON cannot carry with nil.
func jsonSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}
