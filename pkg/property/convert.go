package property

import (
	"strconv"
	"strings"

	"github.com/instrkit/instrkit-go/pkg/units"
)

// Coercion helpers shared by the specialized property kinds. Instruments
// usually answer with strings; user code passes native Go numbers or
// quantities.

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		if i, ok := toInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// parseInt64 coerces a wire value (string or numeric) to int64.
func parseInt64(v any) (int64, bool) {
	if n, ok := toInt64(v); ok {
		return n, true
	}
	switch s := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			// Instruments commonly answer "+1.000000E+00" for integers.
			f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case []byte:
		return parseInt64(string(s))
	case float32:
		return int64(s), true
	case float64:
		return int64(s), true
	default:
		return 0, false
	}
}

// parseFloat64 coerces a wire value (string or numeric) to float64.
func parseFloat64(v any) (float64, bool) {
	if f, ok := toFloat64(v); ok {
		return f, true
	}
	switch s := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		return parseFloat64(string(s))
	default:
		return 0, false
	}
}

// comparableFloat flattens a value for check-expression comparison: quantities
// compare by magnitude, numbers by float64 value.
func comparableFloat(v any) (float64, bool) {
	if q, ok := v.(units.Quantity); ok {
		return q.Magnitude(), true
	}
	return toFloat64(v)
}
