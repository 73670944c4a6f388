package expressions

import (
	"encoding/json"
	"fmt"
)

// Normalize converts an evaluation result into JSON-native Go types
// (map[string]any, []any, string, bool, float64/int, nil). Engine-specific
// wrapper types fall back to a JSON round trip.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int64, float64:
		return val
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case uint:
		return int64(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return decoded
	}
}

// Truthy coerces a JSON value to a boolean: false for null, false, zero
// numbers, empty strings, empty arrays, and empty objects; true otherwise.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
