package cmdgate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Headers are caller-supplied application headers attached to a dispatched command.
//
// Values must be one of nil, bool, string, []byte, int, int8, int16, int32,
// int64, uint8, float32, float64 or time.Time, or an array of those scalars
// given as []any, []string, []int, []int64, []float64 or []bool.
type Headers map[string]any

// Table is the transport-level header container carried by a Message.
// Arrays are always stored as []any.
type Table map[string]any

// Validate checks every key and value against the permitted set.
func (h Headers) Validate() error {
	for k, v := range h {
		if k == "" {
			return &HeaderError{Key: k, Reason: "empty key"}
		}
		if _, err := normalizeValue(v); err != nil {
			return &HeaderError{Key: k, Reason: err.Error()}
		}
	}
	return nil
}

// StringMap flattens the table for transports that only carry string headers.
func (t Table) StringMap() map[string]string {
	res := make(map[string]string, len(t))
	for k, v := range t {
		res[k] = headerString(v)
	}
	return res
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, []byte, int, int8, int16, int32, int64, uint8, float32, float64, time.Time:
		return v, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			if !isScalar(e) {
				return nil, fmt.Errorf("unsupported array element type %T", e)
			}
			out[i] = e
		}
		return out, nil
	case []string:
		return toAnySlice(x), nil
	case []int:
		return toAnySlice(x), nil
	case []int64:
		return toAnySlice(x), nil
	case []float64:
		return toAnySlice(x), nil
	case []bool:
		return toAnySlice(x), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, []byte, int, int8, int16, int32, int64, uint8, float32, float64, time.Time:
		return true
	}
	return false
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

func headerString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
