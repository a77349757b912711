package types

import "encoding/json"

// Tolerant lookup over untyped config maps. Agent tuning arrives either from
// the YAML loader (snake_case) or the admin PATCH endpoint (camelCase), so
// every read tries all spellings and falls back to a default. This is the
// single place that knows about the dual-spelling problem.

// Lookup returns the first non-nil value among keys in m.
func Lookup(m map[string]any, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// LookupString returns the value of the first key present with a non-nil
// value when it is a non-empty string, or def. Later keys are not tried.
func LookupString(m map[string]any, def string, keys ...string) string {
	v, ok := Lookup(m, keys...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// LookupFloat returns the value of the first key present with a non-nil
// value when it is numeric, or def. Later keys are not tried.
// JSON decoding produces float64; YAML may produce int.
func LookupFloat(m map[string]any, def float64, keys ...string) float64 {
	v, ok := Lookup(m, keys...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return def
}

// LookupInt returns the value of the first key present with a non-nil value
// truncated to int when it is numeric, or def. Later keys are not tried.
func LookupInt(m map[string]any, def int, keys ...string) int {
	v, ok := Lookup(m, keys...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// LookupBool returns the value of the first key present with a non-nil
// value when it is a bool, or def. Later keys are not tried.
func LookupBool(m map[string]any, def bool, keys ...string) bool {
	v, ok := Lookup(m, keys...)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
