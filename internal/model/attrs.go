package model

import (
	"fmt"
	"reflect"
	"sort"
)

// NormalizeAttributes returns a canonical copy of an attribute tree so that
// values which only differ in dynamic Go type (int vs float64 after a JSON
// round trip, map[any]any from YAML) compare equal.
func NormalizeAttributes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = NormalizeAttributes(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = NormalizeAttributes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = NormalizeAttributes(v)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// AttributesEqual performs a deep structural comparison of two attribute
// maps, insensitive to key order and numeric representation.
func AttributesEqual(a, b map[string]any) bool {
	return reflect.DeepEqual(NormalizeAttributes(a), NormalizeAttributes(b))
}

// ChangedKeys returns the sorted set of top-level keys whose values differ
// between before and after, including keys present on only one side.
func ChangedKeys(before, after map[string]any) []string {
	keys := make(map[string]bool)
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}

	var changed []string
	for k := range keys {
		bv, inBefore := before[k]
		av, inAfter := after[k]
		if inBefore != inAfter || !reflect.DeepEqual(NormalizeAttributes(bv), NormalizeAttributes(av)) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// CloneAttributes deep-copies an attribute map.
func CloneAttributes(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := NormalizeAttributes(m).(map[string]any)
	return out
}
