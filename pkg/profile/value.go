// Package profile holds the transient ParsedProfile and persistent
// StoredProfile data types, together with the derived read operations
// (get_latest, get_at_version, evaluate, changed_settings) a StoredProfile
// exposes.
package profile

import (
	"encoding/json"
	"sort"

	"github.com/r3labs/diff"
)

// Value wraps the dynamically-typed setting value that flows through the
// system opaquely. It is populated by decoding JSON into interface{},
// which naturally yields float64/string/bool/[]interface{}/map[string]interface{}/nil.
type Value struct {
	V interface{}
}

func NewValue(v interface{}) Value { return Value{V: v} }

// Canonical renders the value as canonical JSON: map keys sorted
// recursively, no incidental whitespace. List order is preserved (and
// therefore significant); map key order is not (and therefore
// insignificant), matching spec.md §4.C's equality rule.
func (v Value) Canonical() []byte {
	out, _ := json.Marshal(canonicalize(v.V))
	return out
}

// Equal reports whether two values are equal under the canonical-JSON
// normalization. It is implemented with r3labs/diff's reflect-based
// comparison, which walks maps by key and slices by index, so it already
// has the "list order significant, map key order not" property this
// package needs without hand-rolling a recursive comparator.
func (v Value) Equal(other Value) bool {
	a := canonicalize(v.V)
	b := canonicalize(other.V)
	changed := diff.Changed(a, b)
	return !changed
}

func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[k] = canonicalize(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return t
	}
}
