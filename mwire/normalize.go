// Package mwire handles the loosely-typed wire representation of remote blocks.
//
// Remote sources serve blocks as JSON trees whose field names do not always
// match the local schema. The only known discrepancy is the field naming
// blocks orphaned from the canonical chain: some schemas call it "uncles"
// where the local schema expects "ommers". Both denote the same concept.
//
// [Normalize] applies that rename at every depth of a decoded tree,
// since the field can appear in multiple contexts
// (envelope, header, body, nested ommer headers).
package mwire

import "encoding/json"

const (
	// The remote name for the orphaned-blocks field.
	unclesField = "uncles"

	// The local name for the same field.
	ommersField = "ommers"
)

// Decode unmarshals raw JSON into a generic tree of
// map[string]any, []any, and scalars.
func Decode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode marshals a generic tree back to JSON.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Normalize renames every "uncles" field in the tree to "ommers",
// recursing into nested objects and arrays at every depth.
// Sibling fields are untouched, and a tree with no occurrence of the
// field comes back structurally unchanged.
//
// Objects are normalized in place; the returned value is the same tree.
// Applying Normalize twice yields the same result as applying it once.
//
// If an object already has an "ommers" field, that field wins and the
// "uncles" field is dropped: the local name is authoritative.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		if u, ok := t[unclesField]; ok {
			if _, exists := t[ommersField]; !exists {
				t[ommersField] = u
			}
			delete(t, unclesField)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = Normalize(e)
		}
		return t
	default:
		return v
	}
}
