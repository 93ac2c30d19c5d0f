package melda

import (
	"bytes"
	"encoding/json"
)

// Value is the tagged sum every core component traverses: Null, Bool,
// Number, String, Array, or Object, the same universe produced by
// json.Unmarshal into interface{} (spec §9, "Dynamic typing in the
// source"). It is a type alias, not a wrapper, so callers pass the
// results of json.Unmarshal directly.
//
//	nil                -> Null
//	bool                -> Bool
//	float64 | json.Number -> Number
//	string              -> String
//	[]Value             -> Array
//	map[string]Value    -> Object
//
// A Number built by hand in Go code (a float64 literal) and one decoded
// from raw bytes via DecodeJSON (a json.Number) are both valid Numbers;
// canonicalJSON knows how to hash either representation. Only DecodeJSON
// preserves a decoded number's original literal text.
type Value = interface{}

// RootID is the reserved identifier of the document's top-level object.
const RootID = "√"

// idField is the reserved field every tracked object carries its
// identifier under.
const idField = "_id"

// flattenSuffix is the configured flattening marker (spec §9, "Open
// question: flattening marker identity"); it is a compile-time constant,
// mixed markers across replicas are undefined behavior, and nothing here
// detects a peer that uses a different marker.
const flattenSuffix = "♭"

// asObject asserts v is a JSON object, returning melda's BadShape error
// otherwise.
func asObject(v Value) (map[string]Value, error) {
	obj, ok := v.(map[string]Value)
	if !ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m, nil
		}
		return nil, newError(KindBadShape, nil, "expected a JSON object, got %T", v)
	}
	return obj, nil
}

// idOf extracts the _id field from obj, requiring it be a non-empty
// string.
func idOf(obj map[string]Value) (string, error) {
	raw, ok := obj[idField]
	if !ok {
		return "", newError(KindBadShape, nil, "object is missing required field %q", idField)
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", newError(KindBadShape, nil, "field %q must be a non-empty string", idField)
	}
	return id, nil
}

// isFlattenedField reports whether a field name carries the flattening
// marker suffix.
func isFlattenedField(name string) bool {
	return len(name) >= len(flattenSuffix) && name[len(name)-len(flattenSuffix):] == flattenSuffix
}

// cloneValue performs a deep copy of v, since flatten/unflatten must never
// let the caller's value and the engine's staged content alias the same
// underlying maps/slices.
func cloneValue(v Value) Value {
	switch x := v.(type) {
	case map[string]Value:
		out := make(map[string]Value, len(x))
		for k, sub := range x {
			out[k] = cloneValue(sub)
		}
		return out
	case []Value:
		out := make([]Value, len(x))
		for i, sub := range x {
			out[i] = cloneValue(sub)
		}
		return out
	default:
		return v
	}
}

// DecodeJSON unmarshals raw into a Value tree using json.Number for
// numbers so ContentHash sees the same literal the caller wrote, instead
// of a float64 round-trip that could change e.g. "1.0" into "1". The
// json.Number is kept all the way through to canonicalization
// (canonicalJSON in hash.go writes its literal text verbatim) rather
// than being converted to float64 and discarded here.
func DecodeJSON(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, newError(KindBadShape, err, "invalid JSON")
	}
	return normalizeDecoded(v), nil
}

func normalizeDecoded(v interface{}) Value {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]Value, len(x))
		for k, sub := range x {
			out[k] = normalizeDecoded(sub)
		}
		return out
	case []interface{}:
		out := make([]Value, len(x))
		for i, sub := range x {
			out[i] = normalizeDecoded(sub)
		}
		return out
	default:
		return x
	}
}

// EncodeJSON marshals v back to canonical-adjacent JSON for display; it is
// not used for content hashing (ContentHash/CanonicalBytes own that).
func EncodeJSON(v Value) ([]byte, error) {
	return json.Marshal(v)
}
