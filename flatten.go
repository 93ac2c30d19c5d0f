// flatten.go implements the Flattener (spec §4.4): converting user JSON
// into "flattened" form by extracting sub-objects from flattened arrays
// into an id-indexed map, and the reverse un-flatten walk that read()
// uses to reconstruct a winning view.
package melda

import (
	"sort"
)

// Flattened is the result of flattening one document: the root's own
// content (with flattened-array fields replaced by id lists) plus every
// extracted sub-object's content, keyed by id. Sub-objects are themselves
// recursively flattened, so every entry's content is free of embedded
// objects along flattened paths.
type Flattened struct {
	RootID  string
	Content map[string]Value // id -> object content (flattened form)
}

// Flatten walks root (which must be a JSON object) and returns its
// flattened form. The root's identifier is always RootID regardless of
// any _id field it happens to carry, per spec §3.
func Flatten(root Value) (*Flattened, error) {
	f := &Flattened{Content: map[string]Value{RootID: nil}}
	content, err := flattenObject(root, f)
	if err != nil {
		return nil, err
	}
	f.RootID = RootID
	f.Content[RootID] = content
	return f, nil
}

// flattenObject extracts any flattened-array fields from obj, recording
// each extracted sub-object into f.Content, and returns obj's own content
// with those fields replaced by ordered id lists.
func flattenObject(v Value, f *Flattened) (Value, error) {
	obj, err := asObject(v)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Value, len(obj))
	for key, val := range obj {
		if !isFlattenedField(key) {
			out[key] = cloneValue(val)
			continue
		}

		arr, ok := val.([]Value)
		if !ok {
			return nil, newError(KindBadShape, nil, "field %q must be an array of objects", key)
		}

		ids := make([]Value, 0, len(arr))
		for _, el := range arr {
			sub, err := asObject(el)
			if err != nil {
				return nil, newError(KindBadShape, err, "flattened field %q contains a non-object element", key)
			}
			id, err := idOf(sub)
			if err != nil {
				return nil, newError(KindBadShape, err, "flattened field %q element missing _id", key)
			}
			subContent, err := flattenObject(sub, f)
			if err != nil {
				return nil, err
			}
			f.Content[id] = subContent
			ids = append(ids, id)
		}
		out[key] = ids
	}
	return out, nil
}

// Unflatten reconstructs the JSON view rooted at id from a lookup
// function alive, which returns an object's current flattened content and
// whether it is alive (present and not a tombstone). References to dead
// or missing ids are skipped, per spec §4.4 ("failing cleanly... if the
// referenced id is deleted or missing").
func Unflatten(id string, alive func(id string) (Value, bool)) (Value, error) {
	content, ok := alive(id)
	if !ok {
		return nil, newError(KindBadShape, nil, "object %q is not alive", id)
	}
	return unflattenContent(content, alive)
}

func unflattenContent(content Value, alive func(id string) (Value, bool)) (Value, error) {
	obj, err := asObject(content)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Value, len(obj))
	for key, val := range obj {
		if !isFlattenedField(key) {
			out[key] = cloneValue(val)
			continue
		}

		ids, ok := val.([]Value)
		if !ok {
			out[key] = []Value{}
			continue
		}

		arr := make([]Value, 0, len(ids))
		for _, idVal := range ids {
			id, ok := idVal.(string)
			if !ok {
				continue
			}
			sub, ok := alive(id)
			if !ok {
				continue
			}
			unflattened, err := unflattenContent(sub, alive)
			if err != nil {
				return nil, err
			}
			arr = append(arr, unflattened)
		}
		out[key] = arr
	}
	return out, nil
}

// flattenedArrayFields returns the flattened field names present in
// content, sorted, used by ArrayMerger callers to know which fields of an
// object need three-way merging.
func flattenedArrayFields(content Value) []string {
	obj, err := asObject(content)
	if err != nil {
		return nil
	}
	var fields []string
	for key := range obj {
		if isFlattenedField(key) {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

// idsOf reads a flattened field's id list out of content (empty if the
// field is absent).
func idsOf(content Value, field string) []string {
	obj, err := asObject(content)
	if err != nil {
		return nil
	}
	raw, ok := obj[field]
	if !ok {
		return nil
	}
	list, ok := raw.([]Value)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids
}
