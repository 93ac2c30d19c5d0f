// delta.go implements DeltaBlock (spec §3, §4.5, §6): the immutable
// commit record a replica's commit produces and meld exchanges. Its shape
// (a short set of tagged fields, JSON-marshalable, whose own hash is the
// hash of its canonical encoding) follows the same "small struct with a
// Type/Path/Value-shaped edit description" this package's Delta type
// used, generalized from one scalar edit to a whole commit's worth of
// per-object revision changes.
package melda

import (
	"encoding/json"
)

// ChangeKind distinguishes an update/create entry from a delete entry in
// a DeltaBlock's change list.
type ChangeKind string

const (
	// ChangeUpdate covers both object creation and content update: the
	// object's new revision is not a deletion.
	ChangeUpdate ChangeKind = "update"
	// ChangeDelete marks the new revision as a tombstone.
	ChangeDelete ChangeKind = "delete"
)

// Change is one entry of a DeltaBlock's change list: an object gaining a
// new revision, with an optional parent (absent only for an object's
// first-ever revision).
type Change struct {
	ObjectID string     `json:"id"`
	Kind     ChangeKind `json:"kind"`
	Revision Revision   `json:"rev"`
	Parent   *Revision  `json:"parent,omitempty"`
}

// MarshalJSON renders Revision fields in their "<index>-<digest>" string
// form rather than as a nested object, matching the on-disk delta block
// format in spec §6.
func (c Change) MarshalJSON() ([]byte, error) {
	type wire struct {
		ObjectID string     `json:"id"`
		Kind     ChangeKind `json:"kind"`
		Revision string     `json:"rev"`
		Parent   string     `json:"parent,omitempty"`
	}
	w := wire{ObjectID: c.ObjectID, Kind: c.Kind, Revision: c.Revision.String()}
	if c.Parent != nil {
		w.Parent = c.Parent.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Change) UnmarshalJSON(data []byte) error {
	var w struct {
		ObjectID string     `json:"id"`
		Kind     ChangeKind `json:"kind"`
		Revision string     `json:"rev"`
		Parent   string     `json:"parent,omitempty"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	rev, err := ParseRevision(w.Revision)
	if err != nil {
		return err
	}
	c.ObjectID, c.Kind, c.Revision = w.ObjectID, w.Kind, rev
	if w.Parent != "" {
		p, err := ParseRevision(w.Parent)
		if err != nil {
			return err
		}
		c.Parent = &p
	}
	return nil
}

// DeltaBlock is the immutable commit record described in spec §3: a
// change list (c), referenced pack hashes (k), parent block hashes (p),
// and optional user-supplied commit info (i). Unknown fields are not
// preserved here since this implementation always round-trips through
// its own typed struct; a forward-compatible deployment that must
// preserve unrecognized keys verbatim would instead decode into a
// raw map and keep the extra keys alongside these.
type DeltaBlock struct {
	Changes []Change `json:"c"`
	Packs   []string `json:"k"`
	Parents []string `json:"p"`
	Info    Value    `json:"i,omitempty"`
}

// canonicalValue renders d into the Value sum type so Hasher's
// canonicalJSON can hash it exactly like any other content, keeping one
// canonicalization path for both object content and delta blocks (spec
// §4.1: "the same canonicalization is used for content hashing and
// delta-block hashing").
func (d DeltaBlock) canonicalValue() (Value, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(raw)
}

// Hash returns d's content hash: the identity by which it is stored,
// referenced as a parent by later blocks, and deduplicated during meld.
func (d DeltaBlock) Hash() (string, error) {
	v, err := d.canonicalValue()
	if err != nil {
		return "", err
	}
	return ContentHash(v)
}

// Encode serializes d to its on-disk delta block format (canonical
// JSON, spec §6).
func (d DeltaBlock) Encode() ([]byte, error) {
	v, err := d.canonicalValue()
	if err != nil {
		return nil, err
	}
	return CanonicalBytes(v)
}

// DecodeDeltaBlock parses a delta block from its on-disk bytes.
func DecodeDeltaBlock(raw []byte) (DeltaBlock, error) {
	var d DeltaBlock
	if err := json.Unmarshal(raw, &d); err != nil {
		return DeltaBlock{}, newError(KindBadShape, err, "malformed delta block")
	}
	return d, nil
}
