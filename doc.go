// Package melda implements a delta-state JSON CRDT: a document store
// where every mutation is recorded as a content-addressed DeltaBlock, the
// whole document is a forest of per-object RevisionTrees reconstructed by
// replaying those blocks, and two replicas converge by exchanging blocks
// through meld rather than by applying operations against shared state
// directly.
//
// Documents are plain Go values built from json.Unmarshal's own universe:
// nil, bool, float64, string, []interface{}, map[string]interface{}.
// update hands MeldaCore a whole new document value; the engine flattens
// it, diffs the flattened form against the current winners, and stages
// new revisions for whatever changed. commit freezes the staged changes
// into one DeltaBlock and advances the local head. meld imports a peer's
// unknown blocks and replays them into the local RevisionTree forest,
// which is idempotent and commutative by construction: two replicas that
// meld with each other (in either order, any number of times) converge to
// the same read.
//
// Arrays nested under a field name ending in the flattening marker (♭)
// are tracked element-by-element rather than as opaque values: each
// element becomes its own tracked object, and concurrent edits to the
// array are reconciled by a three-way merge against the last common
// ancestor sequence (ArrayMerger) instead of one side's edit simply
// clobbering the other's.
//
// melda never talks to storage directly. Every replica's DataStorage is
// backed by an Adapter — a small read/write/list contract a caller
// supplies, with store/memstore and store/fsstore as reference
// implementations — so the core stays storage-agnostic and two replicas
// can run against entirely different backends and still meld.
package melda
