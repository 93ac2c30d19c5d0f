// tree.go implements RevisionTree (spec §4.3): the per-object DAG of
// Revisions under a parent relation, rooted at "no revision". The node
// storage here (a map of revision string to node struct, with bookkeeping
// for leaves) keeps the "children stored in a map, walked depth-first"
// shape this package's original tree-diffing walker used, substituting
// Revision identity for structural hash identity: here two equal
// Revisions in different trees really are the same node (that's the
// whole point of content addressing), rather than merely comparing equal.
package melda

import (
	"sort"
)

// revNode is one node of a RevisionTree.
type revNode struct {
	rev      Revision
	parent   Revision // zero value means "root" (no parent revision)
	isDelete bool
	children []Revision
}

// RevisionTree is the per-object DAG of Revisions described in spec §4.3.
// The zero value is not usable; use NewRevisionTree.
type RevisionTree struct {
	nodes map[string]*revNode // keyed by Revision.String()
	roots []Revision
}

// NewRevisionTree returns an empty RevisionTree.
func NewRevisionTree() *RevisionTree {
	return &RevisionTree{nodes: map[string]*revNode{}}
}

// Add inserts rev into the tree with the given parent (Revision{} for a
// root) and deletion flag. Re-adding an already-present revision with
// identical parent/isDelete is a no-op (this is what makes meld replay
// idempotent); re-adding it with a different parent or deletion flag, or
// adding a non-root revision whose parent isn't present, is an error.
func (t *RevisionTree) Add(rev Revision, parent Revision, isDelete bool) error {
	key := rev.String()
	if existing, ok := t.nodes[key]; ok {
		if existing.parent != parent || existing.isDelete != isDelete {
			return newError(KindBadRevision, nil, "revision %s already exists with a different parent or delete flag", key)
		}
		return nil
	}

	if !parent.IsZero() {
		if _, ok := t.nodes[parent.String()]; !ok {
			return newError(KindUnknownParent, nil, "parent revision %s for %s is not present in the tree", parent, key)
		}
	}

	t.nodes[key] = &revNode{rev: rev, parent: parent, isDelete: isDelete}

	if parent.IsZero() {
		t.roots = append(t.roots, rev)
	} else {
		pn := t.nodes[parent.String()]
		pn.children = append(pn.children, rev)
	}
	return nil
}

// Has reports whether rev is present in the tree.
func (t *RevisionTree) Has(rev Revision) bool {
	_, ok := t.nodes[rev.String()]
	return ok
}

// Leaves enumerates every revision in the tree with no children, in the
// total order (highest first).
func (t *RevisionTree) Leaves() []Revision {
	var leaves []Revision
	for _, n := range t.nodes {
		if len(n.children) == 0 {
			leaves = append(leaves, n.rev)
		}
	}
	sortRevisionsDescending(leaves)
	return leaves
}

// Winner returns the maximum leaf under the total order (spec §4.3), or
// the zero Revision and false if the tree is empty.
func (t *RevisionTree) Winner() (Revision, bool) {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return Revision{}, false
	}
	return leaves[0], true
}

// IsDeleted reports whether the tree's winner (if any) is a deletion.
func (t *RevisionTree) IsDeleted() bool {
	w, ok := t.Winner()
	if !ok {
		return false
	}
	return t.nodes[w.String()].isDelete
}

// Conflicts returns the non-winning leaves, in total order, for read-time
// conflict reporting (spec §4.3, §8 "Conflict reporting granularity").
func (t *RevisionTree) Conflicts() []Revision {
	leaves := t.Leaves()
	if len(leaves) <= 1 {
		return nil
	}
	return leaves[1:]
}

// PathTo returns the chain of revisions from rev back to its root,
// root-first.
func (t *RevisionTree) PathTo(rev Revision) []Revision {
	var path []Revision
	cur := rev
	for {
		n, ok := t.nodes[cur.String()]
		if !ok {
			break
		}
		path = append([]Revision{cur}, path...)
		if n.parent.IsZero() {
			break
		}
		cur = n.parent
	}
	return path
}

// Parent returns rev's parent revision and whether rev has one (false for
// a root revision or an absent one).
func (t *RevisionTree) Parent(rev Revision) (Revision, bool) {
	n, ok := t.nodes[rev.String()]
	if !ok || n.parent.IsZero() {
		return Revision{}, false
	}
	return n.parent, true
}

// IsDeletionRevision reports whether rev, if present, is marked as a
// deletion in this tree.
func (t *RevisionTree) IsDeletionRevision(rev Revision) bool {
	n, ok := t.nodes[rev.String()]
	return ok && n.isDelete
}

// Merge unions other's nodes into t. Merge is commutative and idempotent
// because node identity is the revision itself (spec §4.3): nodes already
// present are skipped, and nodes Add rejects (parent not in t, or an
// existing node with a different parent or delete flag) are returned in
// the "pending" slice. MeldaCore's meld does not retry them; it rejects
// the block with KindUnknownParent.
func (t *RevisionTree) Merge(other *RevisionTree) (pending []Revision) {
	// Insert in ascending Index order, so a parent is always added before
	// its child (a child's Index is its parent's plus one); anything Add
	// still rejects is returned to the caller.
	var all []Revision
	for _, n := range other.nodes {
		all = append(all, n.rev)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })

	for _, rev := range all {
		on := other.nodes[rev.String()]
		if err := t.Add(on.rev, on.parent, on.isDelete); err != nil {
			pending = append(pending, rev)
		}
	}
	return pending
}

// fragmentFromChanges builds a bare RevisionTree directly from changes,
// one node per change, without validating that each node's parent is
// present — replayBlock uses this to turn one DeltaBlock's changes for a
// single object into a tree fragment suitable for Merge, since a block's
// own change list commonly references a parent revision that lives only
// in the destination tree (an earlier block), not within the block
// itself. Merge's own Add calls against the destination do the real
// parent-existence validation; this constructor only needs to carry
// each change's (revision, parent, isDelete) triple.
func fragmentFromChanges(changes []Change) *RevisionTree {
	t := NewRevisionTree()
	for _, ch := range changes {
		parent := Revision{}
		if ch.Parent != nil {
			parent = *ch.Parent
		}
		key := ch.Revision.String()
		t.nodes[key] = &revNode{rev: ch.Revision, parent: parent, isDelete: ch.Kind == ChangeDelete}
		if parent.IsZero() {
			t.roots = append(t.roots, ch.Revision)
		} else if pn, ok := t.nodes[parent.String()]; ok {
			pn.children = append(pn.children, ch.Revision)
		}
	}
	return t
}

func sortRevisionsDescending(revs []Revision) {
	sort.Slice(revs, func(i, j int) bool { return revs[j].Less(revs[i]) })
}
