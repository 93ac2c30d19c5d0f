// replay.go applies an edit script onto a structure, the same shape of
// problem this package's original reflect-based Patch solved for a
// single in-memory value. Here the "structure" is a replica's map of
// per-object RevisionTrees and the "edit script" is a DeltaBlock's change
// list, so replay is meld's core: group a block's changes by object,
// wrap each group as a tree fragment, and union it into the matching
// RevisionTree with RevisionTree.Merge (spec §4.7), the tree's own
// idempotent, commutative union step. A change whose parent can't be
// resolved comes back as pending, with no tree touched, so the caller
// (MeldaCore.Meld) can surface KindUnknownParent.
package melda

// replayBlock applies every Change in block into trees (keyed by object
// id, created on demand). If any change's parent revision is absent from
// both the block's own changes for that object and the destination tree,
// those changes are returned as pending and nothing is applied; otherwise
// it returns whatever RevisionTree.Merge could not place.
func replayBlock(trees map[string]*RevisionTree, block DeltaBlock) (pending []Change) {
	byObject := map[string][]Change{}
	var order []string
	byRevision := map[string]Change{}
	for _, ch := range block.Changes {
		if _, ok := byObject[ch.ObjectID]; !ok {
			order = append(order, ch.ObjectID)
		}
		byObject[ch.ObjectID] = append(byObject[ch.ObjectID], ch)
		byRevision[ch.Revision.String()] = ch
	}

	// Check every parent before touching any tree, so a block with an
	// unresolvable parent is rejected whole instead of being partly applied.
	for _, ch := range block.Changes {
		if ch.Parent == nil || trees[ch.ObjectID] != nil && trees[ch.ObjectID].Has(*ch.Parent) {
			continue
		}
		found := false
		for _, sib := range byObject[ch.ObjectID] {
			found = found || sib.Revision == *ch.Parent
		}
		if !found {
			pending = append(pending, ch)
		}
	}
	if len(pending) > 0 {
		return pending
	}

	for _, id := range order {
		tree, ok := trees[id]
		if !ok {
			tree = NewRevisionTree()
			trees[id] = tree
		}

		fragment := fragmentFromChanges(byObject[id])
		for _, rev := range tree.Merge(fragment) {
			pending = append(pending, byRevision[rev.String()])
		}
	}
	return pending
}
