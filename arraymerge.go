// arraymerge.go implements ArrayMerger (spec §4.6): a three-way merge of
// ordered id-sequences against a common ancestor, used to reconcile a
// flattened array field when two replicas each rewrote it since they last
// agreed.
package melda

import "sort"

// ArrayMergeInput bundles the three sequences and the supporting lookups
// MergeArray needs.
type ArrayMergeInput struct {
	Ancestor []string
	Local    []string
	Remote   []string

	// Alive reports whether id's RevisionTree winner is not a deletion.
	// Ids for which Alive returns false are dropped from both sides
	// before merging.
	Alive func(id string) bool

	// WinnerRevision returns the winning Revision of id, used only to
	// break ties deterministically between ids two replicas both insert
	// into the same gap; it must be a pure function of each replica's
	// RevisionTree state so that independent replicas applying the same
	// inputs compute the identical tie-break (spec §4.6 step 4,
	// "replica-independent tie-break... winning revision order").
	WinnerRevision func(id string) (Revision, bool)
}

// MergeArray produces the merged id sequence M described in spec §4.6:
// every id in Local ∪ Remote that is alive, in an order that reproduces
// the ancestor order where possible and concatenates fresh insertions
// deterministically at the gap they were inserted into.
func MergeArray(in ArrayMergeInput) []string {
	aliveLocal := filterAlive(in.Local, in.Alive)
	aliveRemote := filterAlive(in.Remote, in.Alive)

	localSet := toSet(aliveLocal)
	remoteSet := toSet(aliveRemote)

	// pivot: ancestor ids retained (i.e. still alive and present) on
	// both sides, in ancestor order — the backbone both replicas agree
	// on.
	var pivot []string
	pivotIndex := map[string]int{}
	for _, id := range in.Ancestor {
		if _, dup := pivotIndex[id]; dup {
			continue // guards against a duplicate entry in Ancestor itself
		}
		if localSet[id] && remoteSet[id] {
			pivotIndex[id] = len(pivot)
			pivot = append(pivot, id)
		}
	}

	gapsLocal := splitIntoGaps(aliveLocal, pivotIndex, len(pivot))
	gapsRemote := splitIntoGaps(aliveRemote, pivotIndex, len(pivot))

	seen := map[string]bool{}
	var merged []string
	emit := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		merged = append(merged, id)
	}

	for gap := 0; gap <= len(pivot); gap++ {
		combined := append(append([]string{}, gapsLocal[gap]...), gapsRemote[gap]...)
		sortGapDeterministically(combined, in.WinnerRevision)
		for _, id := range combined {
			emit(id)
		}
		if gap < len(pivot) {
			emit(pivot[gap])
		}
	}

	return merged
}

// splitIntoGaps walks seq, assigning every id not itself a pivot id to
// the gap that follows the most recent pivot id seen before it in seq:
// gap 0 before any pivot, gap idx+1 after pivot idx, so ids after the
// last pivot land in the final gap, numPivots.
func splitIntoGaps(seq []string, pivotIndex map[string]int, numPivots int) [][]string {
	gaps := make([][]string, numPivots+1)
	gap := 0
	for _, id := range seq {
		if idx, ok := pivotIndex[id]; ok {
			gap = idx + 1
			continue
		}
		gaps[gap] = append(gaps[gap], id)
	}
	return gaps
}

// sortGapDeterministically orders the ids concatenated into one gap by
// their winning revision (highest first), falling back to id order for
// ids with no known revision, so two replicas that each insert a
// different set of ids at the same gap agree on the combined order
// without needing to know who is "local" and who is "remote".
func sortGapDeterministically(ids []string, winnerRevision func(string) (Revision, bool)) {
	sort.SliceStable(ids, func(i, j int) bool {
		ri, iok := winnerRevision(ids[i])
		rj, jok := winnerRevision(ids[j])
		switch {
		case iok && jok && ri != rj:
			return rj.Less(ri)
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
}

func filterAlive(ids []string, alive func(string) bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if alive == nil || alive(id) {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
