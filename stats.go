// stats.go implements the meld statistics this repo's expanded spec adds
// on top of the core meld protocol (SPEC_FULL.md, "Stats on meld"),
// mirroring the Left/Right/Inserts/Updates-style counters this package's
// structural differ reported about a single diff.
package melda

// MeldStats summarizes one meld call's volume: how many delta blocks and
// packs were actually fetched from the peer, and how many objects ended
// up with more than one surviving leaf after the import.
type MeldStats struct {
	BlocksImported    int `json:"blocksImported"`
	PacksFetched      int `json:"packsFetched"`
	ConflictsObserved int `json:"conflictsObserved"`
}

// NoOp reports whether meld imported nothing at all — the observable
// signature of meld's idempotence (spec §8: "a second meld(B, A) writes
// no new blocks").
func (s MeldStats) NoOp() bool {
	return s.BlocksImported == 0 && s.PacksFetched == 0
}
