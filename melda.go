// melda.go implements MeldaCore (spec §4.7): the engine that orchestrates
// update -> diff -> stage -> commit -> meld -> read over one replica's
// DataStorage, the same "single exported struct wires every collaborator
// and exposes the handful of entry points callers actually use" shape
// this package's DeepDiff struct gave its tree differ and patcher.
package melda

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/melda-dev/melda/internal/log"
)

// MeldaCoreOption configures a MeldaCore at construction.
type MeldaCoreOption func(*MeldaCore)

// WithCoreLogger attaches a logger for diagnostic events; the default is
// a no-op logger.
func WithCoreLogger(l zerolog.Logger) MeldaCoreOption {
	return func(m *MeldaCore) { m.log = l }
}

// WithStandardCoreLogger builds a logger from cfg via internal/log
// instead of the default no-op logger, tagging every line with the
// "melda" component, for a caller that wants engine diagnostics without
// building a zerolog.Logger itself (WithCoreLogger takes one ready-made).
func WithStandardCoreLogger(cfg log.Config) MeldaCoreOption {
	return func(m *MeldaCore) { m.log = log.WithComponent(log.New(cfg), "melda") }
}

// MeldaCore is one replica of a document: a head set of DeltaBlock
// hashes, the per-object RevisionTree forest built by replaying every
// imported block, a pending-change buffer accumulated by Update calls
// since the last Commit, and the DataStorage this replica stages and
// reads content through (spec §4.7, "State"). The zero value is not
// usable; use NewMeldaCore. All operations on one MeldaCore are
// serialized by mu (spec §5: "single-threaded cooperative per engine
// instance"); concurrency between replicas is modeled as separate
// MeldaCore instances communicating only through Meld.
type MeldaCore struct {
	mu sync.Mutex

	storage *DataStorage
	log     zerolog.Logger

	heads   map[string]bool
	known   map[string]bool // every delta block hash ever imported or committed, for meld discovery
	trees   map[string]*RevisionTree
	pending []Change
}

// NewMeldaCore returns an empty replica backed by storage.
func NewMeldaCore(storage *DataStorage, opts ...MeldaCoreOption) *MeldaCore {
	m := &MeldaCore{
		storage: storage,
		log:     log.Nop(),
		heads:   map[string]bool{},
		known:   map[string]bool{},
		trees:   map[string]*RevisionTree{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// aliveContent returns id's reconstructed content and true, or false if
// id has no tree, its winner is a deletion, or its content fails to
// load. When id's RevisionTree carries more than one leaf, every
// flattened-array field is reconciled across all leaves by a three-way
// merge against their nearest common ancestor (ArrayMerger, spec §4.6)
// rather than simply returning the total-order winner's own array value
// verbatim: that is what lets concurrent inserts into the same array
// converge instead of one side's whole object silently discarding the
// other's insert (spec §8 scenarios 1-3, 5).
func (m *MeldaCore) aliveContent(id string) (Value, bool) {
	tree, ok := m.trees[id]
	if !ok {
		return nil, false
	}
	winner, ok := tree.Winner()
	if !ok || tree.IsDeletionRevision(winner) {
		return nil, false
	}

	leaves := tree.Leaves()
	base, err := m.storage.ReadContent(winner.Digest)
	if err != nil {
		return nil, false
	}
	if len(leaves) == 1 {
		return base, true
	}

	baseObj, err := asObject(base)
	if err != nil {
		return base, true
	}
	merged := cloneValue(baseObj).(map[string]Value)

	ancestorContent, haveAncestor := m.ancestorContentFor(tree, leaves)

	fields := map[string]bool{}
	for _, f := range flattenedArrayFields(base) {
		fields[f] = true
	}
	for _, leaf := range leaves[1:] {
		leafContent, err := m.storage.ReadContent(leaf.Digest)
		if err != nil {
			continue
		}
		for _, f := range flattenedArrayFields(leafContent) {
			fields[f] = true
		}
	}

	for field := range fields {
		var ancestorIDs []string
		if haveAncestor {
			ancestorIDs = idsOf(ancestorContent, field)
		}
		accumulated := idsOf(base, field)
		for _, leaf := range leaves[1:] {
			leafContent, err := m.storage.ReadContent(leaf.Digest)
			if err != nil {
				continue
			}
			accumulated = MergeArray(ArrayMergeInput{
				Ancestor:       ancestorIDs,
				Local:          accumulated,
				Remote:         idsOf(leafContent, field),
				Alive:          m.idIsAlive,
				WinnerRevision: m.winnerRevisionOf,
			})
		}
		out := make([]Value, len(accumulated))
		for i, v := range accumulated {
			out[i] = v
		}
		merged[field] = out
	}

	return merged, true
}

// idIsAlive reports whether id's RevisionTree winner exists and is not a
// deletion, used as ArrayMerger's Alive callback.
func (m *MeldaCore) idIsAlive(id string) bool {
	tree, ok := m.trees[id]
	if !ok {
		return false
	}
	w, ok := tree.Winner()
	return ok && !tree.IsDeletionRevision(w)
}

// winnerRevisionOf returns id's winning Revision, used as ArrayMerger's
// tie-break callback.
func (m *MeldaCore) winnerRevisionOf(id string) (Revision, bool) {
	tree, ok := m.trees[id]
	if !ok {
		return Revision{}, false
	}
	return tree.Winner()
}

// ancestorContentFor finds the deepest revision that is an ancestor of
// every leaf in leaves, and returns its content. False if the leaves
// share no common ancestor (e.g. independently-rooted trees merged
// together), in which case callers treat every array field's ancestor
// sequence as empty.
func (m *MeldaCore) ancestorContentFor(tree *RevisionTree, leaves []Revision) (Value, bool) {
	if len(leaves) == 0 {
		return nil, false
	}
	chain := tree.PathTo(leaves[0])
	depth := map[string]int{}
	for i, r := range chain {
		depth[r.String()] = i
	}

	best := -1
	for _, leaf := range leaves[1:] {
		cur := leaf
		found := -1
		for {
			if i, ok := depth[cur.String()]; ok {
				found = i
				break
			}
			p, ok := tree.Parent(cur)
			if !ok {
				break
			}
			cur = p
		}
		if found == -1 {
			return nil, false
		}
		if best == -1 || found < best {
			best = found
		}
	}
	if best == -1 {
		return nil, false
	}
	ancestorRev := chain[best]
	content, err := m.storage.ReadContent(ancestorRev.Digest)
	if err != nil {
		return nil, false
	}
	return content, true
}

// Read reconstructs the winning JSON view rooted at id (RootID if id is
// empty), un-flattening through every live reference (spec §4.7,
// "read(id?)"). An id whose winner is a deletion, or that is unknown,
// yields BadShape: the root itself is never expected to be dead.
func (m *MeldaCore) Read(id string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = RootID
	}
	return Unflatten(id, m.aliveContent)
}

// Conflicts returns the non-winning leaf revisions for id — empty if id
// is unknown or has a single winner (spec §8, "Conflict reporting
// granularity"; supplements read with the enumeration spec §4.7 mentions
// but leaves to the caller to request).
func (m *MeldaCore) Conflicts(id string) []Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.trees[id]
	if !ok {
		return nil
	}
	return tree.Conflicts()
}

// AllConflicts enumerates every object id with more than one surviving
// leaf after the most recent commit/meld, for callers that want a single
// pass over the whole replica rather than probing object by object (e.g.
// ConflictReport).
func (m *MeldaCore) AllConflicts() map[string][]Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]Revision{}
	for id, tree := range m.trees {
		if c := tree.Conflicts(); len(c) > 0 {
			out[id] = append([]Revision{tree.Leaves()[0]}, c...)
		}
	}
	return out
}

// Update flattens value and diffs it against the current winning content
// of every object it touches (spec §4.7, "update(value)"): objects whose
// flattened content changed get a new revision staged in DataStorage and
// added to the RevisionTree; objects that were alive before this call
// but are no longer referenced by the new flattened form get an explicit
// deletion revision, so a concurrent replica observes the tombstone
// instead of silent disappearance.
func (m *MeldaCore) Update(value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	flat, err := Flatten(value)
	if err != nil {
		return err
	}

	previouslyAlive := map[string]bool{}
	for id, tree := range m.trees {
		if w, ok := tree.Winner(); ok && !tree.IsDeletionRevision(w) {
			previouslyAlive[id] = true
		}
	}

	ids := make([]string, 0, len(flat.Content))
	for id := range flat.Content {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		content := flat.Content[id]
		hash, err := ContentHash(content)
		if err != nil {
			return err
		}

		tree := m.treeFor(id)
		parent, hadWinner := tree.Winner()
		if hadWinner && !tree.IsDeletionRevision(parent) && parent.Digest == hash {
			delete(previouslyAlive, id) // unchanged; still alive, not a deletion candidate
			continue
		}

		rev := NewContentRevision(parent, hash)
		if _, err := m.storage.Stage(content); err != nil {
			return err
		}
		if err := tree.Add(rev, parent, false); err != nil {
			return err
		}
		m.pending = append(m.pending, Change{ObjectID: id, Kind: ChangeUpdate, Revision: rev, Parent: parentPtr(parent)})
		delete(previouslyAlive, id)
	}

	deadIDs := make([]string, 0, len(previouslyAlive))
	for id := range previouslyAlive {
		deadIDs = append(deadIDs, id)
	}
	sort.Strings(deadIDs)
	for _, id := range deadIDs {
		tree := m.trees[id]
		parent, _ := tree.Winner()
		rev := NewDeletionRevision(parent)
		if err := tree.Add(rev, parent, true); err != nil {
			return err
		}
		m.pending = append(m.pending, Change{ObjectID: id, Kind: ChangeDelete, Revision: rev, Parent: parentPtr(parent)})
	}

	return nil
}

func (m *MeldaCore) treeFor(id string) *RevisionTree {
	tree, ok := m.trees[id]
	if !ok {
		tree = NewRevisionTree()
		m.trees[id] = tree
	}
	return tree
}

func parentPtr(r Revision) *Revision {
	if r.IsZero() {
		return nil
	}
	p := r
	return &p
}

// Commit freezes the pending change buffer into one DeltaBlock, writes
// its staged content and the block itself through DataStorage, and
// advances the head set to the single new block hash (spec §4.7,
// "commit(info?)"). An empty pending buffer is a no-op: Commit returns
// the zero hash and a nil error without writing anything.
func (m *MeldaCore) Commit(info Value) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return "", nil
	}

	packs, err := m.storage.CommitPending()
	if err != nil {
		return "", err
	}

	parents := make([]string, 0, len(m.heads))
	for h := range m.heads {
		parents = append(parents, h)
	}
	sort.Strings(parents)

	block := DeltaBlock{
		Changes: append([]Change(nil), m.pending...),
		Packs:   packs,
		Parents: parents,
		Info:    info,
	}
	hash, err := block.Hash()
	if err != nil {
		return "", err
	}
	if err := m.storage.WriteDeltaBlock(hash, block); err != nil {
		return "", err
	}

	m.heads = map[string]bool{hash: true}
	m.known[hash] = true
	m.pending = nil
	m.log.Debug().Str("block", hash).Int("changes", len(block.Changes)).Msg("committed")
	return hash, nil
}

// Heads returns a snapshot of the current head set's block hashes.
func (m *MeldaCore) Heads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	heads := make([]string, 0, len(m.heads))
	for h := range m.heads {
		heads = append(heads, h)
	}
	sort.Strings(heads)
	return heads
}

// Meld imports every delta block reachable from other's current head set
// that this replica does not already know, replays each into the local
// RevisionTree in parent-before-child order, fetches the packs each
// imports references, and — only if every discovered block replayed
// cleanly — advances the local head set to the minimal antichain of the
// old and imported heads (spec §4.7, "meld(other)"). Meld is idempotent:
// melding twice in a row, or melding with nothing new to offer, imports
// zero blocks and changes nothing.
func (m *MeldaCore) Meld(other *MeldaCore) (MeldStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	var stats MeldStats

	order, err := discoverOrder(other, m.known)
	if err != nil {
		return stats, err
	}
	if len(order) == 0 {
		return stats, nil
	}

	blocks := make(map[string]DeltaBlock, len(order))
	for _, hash := range order {
		block, err := other.storage.ReadDeltaBlock(hash)
		if err != nil {
			return stats, err
		}
		blocks[hash] = block

		for _, packHash := range block.Packs {
			if _, err := m.storage.ReadContent(packHash); err == nil {
				continue // already held locally; nothing to fetch
			}
			if err := m.storage.FetchPack(other.storage, packHash); err != nil {
				return stats, err
			}
			stats.PacksFetched++
		}
		// persist the imported block locally too, so this replica can
		// itself serve as a meld source for a third replica later.
		if err := m.storage.WriteDeltaBlock(hash, block); err != nil {
			return stats, err
		}
		// replay only after the block's packs and the block itself are
		// stored, so an adapter failure above leaves the trees untouched.
		pending := replayBlock(m.trees, block)
		if len(pending) > 0 {
			return stats, newError(KindUnknownParent, nil,
				"block %s: %d change(s) reference a parent not reachable from its own ancestry", hash, len(pending))
		}
		m.known[hash] = true
		stats.BlocksImported++
	}

	newHeads := map[string]bool{}
	for h := range m.heads {
		newHeads[h] = true
	}
	otherParents := map[string]bool{}
	for _, hash := range order {
		for _, p := range blocks[hash].Parents {
			otherParents[p] = true
		}
		newHeads[hash] = true
	}
	for h := range otherParents {
		delete(newHeads, h)
	}
	m.heads = newHeads

	for _, tree := range m.trees {
		if len(tree.Conflicts()) > 0 {
			stats.ConflictsObserved++
		}
	}

	m.log.Debug().Int("blocks", stats.BlocksImported).Int("packs", stats.PacksFetched).Msg("melded")
	return stats, nil
}

// discoverOrder walks other's head set backward along Parents, returning
// every block hash unknown to this replica (per known) in topological
// (parents before children) order.
func discoverOrder(other *MeldaCore, known map[string]bool) ([]string, error) {
	visited := map[string]bool{}
	var order []string

	var visit func(hash string) error
	visit = func(hash string) error {
		if known[hash] || visited[hash] {
			return nil
		}
		visited[hash] = true
		block, err := other.storage.ReadDeltaBlock(hash)
		if err != nil {
			return err
		}
		for _, p := range block.Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		order = append(order, hash)
		return nil
	}

	heads := make([]string, 0, len(other.heads))
	for h := range other.heads {
		heads = append(heads, h)
	}
	sort.Strings(heads)
	for _, h := range heads {
		if err := visit(h); err != nil {
			return nil, err
		}
	}
	return order, nil
}
