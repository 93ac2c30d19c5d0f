package melda

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melda-dev/melda/internal/log"
)

func newCore() *MeldaCore {
	return NewMeldaCore(NewDataStorage(newMemAdapter()))
}

func TestWithStandardCoreLoggerTagsCommitLine(t *testing.T) {
	var buf bytes.Buffer
	m := NewMeldaCore(NewDataStorage(newMemAdapter()), WithStandardCoreLogger(log.Config{Level: log.DebugLevel, JSONOutput: true, Output: &buf}))

	require.NoError(t, m.Update(map[string]Value{"title": "v1"}))
	_, err := m.Commit(nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"component":"melda"`)
	assert.Contains(t, buf.String(), "committed")
}

func TestUpdateCommitReadRoundTrip(t *testing.T) {
	m := newCore()
	doc := map[string]Value{"title": "hello"}
	require.NoError(t, m.Update(doc))
	hash, err := m.Commit(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	got, err := m.Read("")
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitWithNothingPendingIsNoOp(t *testing.T) {
	m := newCore()
	hash, err := m.Commit(nil)
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestUpdateUnchangedContentStagesNothingNew(t *testing.T) {
	m := newCore()
	doc := map[string]Value{"title": "hello"}
	require.NoError(t, m.Update(doc))
	_, err := m.Commit(nil)
	require.NoError(t, err)

	require.NoError(t, m.Update(doc)) // identical value again
	hash, err := m.Commit(nil)
	require.NoError(t, err)
	assert.Empty(t, hash, "re-committing unchanged content must be a no-op")
}

func TestUpdateFlattenedArrayTracksElementsIndividually(t *testing.T) {
	m := newCore()
	doc := map[string]Value{
		"items♭": []Value{
			map[string]Value{"_id": "i1", "text": "a"},
			map[string]Value{"_id": "i2", "text": "b"},
		},
	}
	require.NoError(t, m.Update(doc))
	_, err := m.Commit(nil)
	require.NoError(t, err)

	got, err := m.Read("")
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRemovingArrayElementTombstonesIt(t *testing.T) {
	m := newCore()
	doc1 := map[string]Value{"items♭": []Value{
		map[string]Value{"_id": "i1", "text": "a"},
		map[string]Value{"_id": "i2", "text": "b"},
	}}
	require.NoError(t, m.Update(doc1))
	_, err := m.Commit(nil)
	require.NoError(t, err)

	doc2 := map[string]Value{"items♭": []Value{
		map[string]Value{"_id": "i1", "text": "a"},
	}}
	require.NoError(t, m.Update(doc2))
	_, err = m.Commit(nil)
	require.NoError(t, err)

	got, err := m.Read("")
	require.NoError(t, err)
	if diff := cmp.Diff(doc2, got); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}

	tree := m.trees["i2"]
	require.NotNil(t, tree)
	assert.True(t, tree.IsDeleted())
}

func TestMeldConvergesTwoReplicas(t *testing.T) {
	a := newCore()
	require.NoError(t, a.Update(map[string]Value{"title": "v1"}))
	_, err := a.Commit(nil)
	require.NoError(t, err)

	b := newCore()
	_, err = b.Meld(a)
	require.NoError(t, err)

	got, err := b.Read("")
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]Value{"title": "v1"}, got); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}

func TestMeldIsIdempotent(t *testing.T) {
	a := newCore()
	require.NoError(t, a.Update(map[string]Value{"title": "v1"}))
	_, err := a.Commit(nil)
	require.NoError(t, err)

	b := newCore()
	stats1, err := b.Meld(a)
	require.NoError(t, err)
	assert.Equal(t, 1, stats1.BlocksImported)

	stats2, err := b.Meld(a)
	require.NoError(t, err)
	assert.True(t, stats2.NoOp(), "re-melding the same heads must import nothing")
}

func TestConcurrentUpdatesMeldToSameWinnerBothDirections(t *testing.T) {
	base := newCore()
	require.NoError(t, base.Update(map[string]Value{"title": "base"}))
	_, err := base.Commit(nil)
	require.NoError(t, err)

	a := newCore()
	_, err = a.Meld(base)
	require.NoError(t, err)
	b := newCore()
	_, err = b.Meld(base)
	require.NoError(t, err)

	require.NoError(t, a.Update(map[string]Value{"title": "from-a"}))
	_, err = a.Commit(nil)
	require.NoError(t, err)

	require.NoError(t, b.Update(map[string]Value{"title": "from-b"}))
	_, err = b.Commit(nil)
	require.NoError(t, err)

	_, err = a.Meld(b)
	require.NoError(t, err)
	_, err = b.Meld(a)
	require.NoError(t, err)

	gotA, err := a.Read("")
	require.NoError(t, err)
	gotB, err := b.Read("")
	require.NoError(t, err)
	if diff := cmp.Diff(gotA, gotB); diff != "" {
		t.Errorf("replicas did not converge to the same winning view (-a +b):\n%s", diff)
	}

	assert.NotEmpty(t, a.Conflicts(RootID), "the losing concurrent write must be retrievable as a conflict")
}

func TestMeldRejectsBlockWithUnresolvableParent(t *testing.T) {
	peer := newCore()
	ghost := Revision{Index: 9, Digest: "ghost"}
	orphan := DeltaBlock{Changes: []Change{{ObjectID: "x", Kind: ChangeUpdate, Revision: Revision{Index: 10, Digest: "d"}, Parent: &ghost}}}
	hash, err := orphan.Hash()
	require.NoError(t, err)
	require.NoError(t, peer.storage.WriteDeltaBlock(hash, orphan))
	peer.heads = map[string]bool{hash: true}

	m := newCore()
	_, err = m.Meld(peer)
	require.Error(t, err)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindUnknownParent, kind)
}
