package melda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevisionStringRoundTrip(t *testing.T) {
	r := Revision{Index: 3, Digest: "abc123"}
	parsed, err := ParseRevision(r.String())
	require.NoError(t, err)
	assert.Equal(t, r, parsed)
}

func TestParseRevisionRejectsMalformed(t *testing.T) {
	cases := []string{"", "abc", "0-abc", "-1-abc", "3-"}
	for _, s := range cases {
		_, err := ParseRevision(s)
		require.Error(t, err, "expected %q to be rejected", s)
		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, KindBadRevision, kind)
	}
}

func TestRevisionLessOrdersByIndexThenDigest(t *testing.T) {
	low := Revision{Index: 1, Digest: "zzz"}
	high := Revision{Index: 2, Digest: "aaa"}
	assert.True(t, low.Less(high), "lower index must sort first regardless of digest")

	a := Revision{Index: 5, Digest: "aaa"}
	b := Revision{Index: 5, Digest: "bbb"}
	assert.True(t, a.Less(b), "equal index ties break on digest")
}

func TestNewContentRevisionIncrementsIndex(t *testing.T) {
	parent := Revision{Index: 4, Digest: "p"}
	rev := NewContentRevision(parent, "child-digest")
	assert.Equal(t, 5, rev.Index)
	assert.Equal(t, "child-digest", rev.Digest)
	assert.False(t, rev.IsDeletion())
}

func TestNewDeletionRevisionIsDeterministic(t *testing.T) {
	parent := Revision{Index: 2, Digest: "p"}
	a := NewDeletionRevision(parent)
	b := NewDeletionRevision(parent)
	assert.Equal(t, a, b, "two replicas deleting the same revision must compute the identical tombstone")
	assert.True(t, a.IsDeletion())
	assert.False(t, a.IsZero())
}

func TestRevisionIsZero(t *testing.T) {
	assert.True(t, Revision{}.IsZero())
	assert.False(t, Revision{Index: 1, Digest: "x"}.IsZero())
}
