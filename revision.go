package melda

import (
	"strconv"
	"strings"
)

// deletionDigestPrefix marks a revision's digest as a deletion tombstone
// rather than a content hash (spec §4.2: "a marker derived from the
// parent digest with a fixed transformation... distinguishable from any
// content hash"). Content hashes are hex and never contain this prefix,
// since hex alphabets are [0-9a-f].
const deletionDigestPrefix = "tomb:"

// Revision identifies one version of one object: a positive generation
// counter Index and a hex (or tombstone) digest Digest. Revisions are
// totally ordered by (Index desc, Digest desc), see Less.
type Revision struct {
	Index  int
	Digest string
}

// String renders a revision in its canonical "<index>-<digest>" form.
func (r Revision) String() string {
	return strconv.Itoa(r.Index) + "-" + r.Digest
}

// IsZero reports whether r is the zero Revision, used as the sentinel for
// "no parent revision".
func (r Revision) IsZero() bool {
	return r.Index == 0 && r.Digest == ""
}

// IsDeletion reports whether r is a deletion tombstone.
func (r Revision) IsDeletion() bool {
	return strings.HasPrefix(r.Digest, deletionDigestPrefix)
}

// Less reports whether r sorts before other under the revision total
// order: higher Index wins, ties broken by the lexicographically greater
// Digest (spec §4.3, "the one with the higher digest wins deterministically").
// Less here is "comes before in ascending order"; callers picking a
// winner want the maximum, i.e. !Less(winner, other) for all other.
func (r Revision) Less(other Revision) bool {
	if r.Index != other.Index {
		return r.Index < other.Index
	}
	return r.Digest < other.Digest
}

// ParseRevision parses a "<index>-<digest>" string produced by
// Revision.String.
func ParseRevision(s string) (Revision, error) {
	i := strings.IndexByte(s, '-')
	if i <= 0 {
		return Revision{}, newError(KindBadRevision, nil, "malformed revision %q", s)
	}
	idx, err := strconv.Atoi(s[:i])
	if err != nil || idx <= 0 {
		return Revision{}, newError(KindBadRevision, err, "revision index must be a positive integer, got %q", s[:i])
	}
	digest := s[i+1:]
	if digest == "" {
		return Revision{}, newError(KindBadRevision, nil, "revision %q is missing a digest", s)
	}
	return Revision{Index: idx, Digest: digest}, nil
}

// NewContentRevision allocates the revision for a non-deletion change:
// content hashed to digest, one generation past parent (parent.IsZero()
// for the object's first revision).
func NewContentRevision(parent Revision, digest string) Revision {
	return Revision{Index: parent.Index + 1, Digest: digest}
}

// NewDeletionRevision allocates the tombstone revision that follows
// parent. The digest is derived deterministically from the parent's own
// digest so that any two replicas deleting the same revision compute the
// identical tombstone (spec §4.2's determinism requirement), which is
// what makes repeated or concurrent deletes of the same object converge
// to one node in the RevisionTree instead of several.
func NewDeletionRevision(parent Revision) Revision {
	return Revision{Index: parent.Index + 1, Digest: deletionDigestPrefix + hashBytes([]byte(parent.String()))}
}
