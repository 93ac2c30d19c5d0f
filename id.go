package melda

import "github.com/google/uuid"

// NewID mints a fresh object identifier for a sub-object a caller is
// creating that doesn't carry one yet. The core itself never requires
// ids to be UUIDs — they are opaque strings per spec §3 — this is a
// convenience constructor only.
func NewID() string {
	return uuid.NewString()
}
