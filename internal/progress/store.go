package progress

import "errors"

// ErrNotFound is returned by operations that require an existing record.
var ErrNotFound = errors.New("progress record not found")

// Store is the local progress store: durable, synchronous, client-local.
// It is the single owner of record mutation; everything else reads or
// submits Patches. No implementation may touch the network.
//
// Read operations never fail: corrupt or unreadable entries are treated as
// absent, because a damaged cache must never break resume.
type Store interface {
	// Get returns the record for key, if one exists.
	Get(key ContentKey) (ProgressRecord, bool)
	// Upsert merges p into the record for key (creating it if needed) and
	// returns the resulting record plus whether the patch was applied;
	// false means the stale-write guard rejected it.
	Upsert(key ContentKey, p Patch) (ProgressRecord, bool, error)
	// ListRecent returns up to limit records ordered by UpdatedAtMs
	// descending (the continue-watching view).
	ListRecent(limit int) []ProgressRecord
	// Remove deletes the record for key. Removing an absent key is a no-op.
	Remove(key ContentKey) error
	Close() error
}
