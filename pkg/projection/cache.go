// Package projection holds the read-side cart cache: the last-known
// materialized cart per user, refreshed after successful writes.
package projection

import (
	"context"

	"github.com/plaenen/cartstore/pkg/domain"
)

// Entry is a cached cart snapshot. It is valid only while CachedVersion
// equals the event store's current version for the user's stream;
// staleness is detected by the caller, never silently trusted on a
// write path.
type Entry struct {
	UserID        string            `json:"user_id"`
	Snapshot      *domain.CartState `json:"snapshot"`
	CachedVersion int64             `json:"cached_version"`
}

// Cache maps a user identifier to their last-known materialized cart.
type Cache interface {
	// Get returns the cached entry for userID, or ok=false on a miss.
	Get(ctx context.Context, userID string) (*Entry, bool, error)

	// Put stores entry unless a newer version is already cached:
	// last-writer-wins by version, so an in-flight stale write can not
	// clobber a fresher one after a race.
	Put(ctx context.Context, entry *Entry) error

	// Invalidate drops the entry for userID. Used only on detected
	// disagreement between cache and event store.
	Invalidate(ctx context.Context, userID string) error
}

// NewEntry builds an entry from a snapshot, cloning it so the cache
// never shares line maps with the caller.
func NewEntry(snapshot *domain.CartState) *Entry {
	return &Entry{
		UserID:        snapshot.UserID,
		Snapshot:      snapshot.Clone(),
		CachedVersion: snapshot.Version,
	}
}
