// Package store defines the persistence contract for cart event streams.
package store

import (
	"context"

	"github.com/plaenen/cartstore/pkg/domain"
)

// EventStore persists and retrieves per-user cart event streams.
//
// Appends to one stream are serialized by the implementation; appends to
// distinct streams proceed independently. Reads never block writers and
// always observe a prefix of the stream consistent with the append order,
// never a torn append.
type EventStore interface {
	// Append atomically appends events to a stream if its current highest
	// sequence number equals expectedVersion, assigning consecutive
	// sequence numbers from expectedVersion+1, and returns the new
	// version. On a version mismatch it returns
	// domain.ErrConcurrencyConflict and writes nothing.
	Append(ctx context.Context, streamID string, expectedVersion int64, events []*domain.Event) (int64, error)

	// Load returns the full ordered event sequence for a stream. A
	// stream with no events yields an empty slice, not an error.
	Load(ctx context.Context, streamID string) ([]*domain.Event, error)

	// LoadFrom returns the ordered events with sequence numbers greater
	// than afterVersion. Used for incremental cache refresh.
	LoadFrom(ctx context.Context, streamID string, afterVersion int64) ([]*domain.Event, error)

	// Version returns the stream's current highest sequence number, or 0
	// for a stream with no events.
	Version(ctx context.Context, streamID string) (int64, error)

	// Close releases resources held by the store.
	Close() error
}
