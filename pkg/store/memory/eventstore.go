// Package memory provides an in-memory EventStore for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/plaenen/cartstore/pkg/domain"
)

// EventStore keeps every stream in process memory. Appends to one
// stream are serialized by a per-stream mutex; distinct streams never
// contend with each other. Safe for concurrent use.
type EventStore struct {
	mu      sync.RWMutex // guards the streams map itself
	streams map[string]*stream
}

type stream struct {
	mu     sync.RWMutex
	events []*domain.Event
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string]*stream),
	}
}

func (s *EventStore) stream(streamID string) *stream {
	s.mu.RLock()
	st, ok := s.streams[streamID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.streams[streamID]; !ok {
		st = &stream{}
		s.streams[streamID] = st
	}
	return st
}

// Append implements store.EventStore.
func (s *EventStore) Append(ctx context.Context, streamID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return expectedVersion, nil
	}

	st := s.stream(streamID)
	st.mu.Lock()
	defer st.mu.Unlock()

	currentVersion := int64(len(st.events))
	if currentVersion != expectedVersion {
		return 0, domain.ErrConcurrencyConflict
	}

	// Validate the whole batch before touching the stream: all-or-nothing.
	for i, evt := range events {
		if want := expectedVersion + int64(i) + 1; evt.Version != want {
			return 0, fmt.Errorf("event %d: expected version %d, got %d", i, want, evt.Version)
		}
		if evt.StreamID != streamID {
			return 0, fmt.Errorf("event %d: stream mismatch %q", i, evt.StreamID)
		}
	}

	st.events = append(st.events, events...)
	return int64(len(st.events)), nil
}

// Load implements store.EventStore.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]*domain.Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom implements store.EventStore.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, afterVersion int64) ([]*domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := s.stream(streamID)
	st.mu.RLock()
	defer st.mu.RUnlock()

	if afterVersion < 0 {
		afterVersion = 0
	}
	if afterVersion >= int64(len(st.events)) {
		return []*domain.Event{}, nil
	}

	out := make([]*domain.Event, len(st.events)-int(afterVersion))
	copy(out, st.events[afterVersion:])
	return out, nil
}

// Version implements store.EventStore.
func (s *EventStore) Version(ctx context.Context, streamID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	st := s.stream(streamID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return int64(len(st.events)), nil
}

// Close implements store.EventStore.
func (s *EventStore) Close() error {
	return nil
}
