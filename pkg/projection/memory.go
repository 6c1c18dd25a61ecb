package projection

import (
	"context"
	"sync"
)

// MemoryCache is an in-process Cache. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*Entry),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, userID string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}

	cp := *entry
	cp.Snapshot = entry.Snapshot.Clone()
	return &cp, true, nil
}

// Put implements Cache. A put with a lower version than the cached
// entry is a no-op.
func (c *MemoryCache) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[entry.UserID]; ok && existing.CachedVersion >= entry.CachedVersion {
		return nil
	}

	cp := *entry
	cp.Snapshot = entry.Snapshot.Clone()
	c.entries[entry.UserID] = &cp
	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
