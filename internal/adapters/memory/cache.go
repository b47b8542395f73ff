package memory

import (
	"context"
	"sync"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// CacheStore implements ports.CacheStore in memory.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]domain.CacheEntry
}

var _ ports.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates an empty cache.
func NewCacheStore() *CacheStore {
	return &CacheStore{entries: make(map[domain.CacheKey]domain.CacheEntry)}
}

// Put replaces the entry for entry.Key.
func (c *CacheStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.Snapshot = append([]byte(nil), entry.Snapshot...)
	c.entries[entry.Key] = entry
	return nil
}

// Get returns the entry for key.
func (c *CacheStore) Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

// Delete removes key.
func (c *CacheStore) Delete(ctx context.Context, key domain.CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Clear removes everything.
func (c *CacheStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.CacheKey]domain.CacheEntry)
	return nil
}

// Len returns the number of cached entries.
func (c *CacheStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
