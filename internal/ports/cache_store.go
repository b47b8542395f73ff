package ports

import (
	"context"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// CacheStore persists snapshots for offline reads. Put replaces the whole entry.
type CacheStore interface {
	Put(ctx context.Context, entry domain.CacheEntry) error

	// Get returns false when nothing is cached for key.
	Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, bool, error)

	// Delete removes the entry; missing keys are not an error.
	Delete(ctx context.Context, key domain.CacheKey) error

	// Clear removes every entry of the namespace.
	Clear(ctx context.Context) error
}
