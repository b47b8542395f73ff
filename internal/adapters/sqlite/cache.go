package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// cacheStore implements ports.CacheStore.
type cacheStore struct {
	store *Store
}

var _ ports.CacheStore = (*cacheStore)(nil)

func (c *cacheStore) Put(ctx context.Context, e domain.CacheEntry) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, namespace, resource, record_id, snapshot, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			snapshot = excluded.snapshot,
			stored_at = excluded.stored_at
	`, c.store.ns.CacheKey(e.Key), string(c.store.ns), e.Key.Resource, e.Key.ID, e.Snapshot, e.StoredAt.UnixNano())
	if err != nil {
		return domain.Storage("cache put", fmt.Errorf("saving cache entry: %w", err))
	}
	return nil
}

func (c *cacheStore) Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, bool, error) {
	var (
		snapshot []byte
		storedAt int64
	)
	err := c.store.db.QueryRowContext(ctx, `
		SELECT snapshot, stored_at FROM cache_entries WHERE key = ?
	`, c.store.ns.CacheKey(key)).Scan(&snapshot, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, domain.Storage("cache get", fmt.Errorf("querying cache entry: %w", err))
	}
	return domain.CacheEntry{Key: key, Snapshot: snapshot, StoredAt: time.Unix(0, storedAt)}, true, nil
}

func (c *cacheStore) Delete(ctx context.Context, key domain.CacheKey) error {
	if _, err := c.store.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, c.store.ns.CacheKey(key)); err != nil {
		return domain.Storage("cache delete", fmt.Errorf("deleting cache entry: %w", err))
	}
	return nil
}

func (c *cacheStore) Clear(ctx context.Context) error {
	if _, err := c.store.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, string(c.store.ns)); err != nil {
		return domain.Storage("cache clear", fmt.Errorf("clearing cache: %w", err))
	}
	return nil
}
