package app

import (
	"context"
	"errors"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// DefaultFetchTimeout bounds a read-through fetch.
const DefaultFetchTimeout = 10 * time.Second

// Cache serves last-known snapshots for offline reads.
type Cache struct {
	store   ports.CacheStore
	fetcher ports.Fetcher
	conn    ports.Connectivity
	timeout time.Duration
	logger  ports.Logger
	now     func() time.Time
}

// NewCache creates a cache over store. fetcher may be nil, in which case
// Read only serves what was Put.
func NewCache(store ports.CacheStore, fetcher ports.Fetcher, conn ports.Connectivity, timeout time.Duration, logger ports.Logger) *Cache {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Cache{
		store:   store,
		fetcher: fetcher,
		conn:    conn,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Put replaces the snapshot stored under key.
func (c *Cache) Put(ctx context.Context, key domain.CacheKey, snapshot []byte) error {
	return c.store.Put(ctx, domain.CacheEntry{Key: key, Snapshot: snapshot, StoredAt: c.now()})
}

// Get returns the cached entry for key without touching the network.
func (c *Cache) Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, bool, error) {
	return c.store.Get(ctx, key)
}

// Read returns the freshest snapshot it can: fetched from the remote when
// online, otherwise the cached one. It returns domain.ErrNoOfflineData when
// neither is available.
func (c *Cache) Read(ctx context.Context, key domain.CacheKey) ([]byte, error) {
	if c.fetcher != nil && c.conn.Online() {
		fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		data, err := c.fetcher.Fetch(fetchCtx, key)
		cancel()
		if err == nil {
			if err := c.Put(ctx, key, data); err != nil {
				c.logger.Warn("failed to cache snapshot", ports.String("key", key.String()), ports.Err(err))
			}
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("fetch failed, serving cached snapshot",
			ports.String("key", key.String()),
			ports.Err(err),
		)
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoOfflineData
	}
	return entry.Snapshot, nil
}

// Clear removes every cached snapshot of the namespace.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// applyAck reconciles the cache with a confirmed operation: the record
// snapshot is replaced or removed and the resource list is invalidated.
func (c *Cache) applyAck(ctx context.Context, op domain.PendingOperation, ack domain.Ack) error {
	var errs []error
	if op.RecordID != "" {
		key := domain.RecordKey(op.Resource, op.RecordID)
		switch {
		case op.Kind == domain.KindDelete:
			errs = append(errs, c.store.Delete(ctx, key))
		case ack.Snapshot != nil:
			errs = append(errs, c.Put(ctx, key, ack.Snapshot))
		}
	}
	errs = append(errs, c.store.Delete(ctx, domain.ListKey(op.Resource)))
	return errors.Join(errs...)
}
