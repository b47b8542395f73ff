package fs

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// CacheFileStore implements ports.CacheStore with one JSON file per key.
type CacheFileStore struct {
	dir    string
	prefix string
}

type cacheDoc struct {
	Key      string          `json:"key"`
	Snapshot json.RawMessage `json:"snapshot"`
	StoredAt time.Time       `json:"stored_at"`
}

// NewCacheFileStore creates a cache in dir for the namespace.
func NewCacheFileStore(dir string, ns domain.Namespace) *CacheFileStore {
	return &CacheFileStore{
		dir:    dir,
		prefix: strings.ReplaceAll(ns.CachePrefix(), ":", "."),
	}
}

func (c *CacheFileStore) path(k domain.CacheKey) string {
	return filepath.Join(c.dir, c.prefix+url.PathEscape(k.String())+".json")
}

// Put replaces the entry for entry.Key.
func (c *CacheFileStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	doc := cacheDoc{
		Key:      entry.Key.String(),
		Snapshot: entry.Snapshot,
		StoredAt: entry.StoredAt,
	}
	if !json.Valid(doc.Snapshot) {
		// Non-JSON snapshots are stored as a JSON string.
		raw, err := json.Marshal(string(entry.Snapshot))
		if err != nil {
			return domain.Storage("cache put", err)
		}
		doc.Snapshot = raw
	}
	return domain.Storage("cache put", writeJSON(c.dir, c.path(entry.Key), doc))
}

// Get returns the entry for key.
func (c *CacheFileStore) Get(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, bool, error) {
	var doc cacheDoc
	ok, err := readJSON(c.path(key), &doc)
	if err != nil {
		return domain.CacheEntry{}, false, domain.Storage("cache get", err)
	}
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	return domain.CacheEntry{
		Key:      domain.ParseCacheKey(doc.Key),
		Snapshot: []byte(doc.Snapshot),
		StoredAt: doc.StoredAt,
	}, true, nil
}

// Delete removes key.
func (c *CacheFileStore) Delete(ctx context.Context, key domain.CacheKey) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Storage("cache delete", err)
	}
	return nil
}

// Clear removes every cache file of the namespace.
func (c *CacheFileStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.Storage("cache clear", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, c.prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return domain.Storage("cache clear", err)
		}
	}
	return nil
}
