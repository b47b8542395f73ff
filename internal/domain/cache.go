package domain

import (
	"strings"
	"time"
)

// CacheKey addresses a cached snapshot. An empty ID addresses the list
// snapshot of the resource.
type CacheKey struct {
	Resource string
	ID       string
}

// ListKey returns the list key of a resource.
func ListKey(resource string) CacheKey {
	return CacheKey{Resource: resource}
}

// RecordKey returns the key of a single record.
func RecordKey(resource, id string) CacheKey {
	return CacheKey{Resource: resource, ID: id}
}

// IsList reports whether the key addresses a list snapshot.
func (k CacheKey) IsList() bool {
	return k.ID == ""
}

// String renders "resource" or "resource:id".
func (k CacheKey) String() string {
	if k.ID == "" {
		return k.Resource
	}
	return k.Resource + ":" + k.ID
}

// ParseCacheKey parses the String form.
func ParseCacheKey(s string) CacheKey {
	resource, id, _ := strings.Cut(s, ":")
	return CacheKey{Resource: resource, ID: id}
}

// CacheEntry is the last authoritative snapshot of a key. Entries are
// replaced whole, never merged.
type CacheEntry struct {
	Key      CacheKey
	Snapshot []byte
	StoredAt time.Time
}

// Age returns how old the snapshot is at now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}
