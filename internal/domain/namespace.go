package domain

import "strings"

// DefaultNamespace prefixes every persisted key so the queue does not collide
// with unrelated data sharing the same storage.
const DefaultNamespace = "fieldsync"

// Namespace derives the persisted key names.
type Namespace string

// OrDefault returns DefaultNamespace for an empty namespace.
func (n Namespace) OrDefault() Namespace {
	if strings.TrimSpace(string(n)) == "" {
		return DefaultNamespace
	}
	return n
}

// OperationsKey is the key of the pending operation list.
func (n Namespace) OperationsKey() string {
	return string(n.OrDefault()) + ":pending-operations"
}

// StatusKey is the key of the sync status record.
func (n Namespace) StatusKey() string {
	return string(n.OrDefault()) + ":sync-status"
}

// CachePrefix is the common prefix of every cache key.
func (n Namespace) CachePrefix() string {
	return string(n.OrDefault()) + ":cache:"
}

// CacheKey is the persisted name of a cache entry.
func (n Namespace) CacheKey(k CacheKey) string {
	return n.CachePrefix() + k.String()
}
