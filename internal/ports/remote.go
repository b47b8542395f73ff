package ports

import (
	"context"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// Remote applies queued operations to the authoritative backend.
//
// Apply must be idempotent per operation ID: a retry of an operation whose
// acknowledgment was lost must not apply it twice. Errors are classified with
// domain.TransientError (retry) or domain.PermanentError (poison); an
// unclassified error is treated as transient.
type Remote interface {
	Apply(ctx context.Context, op domain.PendingOperation) (domain.Ack, error)
}

// Fetcher reads authoritative snapshots for the cache layer.
type Fetcher interface {
	Fetch(ctx context.Context, key domain.CacheKey) ([]byte, error)
}
