package ports

import (
	"context"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// QueueStore owns pending operations until they are pruned.
// Implementations must allow Append while a drain pass works on a List snapshot.
// Failures are returned wrapped in domain.StorageError.
type QueueStore interface {
	// Append persists a new operation at the tail of the queue.
	Append(ctx context.Context, op domain.PendingOperation) error

	// List returns all operations, synced and unsynced, in insertion order.
	// The returned slice is a snapshot owned by the caller.
	List(ctx context.Context) ([]domain.PendingOperation, error)

	// CountUnsynced returns the number of operations not yet accepted remotely,
	// poisoned ones included.
	CountUnsynced(ctx context.Context) (int, error)

	// MarkSynced flags an operation as accepted. Unknown or already-synced
	// IDs are a no-op, never an error.
	MarkSynced(ctx context.Context, id string) error

	// MarkFailed records a failed pass for an operation: its attempt count,
	// the last error and, for permanent rejections, the poisoned flag.
	// Unknown or already-synced IDs are a no-op.
	MarkFailed(ctx context.Context, id string, attempts int, reason string, poisoned bool) error

	// PruneSynced removes every synced operation and returns how many went.
	PruneSynced(ctx context.Context) (int, error)

	// Dismiss removes a single unsynced operation on operator request.
	// Returns false if no unsynced operation has that ID.
	Dismiss(ctx context.Context, id string) (bool, error)
}

// HistoryStore is implemented by queue stores that archive pruned operations.
type HistoryStore interface {
	// History returns up to limit archived operations, most recent first.
	// A non-positive limit returns everything.
	History(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// PruneHistory deletes entries archived before cutoff.
	PruneHistory(ctx context.Context, cutoff time.Time) (int, error)
}
