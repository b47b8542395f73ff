package ports

import (
	"context"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// StatusRepository handles sync status persistence across restarts.
type StatusRepository interface {
	// Load retrieves the last saved status.
	// Returns a zero status (idle) and nil error if none was saved.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (domain.SyncStatus, error)

	// Save persists the status. Implementations write atomically.
	Save(ctx context.Context, status domain.SyncStatus) error
}
