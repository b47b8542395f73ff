package memory

import (
	"context"
	"sync"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// StatusRepository implements ports.StatusRepository in memory.
type StatusRepository struct {
	mu     sync.Mutex
	status domain.SyncStatus
	saves  int

	// FailWith, when set, makes Save fail with a storage error.
	FailWith error
}

var _ ports.StatusRepository = (*StatusRepository)(nil)

// NewStatusRepository creates a repository holding the zero (idle) status.
func NewStatusRepository() *StatusRepository {
	return &StatusRepository{}
}

// Load returns the saved status.
func (r *StatusRepository) Load(ctx context.Context) (domain.SyncStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, nil
}

// Save stores status.
func (r *StatusRepository) Save(ctx context.Context, status domain.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return domain.Storage("save status", r.FailWith)
	}
	r.status = status
	r.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (r *StatusRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
