package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// StatusTracker owns the persisted SyncStatus. It is the only writer.
type StatusTracker struct {
	mu      sync.Mutex
	repo    ports.StatusRepository
	current domain.SyncStatus
	logger  ports.Logger
	events  EventHandler
	now     func() time.Time
}

// NewStatusTracker loads the persisted status. A status persisted as syncing
// belongs to a pass that never finished and is restored as pending.
func NewStatusTracker(ctx context.Context, repo ports.StatusRepository, logger ports.Logger, events EventHandler) (*StatusTracker, error) {
	if events == nil {
		events = NopEventHandler{}
	}
	st, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}

	t := &StatusTracker{
		repo:    repo,
		current: st.Restored(),
		logger:  logger,
		events:  events,
		now:     time.Now,
	}

	if t.current.State != st.State {
		logger.Warn("previous sync pass did not finish",
			ports.String("persisted", st.State.String()),
			ports.String("restored", t.current.State.String()),
		)
		if err := repo.Save(ctx, t.current); err != nil {
			return nil, fmt.Errorf("save status: %w", err)
		}
	}
	return t, nil
}

// Current returns the in-memory status.
func (t *StatusTracker) Current() domain.SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Set moves to state, stamps LastSyncAt and persists the result. Every
// change of state is stamped, and so is a repeated synced since it marks
// another completed pass. Setting the current non-synced state again is a
// no-op.
func (t *StatusTracker) Set(ctx context.Context, state domain.SyncState) error {
	t.mu.Lock()
	prev := t.current
	if prev.State == state && state != domain.SyncSynced {
		t.mu.Unlock()
		return nil
	}

	next := domain.SyncStatus{State: state, LastSyncAt: t.now()}

	// Persist with a context that survives the caller's cancellation so a
	// shutdown mid-drain still records pending.
	if err := t.repo.Save(context.WithoutCancel(ctx), next); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("save status: %w", err)
	}
	t.current = next
	t.mu.Unlock()

	if prev.State != next.State {
		t.logger.Info("sync status changed",
			ports.String("from", prev.State.String()),
			ports.String("to", next.State.String()),
		)
		t.events.OnStatusChange(prev, next)
	}
	return nil
}
