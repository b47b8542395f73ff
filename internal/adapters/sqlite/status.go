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

// statusRepository implements ports.StatusRepository as a single row keyed
// by the namespace's status key.
type statusRepository struct {
	store *Store
}

var _ ports.StatusRepository = (*statusRepository)(nil)

func (r *statusRepository) Load(ctx context.Context) (domain.SyncStatus, error) {
	var (
		state    string
		lastSync int64
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT state, last_sync_at FROM sync_status WHERE key = ?
	`, r.store.ns.StatusKey()).Scan(&state, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncStatus{}, nil
	}
	if err != nil {
		return domain.SyncStatus{}, domain.Storage("load status", fmt.Errorf("querying status: %w", err))
	}

	parsed, err := domain.ParseSyncState(state)
	if err != nil {
		return domain.SyncStatus{}, domain.Storage("load status", err)
	}
	st := domain.SyncStatus{State: parsed}
	if lastSync != 0 {
		st.LastSyncAt = time.Unix(0, lastSync)
	}
	return st, nil
}

func (r *statusRepository) Save(ctx context.Context, st domain.SyncStatus) error {
	var lastSync int64
	if !st.LastSyncAt.IsZero() {
		lastSync = st.LastSyncAt.UnixNano()
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sync_status (key, state, last_sync_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			last_sync_at = excluded.last_sync_at
	`, r.store.ns.StatusKey(), st.State.String(), lastSync)
	if err != nil {
		return domain.Storage("save status", fmt.Errorf("saving status: %w", err))
	}
	return nil
}
