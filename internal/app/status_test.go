package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/adapters/memory"
	"github.com/bft-labs/fieldsync/internal/domain"
)

func TestStatusTracker_StartsIdle(t *testing.T) {
	tr, err := NewStatusTracker(context.Background(), memory.NewStatusRepository(), &mockLogger{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncIdle, tr.Current().State)
}

func TestStatusTracker_RestoresInterruptedPassAsPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStatusRepository()
	last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, domain.SyncStatus{State: domain.SyncSyncing, LastSyncAt: last}))

	tr, err := NewStatusTracker(ctx, repo, &mockLogger{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncPending, tr.Current().State)
	assert.True(t, last.Equal(tr.Current().LastSyncAt))

	persisted, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncPending, persisted.State)
}

func TestStatusTracker_Set(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStatusRepository()
	events := &recordingEvents{}
	tr, err := NewStatusTracker(ctx, repo, &mockLogger{}, events)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	require.NoError(t, tr.Set(ctx, domain.SyncPending))
	assert.Equal(t, now, tr.Current().LastSyncAt, "every transition is stamped")

	later := now.Add(time.Minute)
	tr.now = func() time.Time { return later }
	require.NoError(t, tr.Set(ctx, domain.SyncPending))
	assert.Equal(t, 1, repo.Saves())
	assert.Equal(t, now, tr.Current().LastSyncAt, "repeating a non-synced state keeps the stamp")

	require.NoError(t, tr.Set(ctx, domain.SyncError))
	assert.Equal(t, later, tr.Current().LastSyncAt)

	now = later.Add(time.Minute)
	tr.now = func() time.Time { return now }
	require.NoError(t, tr.Set(ctx, domain.SyncSynced))
	assert.Equal(t, now, tr.Current().LastSyncAt)

	now = now.Add(time.Minute)
	require.NoError(t, tr.Set(ctx, domain.SyncSynced))
	assert.Equal(t, now, tr.Current().LastSyncAt, "synced always refreshes the timestamp")
	assert.Equal(t, 4, repo.Saves())

	persisted, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, persisted.LastSyncAt)
	assert.Equal(t, []domain.SyncState{domain.SyncPending, domain.SyncError, domain.SyncSynced}, events.Changes())
}

func TestStatusTracker_SaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStatusRepository()
	tr, err := NewStatusTracker(ctx, repo, &mockLogger{}, nil)
	require.NoError(t, err)

	repo.FailWith = errors.New("read-only filesystem")
	err = tr.Set(ctx, domain.SyncSyncing)
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err))
	assert.Equal(t, domain.SyncIdle, tr.Current().State)
}
