package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/adapters/storetest"
	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

func openTestStore(t *testing.T, dir string, ns domain.Namespace) *Store {
	t.Helper()
	s, err := Open(dir, ns)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueStore(t *testing.T) {
	storetest.QueueStore(t, func(t *testing.T) ports.QueueStore {
		return openTestStore(t, t.TempDir(), "").QueueStore()
	})
}

func TestStatusRepository(t *testing.T) {
	storetest.StatusRepository(t, func(t *testing.T) ports.StatusRepository {
		return openTestStore(t, t.TempDir(), "").StatusRepository()
	})
}

func TestCacheStore(t *testing.T) {
	storetest.CacheStore(t, func(t *testing.T) ports.CacheStore {
		return openTestStore(t, t.TempDir(), "").CacheStore()
	})
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, "clinic")
	require.NoError(t, err)
	op := domain.NewOperation{Kind: domain.KindUpdate, Resource: "patient", RecordID: "p1", Payload: []byte(`{"age":40}`)}.Build(time.Now())
	require.NoError(t, s.QueueStore().Append(ctx, op))
	require.NoError(t, s.Close())

	s = openTestStore(t, dir, "clinic")
	ops, err := s.QueueStore().List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)
	assert.Equal(t, "p1", ops[0].RecordID)
	assert.JSONEq(t, `{"age":40}`, string(ops[0].Payload))
	assert.True(t, op.EnqueuedAt.Equal(ops[0].EnqueuedAt))

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 2, versions)
}

func TestQueueStore_PruneMovesToHistory(t *testing.T) {
	ctx := context.Background()
	q := openTestStore(t, t.TempDir(), "").QueueStore()

	at := time.Now()
	a := domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: []byte(`{}`)}.Build(at)
	b := domain.NewOperation{Kind: domain.KindDelete, Resource: "test", RecordID: "t9"}.Build(at.Add(time.Millisecond))
	require.NoError(t, q.Append(ctx, a))
	require.NoError(t, q.Append(ctx, b))
	require.NoError(t, q.MarkSynced(ctx, a.ID))

	n, err := q.PruneSynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hist, err := q.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, a.ID, hist[0].Operation.ID)
	assert.True(t, hist[0].Operation.Synced)
	assert.False(t, hist[0].PrunedAt.IsZero())

	left, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, b.ID, left[0].ID)
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := openTestStore(t, dir, "a")
	b := openTestStore(t, dir, "b")

	op := domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: []byte(`{}`)}.Build(time.Now())
	require.NoError(t, a.QueueStore().Append(ctx, op))

	n, err := b.QueueStore().CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, a.StatusRepository().Save(ctx, domain.SyncStatus{State: domain.SyncPending}))
	st, err := b.StatusRepository().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncIdle, st.State)

	key := domain.RecordKey("patient", "p1")
	require.NoError(t, a.CacheStore().Put(ctx, domain.CacheEntry{Key: key, Snapshot: []byte(`{"id":"p1"}`), StoredAt: time.Now()}))
	require.NoError(t, b.CacheStore().Clear(ctx))
	_, ok, err := a.CacheStore().Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueueStore_PruneHistory(t *testing.T) {
	ctx := context.Background()
	q := openTestStore(t, t.TempDir(), "").QueueStore()

	op := domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: []byte(`{}`)}.Build(time.Now())
	require.NoError(t, q.Append(ctx, op))
	require.NoError(t, q.MarkSynced(ctx, op.ID))
	_, err := q.PruneSynced(ctx)
	require.NoError(t, err)

	n, err := q.PruneHistory(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.PruneHistory(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hist, err := q.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestStore_DiskUsage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), "")

	before, err := s.DiskUsage(ctx)
	require.NoError(t, err)
	assert.Positive(t, before)

	payload := []byte(`{"notes":"` + strings.Repeat("x", 64<<10) + `"}`)
	op := domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: payload}.Build(time.Now())
	require.NoError(t, s.QueueStore().Append(ctx, op))

	after, err := s.DiskUsage(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)
}
