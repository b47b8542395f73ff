// Package storetest holds the behavioural tests every storage adapter must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

func newOp(resource, record string, at time.Time) domain.PendingOperation {
	return domain.NewOperation{
		Kind:     domain.KindCreate,
		Resource: resource,
		RecordID: record,
		Payload:  []byte(fmt.Sprintf(`{"record":%q}`, record)),
	}.Build(at)
}

// QueueStore exercises the ports.QueueStore contract against a fresh store
// returned by newStore.
func QueueStore(t *testing.T, newStore func(t *testing.T) ports.QueueStore) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		s := newStore(t)
		ops, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, ops)
		n, err := s.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("append keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		want := []domain.PendingOperation{
			newOp("patient", "p1", base),
			newOp("test", "t1", base.Add(time.Second)),
			newOp("patient", "p2", base.Add(2*time.Second)),
		}
		for _, op := range want {
			require.NoError(t, s.Append(ctx, op))
		}

		got, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID)
			assert.Equal(t, want[i].Kind, got[i].Kind)
			assert.Equal(t, want[i].Resource, got[i].Resource)
			assert.Equal(t, want[i].RecordID, got[i].RecordID)
			assert.JSONEq(t, string(want[i].Payload), string(got[i].Payload))
			assert.True(t, want[i].EnqueuedAt.Equal(got[i].EnqueuedAt))
			assert.False(t, got[i].Synced)
		}
	})

	t.Run("mark synced is idempotent", func(t *testing.T) {
		s := newStore(t)
		a, b := newOp("patient", "p1", base), newOp("patient", "p2", base.Add(time.Second))
		require.NoError(t, s.Append(ctx, a))
		require.NoError(t, s.Append(ctx, b))

		require.NoError(t, s.MarkSynced(ctx, a.ID))
		require.NoError(t, s.MarkSynced(ctx, a.ID))
		require.NoError(t, s.MarkSynced(ctx, "no-such-id"))

		n, err := s.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ops, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 2, "list is non-destructive and includes synced operations")
		assert.True(t, ops[0].Synced)
		assert.False(t, ops[1].Synced)
	})

	t.Run("mark failed poisons and counts", func(t *testing.T) {
		s := newStore(t)
		a := newOp("referral", "r1", base)
		require.NoError(t, s.Append(ctx, a))

		require.NoError(t, s.MarkFailed(ctx, a.ID, 3, "timeout", false))
		ops, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, ops[0].Attempts)
		assert.Equal(t, "timeout", ops[0].LastError)
		assert.False(t, ops[0].Poisoned)

		require.NoError(t, s.MarkFailed(ctx, a.ID, 4, "422 invalid", true))
		ops, err = s.List(ctx)
		require.NoError(t, err)
		assert.True(t, ops[0].Poisoned)
		assert.False(t, ops[0].Synced)

		n, err := s.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "poisoned operations stay pending")

		require.NoError(t, s.MarkFailed(ctx, "no-such-id", 1, "x", true))
	})

	t.Run("prune removes only synced", func(t *testing.T) {
		s := newStore(t)
		a, b, c := newOp("patient", "p1", base), newOp("patient", "p2", base.Add(time.Second)), newOp("test", "t1", base.Add(2*time.Second))
		for _, op := range []domain.PendingOperation{a, b, c} {
			require.NoError(t, s.Append(ctx, op))
		}
		require.NoError(t, s.MarkSynced(ctx, a.ID))
		require.NoError(t, s.MarkSynced(ctx, c.ID))

		pruned, err := s.PruneSynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, pruned)

		ops, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, b.ID, ops[0].ID)

		pruned, err = s.PruneSynced(ctx)
		require.NoError(t, err)
		assert.Zero(t, pruned)
	})

	t.Run("dismiss removes unsynced only", func(t *testing.T) {
		s := newStore(t)
		a, b := newOp("patient", "p1", base), newOp("patient", "p2", base.Add(time.Second))
		require.NoError(t, s.Append(ctx, a))
		require.NoError(t, s.Append(ctx, b))
		require.NoError(t, s.MarkSynced(ctx, a.ID))

		ok, err := s.Dismiss(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, ok, "synced operations are not dismissable")

		ok, err = s.Dismiss(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := s.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("concurrent append", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Append(ctx, newOp("patient", fmt.Sprint(i), base.Add(time.Duration(i)*time.Millisecond))))
			}(i)
		}
		wg.Wait()

		n, err := s.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, n)
	})

	t.Run("list is a snapshot", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Append(ctx, newOp("patient", "p1", base)))
		snap, err := s.List(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Append(ctx, newOp("patient", "p2", base.Add(time.Second))))
		snap[0].Payload[0] = 'X'

		assert.Len(t, snap, 1)
		ops, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, ops, 2)
		assert.Equal(t, byte('{'), ops[0].Payload[0])
	})
}

// StatusRepository exercises the ports.StatusRepository contract.
func StatusRepository(t *testing.T, newRepo func(t *testing.T) ports.StatusRepository) {
	ctx := context.Background()

	t.Run("zero when never saved", func(t *testing.T) {
		r := newRepo(t)
		st, err := r.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncIdle, st.State)
		assert.True(t, st.LastSyncAt.IsZero())
	})

	t.Run("round trip", func(t *testing.T) {
		r := newRepo(t)
		at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
		require.NoError(t, r.Save(ctx, domain.SyncStatus{State: domain.SyncError, LastSyncAt: at}))
		require.NoError(t, r.Save(ctx, domain.SyncStatus{State: domain.SyncPending, LastSyncAt: at.Add(time.Minute)}))

		st, err := r.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.SyncPending, st.State)
		assert.True(t, at.Add(time.Minute).Equal(st.LastSyncAt))
	})
}

// CacheStore exercises the ports.CacheStore contract.
func CacheStore(t *testing.T, newCache func(t *testing.T) ports.CacheStore) {
	ctx := context.Background()
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	t.Run("miss", func(t *testing.T) {
		c := newCache(t)
		_, ok, err := c.Get(ctx, domain.RecordKey("patient", "1"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put replaces whole entry", func(t *testing.T) {
		c := newCache(t)
		key := domain.RecordKey("patient", "1")
		require.NoError(t, c.Put(ctx, domain.CacheEntry{Key: key, Snapshot: []byte(`{"name":"A","age":3}`), StoredAt: at}))
		require.NoError(t, c.Put(ctx, domain.CacheEntry{Key: key, Snapshot: []byte(`{"name":"B"}`), StoredAt: at.Add(time.Hour)}))

		e, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"name":"B"}`, string(e.Snapshot))
		assert.True(t, at.Add(time.Hour).Equal(e.StoredAt))
		assert.Equal(t, key, e.Key)
	})

	t.Run("list and record keys are distinct", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, domain.CacheEntry{Key: domain.ListKey("patient"), Snapshot: []byte(`[]`), StoredAt: at}))

		_, ok, err := c.Get(ctx, domain.RecordKey("patient", "1"))
		require.NoError(t, err)
		assert.False(t, ok)

		e, ok, err := c.Get(ctx, domain.ListKey("patient"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `[]`, string(e.Snapshot))
	})

	t.Run("delete and clear", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, domain.CacheEntry{Key: domain.RecordKey("patient", "1"), Snapshot: []byte(`{}`), StoredAt: at}))
		require.NoError(t, c.Put(ctx, domain.CacheEntry{Key: domain.RecordKey("test", "2"), Snapshot: []byte(`{}`), StoredAt: at}))

		require.NoError(t, c.Delete(ctx, domain.RecordKey("patient", "1")))
		require.NoError(t, c.Delete(ctx, domain.RecordKey("patient", "missing")))
		_, ok, err := c.Get(ctx, domain.RecordKey("patient", "1"))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.Clear(ctx))
		_, ok, err = c.Get(ctx, domain.RecordKey("test", "2"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
