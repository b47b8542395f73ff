package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/adapters/memory"
	"github.com/bft-labs/fieldsync/internal/domain"
)

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, domain.CacheKey) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func TestCache_ReadThroughWhenOnline(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCacheStore()
	fetcher := &fakeFetcher{data: []byte(`[{"id":"p1"}]`)}
	c := NewCache(store, fetcher, newFakeConn(true), 0, &mockLogger{})

	key := domain.ListKey("patient")
	data, err := c.Read(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(data))

	entry, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(entry.Snapshot))
}

func TestCache_ReadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	key := domain.RecordKey("patient", "p1")

	tests := []struct {
		name   string
		online bool
		err    error
	}{
		{"offline", false, nil},
		{"fetch fails", true, domain.Transient(errors.New("server returned 503"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{data: []byte(`{"fresh":true}`), err: tt.err}
			c := NewCache(memory.NewCacheStore(), fetcher, newFakeConn(tt.online), 0, &mockLogger{})
			require.NoError(t, c.Put(ctx, key, []byte(`{"id":"p1"}`)))

			data, err := c.Read(ctx, key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"p1"}`, string(data))
			if !tt.online {
				assert.Zero(t, fetcher.calls)
			}
		})
	}
}

func TestCache_ReadWithoutData(t *testing.T) {
	c := NewCache(memory.NewCacheStore(), nil, newFakeConn(false), 0, &mockLogger{})

	_, err := c.Read(context.Background(), domain.ListKey("referral"))
	assert.ErrorIs(t, err, domain.ErrNoOfflineData)
}

func TestCache_PutReplacesAndClear(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCacheStore()
	c := NewCache(store, nil, newFakeConn(true), 0, &mockLogger{})
	key := domain.RecordKey("test", "t1")

	require.NoError(t, c.Put(ctx, key, []byte(`{"a":1,"b":2}`)))
	require.NoError(t, c.Put(ctx, key, []byte(`{"a":3}`)))
	entry, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":3}`, string(entry.Snapshot))

	require.NoError(t, c.Put(ctx, domain.ListKey("test"), []byte(`[]`)))
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, store.Len())
}
