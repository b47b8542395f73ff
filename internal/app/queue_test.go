package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/adapters/memory"
	"github.com/bft-labs/fieldsync/internal/domain"
)

func TestQueue_Enqueue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueueStore()
	q := NewQueue(store, &mockLogger{})

	op, err := q.Enqueue(ctx, domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: []byte(`{"name":"A"}`)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(op.ID, "patient-"))
	assert.False(t, op.Synced)
	assert.False(t, op.EnqueuedAt.IsZero())

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_EnqueueRejectsInvalid(t *testing.T) {
	q := NewQueue(memory.NewQueueStore(), &mockLogger{})

	tests := []struct {
		name string
		req  domain.NewOperation
	}{
		{"unknown kind", domain.NewOperation{Kind: "upsert", Resource: "patient"}},
		{"empty resource", domain.NewOperation{Kind: domain.KindCreate, Resource: " "}},
		{"bad payload", domain.NewOperation{Kind: domain.KindCreate, Resource: "patient", Payload: []byte(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidOperation)
		})
	}
}

func TestQueue_EnqueueStorageError(t *testing.T) {
	store := memory.NewQueueStore()
	store.FailWith = errors.New("quota exceeded")
	q := NewQueue(store, &mockLogger{})

	_, err := q.Enqueue(context.Background(), domain.NewOperation{Kind: domain.KindDelete, Resource: "test", RecordID: "t1"})
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err))
}

func TestQueue_Dismiss(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(memory.NewQueueStore(), &mockLogger{})
	op, err := q.Enqueue(ctx, domain.NewOperation{Kind: domain.KindCreate, Resource: "patient"})
	require.NoError(t, err)

	ok, err := q.Dismiss(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Dismiss(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
