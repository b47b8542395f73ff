package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// Queue accepts local writes into the durable queue store.
type Queue struct {
	store  ports.QueueStore
	logger ports.Logger
	now    func() time.Time
}

// NewQueue creates a Queue over store.
func NewQueue(store ports.QueueStore, logger ports.Logger) *Queue {
	return &Queue{store: store, logger: logger, now: time.Now}
}

// Enqueue validates req structurally and appends it. It never touches the
// sync status and never talks to the network.
func (q *Queue) Enqueue(ctx context.Context, req domain.NewOperation) (domain.PendingOperation, error) {
	if err := req.Validate(); err != nil {
		return domain.PendingOperation{}, err
	}

	op := req.Build(q.now())
	if err := q.store.Append(ctx, op); err != nil {
		return domain.PendingOperation{}, domain.Storage("append", fmt.Errorf("enqueue %s: %w", op.ID, err))
	}

	q.logger.Debug("operation queued",
		ports.String("op_id", op.ID),
		ports.String("kind", string(op.Kind)),
		ports.String("resource", op.Resource),
	)
	return op, nil
}

// PendingCount returns the number of operations not yet accepted remotely,
// poisoned ones included.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.CountUnsynced(ctx)
}

// List returns a snapshot of every stored operation.
func (q *Queue) List(ctx context.Context) ([]domain.PendingOperation, error) {
	return q.store.List(ctx)
}

// Prune removes synced operations.
func (q *Queue) Prune(ctx context.Context) (int, error) {
	return q.store.PruneSynced(ctx)
}

// Dismiss drops one unsynced operation on operator request. The engine never
// calls it.
func (q *Queue) Dismiss(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.Dismiss(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		q.logger.Warn("operation dismissed", ports.String("op_id", id))
	}
	return ok, nil
}
