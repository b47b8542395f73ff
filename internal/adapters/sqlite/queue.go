package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// QueueStore implements ports.QueueStore.
type QueueStore struct {
	store *Store
}

var (
	_ ports.QueueStore   = (*QueueStore)(nil)
	_ ports.HistoryStore = (*QueueStore)(nil)
)

const operationColumns = `id, kind, resource, record_id, payload, enqueued_at, synced, poisoned, last_error, attempts`

// Append inserts op at the tail of the queue.
func (q *QueueStore) Append(ctx context.Context, op domain.PendingOperation) error {
	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO pending_operations (namespace, `+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(q.store.ns), op.ID, string(op.Kind), op.Resource, op.RecordID, []byte(op.Payload),
		op.EnqueuedAt.UnixNano(), boolToInt(op.Synced), boolToInt(op.Poisoned), op.LastError, op.Attempts)
	if err != nil {
		return domain.Storage("append", fmt.Errorf("inserting operation: %w", err))
	}
	return nil
}

// List returns every operation of the namespace in insertion order.
func (q *QueueStore) List(ctx context.Context) ([]domain.PendingOperation, error) {
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT `+operationColumns+`
		FROM pending_operations
		WHERE namespace = ?
		ORDER BY seq
	`, string(q.store.ns))
	if err != nil {
		return nil, domain.Storage("list", fmt.Errorf("querying operations: %w", err))
	}
	defer rows.Close()

	var ops []domain.PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, domain.Storage("list", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list", fmt.Errorf("iterating operations: %w", err))
	}
	return ops, nil
}

// CountUnsynced counts operations not yet accepted remotely.
func (q *QueueStore) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := q.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_operations WHERE namespace = ? AND synced = 0
	`, string(q.store.ns)).Scan(&n)
	if err != nil {
		return 0, domain.Storage("count", fmt.Errorf("counting operations: %w", err))
	}
	return n, nil
}

// MarkSynced flags id as synced. Unknown or already-synced ids are a no-op.
func (q *QueueStore) MarkSynced(ctx context.Context, id string) error {
	_, err := q.store.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET synced = 1, poisoned = 0, last_error = ''
		WHERE namespace = ? AND id = ? AND synced = 0
	`, string(q.store.ns), id)
	if err != nil {
		return domain.Storage("mark synced", fmt.Errorf("updating operation: %w", err))
	}
	return nil
}

// MarkFailed records a failed attempt on an unsynced operation.
func (q *QueueStore) MarkFailed(ctx context.Context, id string, attempts int, reason string, poisoned bool) error {
	_, err := q.store.db.ExecContext(ctx, `
		UPDATE pending_operations
		SET attempts = ?, last_error = ?, poisoned = MAX(poisoned, ?)
		WHERE namespace = ? AND id = ? AND synced = 0
	`, attempts, reason, boolToInt(poisoned), string(q.store.ns), id)
	if err != nil {
		return domain.Storage("mark failed", fmt.Errorf("updating operation: %w", err))
	}
	return nil
}

// PruneSynced moves synced operations into operation_history.
func (q *QueueStore) PruneSynced(ctx context.Context) (int, error) {
	tx, err := q.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Storage("prune", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	ns := string(q.store.ns)
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO operation_history
			(namespace, id, kind, resource, record_id, payload, enqueued_at, attempts, pruned_at)
		SELECT namespace, id, kind, resource, record_id, payload, enqueued_at, attempts, ?
		FROM pending_operations
		WHERE namespace = ? AND synced = 1
	`, time.Now().UnixNano(), ns); err != nil {
		return 0, domain.Storage("prune", fmt.Errorf("archiving operations: %w", err))
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_operations WHERE namespace = ? AND synced = 1`, ns)
	if err != nil {
		return 0, domain.Storage("prune", fmt.Errorf("deleting operations: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Storage("prune", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.Storage("prune", fmt.Errorf("committing: %w", err))
	}
	return int(n), nil
}

// Dismiss removes one unsynced operation.
func (q *QueueStore) Dismiss(ctx context.Context, id string) (bool, error) {
	res, err := q.store.db.ExecContext(ctx, `
		DELETE FROM pending_operations WHERE namespace = ? AND id = ? AND synced = 0
	`, string(q.store.ns), id)
	if err != nil {
		return false, domain.Storage("dismiss", fmt.Errorf("deleting operation: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Storage("dismiss", err)
	}
	return n > 0, nil
}

// History returns up to limit pruned operations, most recent first.
// A non-positive limit returns everything.
func (q *QueueStore) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT id, kind, resource, record_id, payload, enqueued_at, attempts, pruned_at
		FROM operation_history
		WHERE namespace = ?
		ORDER BY pruned_at DESC, enqueued_at DESC
		LIMIT ?
	`, string(q.store.ns), limit)
	if err != nil {
		return nil, domain.Storage("history", fmt.Errorf("querying history: %w", err))
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			h                    domain.HistoryEntry
			kind                 string
			payload              []byte
			enqueuedAt, prunedAt int64
		)
		if err := rows.Scan(&h.Operation.ID, &kind, &h.Operation.Resource, &h.Operation.RecordID,
			&payload, &enqueuedAt, &h.Operation.Attempts, &prunedAt); err != nil {
			return nil, domain.Storage("history", fmt.Errorf("scanning history: %w", err))
		}
		h.Operation.Kind = domain.OperationKind(kind)
		h.Operation.Payload = payload
		h.Operation.EnqueuedAt = time.Unix(0, enqueuedAt)
		h.Operation.Synced = true
		h.PrunedAt = time.Unix(0, prunedAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("history", err)
	}
	return out, nil
}

// PruneHistory deletes history entries pruned before cutoff.
func (q *QueueStore) PruneHistory(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := q.store.db.ExecContext(ctx, `
		DELETE FROM operation_history WHERE namespace = ? AND pruned_at < ?
	`, string(q.store.ns), cutoff.UnixNano())
	if err != nil {
		return 0, domain.Storage("prune history", fmt.Errorf("deleting history: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Storage("prune history", err)
	}
	return int(n), nil
}

func scanOperation(rows *sql.Rows) (domain.PendingOperation, error) {
	var (
		op               domain.PendingOperation
		kind             string
		payload          []byte
		enqueuedAt       int64
		synced, poisoned int
	)
	if err := rows.Scan(&op.ID, &kind, &op.Resource, &op.RecordID, &payload,
		&enqueuedAt, &synced, &poisoned, &op.LastError, &op.Attempts); err != nil {
		return op, fmt.Errorf("scanning operation: %w", err)
	}
	op.Kind = domain.OperationKind(kind)
	op.Payload = payload
	op.EnqueuedAt = time.Unix(0, enqueuedAt)
	op.Synced = synced != 0
	op.Poisoned = poisoned != 0
	return op, nil
}
