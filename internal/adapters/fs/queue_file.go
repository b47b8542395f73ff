package fs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// QueueFileStore implements ports.QueueStore as a single JSON array that is
// rewritten on every mutation. It suits small queues on devices without sqlite.
//
// Several processes may share the directory: every call takes an advisory
// lock on a sibling ".lock" file and re-reads the array, so no call acts on a
// copy another process has since replaced.
type QueueFileStore struct {
	mu       sync.Mutex
	dir      string
	path     string
	lockPath string
}

// NewQueueFileStore creates a queue persisted in dir under the namespace's
// operations key.
func NewQueueFileStore(dir string, ns domain.Namespace) *QueueFileStore {
	path := filepath.Join(dir, fileName(ns.OperationsKey()))
	return &QueueFileStore{
		dir:      dir,
		path:     path,
		lockPath: path + ".lock",
	}
}

// Path returns the full path to the queue file.
func (s *QueueFileStore) Path() string {
	return s.path
}

// locked runs fn on the current file contents while holding both the
// in-process mutex and the inter-process lock. When fn returns a non-nil
// slice it replaces the file.
func (s *QueueFileStore) locked(ctx context.Context, name string, fn func(ops []domain.PendingOperation) []domain.PendingOperation) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := acquireLock(ctx, s.lockPath)
	if err != nil {
		return domain.Storage(name, err)
	}
	defer func() {
		if rerr := release(); rerr != nil {
			err = errors.Join(err, domain.Storage(name, rerr))
		}
	}()

	var ops []domain.PendingOperation
	if _, err := readJSON(s.path, &ops); err != nil {
		return domain.Storage(name, err)
	}
	next := fn(ops)
	if next == nil {
		return nil
	}
	return domain.Storage(name, writeJSON(s.dir, s.path, next))
}

// Append adds op at the tail and rewrites the file.
func (s *QueueFileStore) Append(ctx context.Context, op domain.PendingOperation) error {
	return s.locked(ctx, "append", func(ops []domain.PendingOperation) []domain.PendingOperation {
		return append(ops, op)
	})
}

// List returns every operation in insertion order.
func (s *QueueFileStore) List(ctx context.Context) ([]domain.PendingOperation, error) {
	var out []domain.PendingOperation
	err := s.locked(ctx, "list", func(ops []domain.PendingOperation) []domain.PendingOperation {
		out = ops
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountUnsynced counts operations not yet accepted remotely.
func (s *QueueFileStore) CountUnsynced(ctx context.Context) (int, error) {
	n := 0
	err := s.locked(ctx, "count", func(ops []domain.PendingOperation) []domain.PendingOperation {
		for _, op := range ops {
			if !op.Synced {
				n++
			}
		}
		return nil
	})
	return n, err
}

// MarkSynced flags id as synced. Unknown or already-synced ids are a no-op.
func (s *QueueFileStore) MarkSynced(ctx context.Context, id string) error {
	return s.update(ctx, "mark synced", id, func(op *domain.PendingOperation) {
		op.Synced = true
		op.Poisoned = false
		op.LastError = ""
	})
}

// MarkFailed records a failed attempt.
func (s *QueueFileStore) MarkFailed(ctx context.Context, id string, attempts int, reason string, poisoned bool) error {
	return s.update(ctx, "mark failed", id, func(op *domain.PendingOperation) {
		op.Attempts = attempts
		op.LastError = reason
		op.Poisoned = op.Poisoned || poisoned
	})
}

func (s *QueueFileStore) update(ctx context.Context, name, id string, fn func(*domain.PendingOperation)) error {
	return s.locked(ctx, name, func(ops []domain.PendingOperation) []domain.PendingOperation {
		for i := range ops {
			if ops[i].ID == id && !ops[i].Synced {
				fn(&ops[i])
				return ops
			}
		}
		return nil
	})
}

// PruneSynced drops synced operations.
func (s *QueueFileStore) PruneSynced(ctx context.Context) (int, error) {
	pruned := 0
	err := s.locked(ctx, "prune", func(ops []domain.PendingOperation) []domain.PendingOperation {
		kept := make([]domain.PendingOperation, 0, len(ops))
		for _, op := range ops {
			if !op.Synced {
				kept = append(kept, op)
			}
		}
		if pruned = len(ops) - len(kept); pruned == 0 {
			return nil
		}
		return kept
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

// Dismiss removes one unsynced operation.
func (s *QueueFileStore) Dismiss(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.locked(ctx, "dismiss", func(ops []domain.PendingOperation) []domain.PendingOperation {
		for i, op := range ops {
			if op.ID == id && !op.Synced {
				found = true
				return append(ops[:i:i], ops[i+1:]...)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
