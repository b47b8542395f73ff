package memory

import (
	"context"
	"sync"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// QueueStore implements ports.QueueStore in memory.
type QueueStore struct {
	mu  sync.RWMutex
	ops []domain.PendingOperation

	// FailWith, when set, is returned (as a storage error) by every call.
	FailWith error
}

var _ ports.QueueStore = (*QueueStore)(nil)

// NewQueueStore creates an empty queue.
func NewQueueStore() *QueueStore {
	return &QueueStore{}
}

func (s *QueueStore) fail(op string) error {
	if s.FailWith != nil {
		return domain.Storage(op, s.FailWith)
	}
	return nil
}

// Append adds op at the tail.
func (s *QueueStore) Append(ctx context.Context, op domain.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("append"); err != nil {
		return err
	}
	s.ops = append(s.ops, cloneOp(op))
	return nil
}

// List returns a copy of all operations in insertion order.
func (s *QueueStore) List(ctx context.Context) ([]domain.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("list"); err != nil {
		return nil, err
	}
	out := make([]domain.PendingOperation, len(s.ops))
	for i, op := range s.ops {
		out[i] = cloneOp(op)
	}
	return out, nil
}

// CountUnsynced counts operations with Synced=false.
func (s *QueueStore) CountUnsynced(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("count"); err != nil {
		return 0, err
	}
	n := 0
	for _, op := range s.ops {
		if !op.Synced {
			n++
		}
	}
	return n, nil
}

// MarkSynced flags id as synced; unknown ids are ignored.
func (s *QueueStore) MarkSynced(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mark synced"); err != nil {
		return err
	}
	for i := range s.ops {
		if s.ops[i].ID == id {
			s.ops[i].Synced = true
			s.ops[i].Poisoned = false
			s.ops[i].LastError = ""
			return nil
		}
	}
	return nil
}

// MarkFailed records a failed attempt on an unsynced operation.
func (s *QueueStore) MarkFailed(ctx context.Context, id string, attempts int, reason string, poisoned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mark failed"); err != nil {
		return err
	}
	for i := range s.ops {
		if s.ops[i].ID == id && !s.ops[i].Synced {
			s.ops[i].Attempts = attempts
			s.ops[i].LastError = reason
			s.ops[i].Poisoned = s.ops[i].Poisoned || poisoned
			return nil
		}
	}
	return nil
}

// PruneSynced drops synced operations.
func (s *QueueStore) PruneSynced(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("prune"); err != nil {
		return 0, err
	}
	kept := s.ops[:0]
	pruned := 0
	for _, op := range s.ops {
		if op.Synced {
			pruned++
			continue
		}
		kept = append(kept, op)
	}
	s.ops = kept
	return pruned, nil
}

// Dismiss removes one unsynced operation.
func (s *QueueStore) Dismiss(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("dismiss"); err != nil {
		return false, err
	}
	for i, op := range s.ops {
		if op.ID == id && !op.Synced {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func cloneOp(op domain.PendingOperation) domain.PendingOperation {
	if op.Payload != nil {
		op.Payload = append([]byte(nil), op.Payload...)
	}
	return op
}
