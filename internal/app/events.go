package app

import "github.com/bft-labs/fieldsync/internal/domain"

// EventHandler receives sync engine notifications. Calls are synchronous
// from the draining goroutine and must return quickly.
type EventHandler interface {
	OnStatusChange(previous, current domain.SyncStatus)
	OnOperationSynced(op domain.PendingOperation, ack domain.Ack)
	OnOperationFailed(op domain.PendingOperation, err error, poisoned bool)
}

// NopEventHandler ignores every event.
type NopEventHandler struct{}

func (NopEventHandler) OnStatusChange(domain.SyncStatus, domain.SyncStatus)    {}
func (NopEventHandler) OnOperationSynced(domain.PendingOperation, domain.Ack)  {}
func (NopEventHandler) OnOperationFailed(domain.PendingOperation, error, bool) {}
