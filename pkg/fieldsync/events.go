package fieldsync

import "github.com/bft-labs/fieldsync/internal/app"

// StateChangeEvent reports a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SyncStatusEvent reports a sync status transition.
type SyncStatusEvent struct {
	Previous SyncStatus
	Current  SyncStatus
}

// OperationSyncedEvent reports an operation accepted by the remote.
type OperationSyncedEvent struct {
	Operation PendingOperation
	Ack       Ack
}

// OperationFailedEvent reports an operation that failed in a drain pass.
// Poisoned operations are not retried until dismissed.
type OperationFailedEvent struct {
	Operation PendingOperation
	Error     error
	Poisoned  bool
}

// EventHandler receives notifications. Calls are synchronous from the
// goroutine doing the work and should return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnSyncStatusChange(event SyncStatusEvent)
	OnOperationSynced(event OperationSyncedEvent)
	OnOperationFailed(event OperationFailedEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)         {}
func (BaseEventHandler) OnSyncStatusChange(SyncStatusEvent)     {}
func (BaseEventHandler) OnOperationSynced(OperationSyncedEvent) {}
func (BaseEventHandler) OnOperationFailed(OperationFailedEvent) {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

var (
	_ app.EventEmitter = (*eventEmitterWrapper)(nil)
	_ app.EventHandler = (*eventEmitterWrapper)(nil)
)

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnStatusChange(previous, current SyncStatus) {
	if e.handler == nil {
		return
	}
	e.handler.OnSyncStatusChange(SyncStatusEvent{Previous: previous, Current: current})
}

func (e *eventEmitterWrapper) OnOperationSynced(op PendingOperation, ack Ack) {
	if e.handler == nil {
		return
	}
	e.handler.OnOperationSynced(OperationSyncedEvent{Operation: op, Ack: ack})
}

func (e *eventEmitterWrapper) OnOperationFailed(op PendingOperation, err error, poisoned bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnOperationFailed(OperationFailedEvent{Operation: op, Error: err, Poisoned: poisoned})
}
