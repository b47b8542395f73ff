package fieldsync

import (
	"github.com/bft-labs/fieldsync/internal/app"
	"github.com/bft-labs/fieldsync/internal/domain"
)

// Domain types re-exported for library users.
type (
	PendingOperation = domain.PendingOperation
	NewOperation     = domain.NewOperation
	OperationKind    = domain.OperationKind
	SyncStatus       = domain.SyncStatus
	SyncState        = domain.SyncState
	CacheKey         = domain.CacheKey
	CacheEntry       = domain.CacheEntry
	Ack              = domain.Ack
	HistoryEntry     = domain.HistoryEntry
	DrainReport      = app.DrainReport
	WorkerInfo       = app.WorkerInfo
)

// Operation kinds.
const (
	KindCreate = domain.KindCreate
	KindUpdate = domain.KindUpdate
	KindDelete = domain.KindDelete
)

// Sync states.
const (
	SyncIdle    = domain.SyncIdle
	SyncSyncing = domain.SyncSyncing
	SyncSynced  = domain.SyncSynced
	SyncPending = domain.SyncPending
	SyncError   = domain.SyncError
)

// Errors returned by the public API. Check them with errors.Is.
var (
	ErrAlreadyRunning   = domain.ErrAlreadyRunning
	ErrNotRunning       = domain.ErrNotRunning
	ErrShutdownTimeout  = domain.ErrShutdownTimeout
	ErrInvalidConfig    = domain.ErrInvalidConfig
	ErrInvalidOperation = domain.ErrInvalidOperation
	ErrNoOfflineData    = domain.ErrNoOfflineData
)

// ListKey and RecordKey build cache keys.
var (
	ListKey   = domain.ListKey
	RecordKey = domain.RecordKey
)

// ParseOperationKind parses "create", "update" or "delete".
var ParseOperationKind = domain.ParseOperationKind

// Transient and Permanent classify errors returned by custom remotes.
var (
	Transient = domain.Transient
	Permanent = domain.Permanent
)

// State represents the lifecycle state of a Client.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return convertToApp(s).String()
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

func convertToApp(s State) app.State {
	switch s {
	case StateStopped:
		return app.StateStopped
	case StateStarting:
		return app.StateStarting
	case StateRunning:
		return app.StateRunning
	case StateStopping:
		return app.StateStopping
	case StateCrashed:
		return app.StateCrashed
	default:
		return app.State(-1)
	}
}
