package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncState is the global state of the sync engine.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncSyncing
	SyncSynced
	SyncPending
	SyncError
)

// String returns the lowercase name used in persisted state and logs.
func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncSyncing:
		return "syncing"
	case SyncSynced:
		return "synced"
	case SyncPending:
		return "pending"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSyncState is the inverse of String.
func ParseSyncState(s string) (SyncState, error) {
	switch s {
	case "idle", "":
		return SyncIdle, nil
	case "syncing":
		return SyncSyncing, nil
	case "synced":
		return SyncSynced, nil
	case "pending":
		return SyncPending, nil
	case "error":
		return SyncError, nil
	}
	return SyncIdle, fmt.Errorf("unknown sync state %q", s)
}

// MarshalJSON encodes the state as its name.
func (s SyncState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *SyncState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseSyncState(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SyncStatus is the process-wide sync status, persisted across restarts.
type SyncStatus struct {
	State SyncState `json:"status"`

	// LastSyncAt is the time of the last status transition
	LastSyncAt time.Time `json:"last_sync"`
}

// Restored adjusts a status loaded from storage. A pass cannot survive a
// restart, so a persisted "syncing" comes back as "pending".
func (s SyncStatus) Restored() SyncStatus {
	if s.State == SyncSyncing {
		s.State = SyncPending
	}
	return s
}
