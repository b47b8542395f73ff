package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the kind of deferred write.
type OperationKind string

const (
	KindCreate OperationKind = "create"
	KindUpdate OperationKind = "update"
	KindDelete OperationKind = "delete"
)

// Valid reports whether k is one of the known kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// ParseOperationKind parses a kind case-insensitively.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
	return k, nil
}

// PendingOperation is a write queued locally until the remote backend accepts it.
// ID doubles as the idempotency key and never changes across retries.
type PendingOperation struct {
	// ID is "<resource>-<unix millis>-<uuid>"
	ID string `json:"id"`

	Kind OperationKind `json:"kind"`

	// Resource is the logical collection ("patient", "test", ...), opaque to the engine
	Resource string `json:"resource"`

	// RecordID identifies the target record inside Resource. Optional.
	RecordID string `json:"record_id,omitempty"`

	// Payload is the domain data as JSON, passed through untouched
	Payload json.RawMessage `json:"payload,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// Synced flips to true exactly once, after the remote acknowledged the write
	Synced bool `json:"synced"`

	// Poisoned marks an operation the remote rejected permanently
	Poisoned bool `json:"poisoned,omitempty"`

	// LastError is the last failure reported for this operation
	LastError string `json:"last_error,omitempty"`

	// Attempts counts remote attempts across all drain passes
	Attempts int `json:"attempts,omitempty"`
}

// NewOperation carries the caller-supplied fields of an enqueue request.
type NewOperation struct {
	Kind     OperationKind
	Resource string
	RecordID string
	Payload  json.RawMessage
}

// Validate checks structural shape only; domain validation is the caller's job.
func (n NewOperation) Validate() error {
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, n.Kind)
	}
	if strings.TrimSpace(n.Resource) == "" {
		return fmt.Errorf("%w: resource is required", ErrInvalidOperation)
	}
	if len(n.Payload) > 0 && !json.Valid(n.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidOperation)
	}
	return nil
}

// NewOperationID builds an ID from the resource, the enqueue time and a random component.
func NewOperationID(resource string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", resource, at.UnixMilli(), uuid.NewString())
}

// Build turns the request into a PendingOperation enqueued at the given time.
func (n NewOperation) Build(at time.Time) PendingOperation {
	return PendingOperation{
		ID:         NewOperationID(n.Resource, at),
		Kind:       n.Kind,
		Resource:   n.Resource,
		RecordID:   n.RecordID,
		Payload:    n.Payload,
		EnqueuedAt: at,
	}
}

// Retryable reports whether a drain pass should attempt the operation.
func (op PendingOperation) Retryable() bool {
	return !op.Synced && !op.Poisoned
}

// OrderingKey is the key under which operations must apply in enqueue order.
// Operations without a RecordID only order against themselves.
func (op PendingOperation) OrderingKey() string {
	if op.RecordID == "" {
		return ""
	}
	return op.Resource + "/" + op.RecordID
}

// HistoryEntry is an operation removed from the active queue after it synced.
type HistoryEntry struct {
	Operation PendingOperation `json:"operation"`
	PrunedAt  time.Time        `json:"pruned_at"`
}
