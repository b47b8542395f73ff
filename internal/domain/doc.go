// Package domain contains the core domain entities and value objects for fieldsync.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, storage, logging) and
// contains only the queue model and its rules.
//
// # Entities
//
//   - [PendingOperation]: A deferred create/update/delete against a named resource
//   - [SyncStatus]: The process-wide sync state, persisted across restarts
//   - [CacheEntry]: The last authoritative snapshot of a resource or record
//
// # Errors
//
// Failures are classified as [TransientError] (retried), [PermanentError]
// (the operation is poisoned) or [StorageError] (the drain pass aborts).
package domain
