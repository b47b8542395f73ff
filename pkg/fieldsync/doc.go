// Package fieldsync provides an embeddable offline-first write queue.
//
// Writes (create, update, delete) against logical resources are queued
// durably while the backend is unreachable and replayed in order once
// connectivity returns. Payloads are opaque JSON; the engine never
// interprets them.
//
// # Basic Usage
//
//	cfg := fieldsync.Config{
//	    DataDir:    "/var/lib/myapp/fieldsync",
//	    ServiceURL: "https://api.example.org",
//	    AuthKey:    "your-api-key",
//	}
//
//	client, err := fieldsync.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	op, err := client.Enqueue(ctx, fieldsync.NewOperation{
//	    Kind:     fieldsync.KindCreate,
//	    Resource: "patient",
//	    Payload:  []byte(`{"name":"Ada"}`),
//	})
//
// # Sync Engine
//
// The engine drains the queue when connectivity is restored, on a fallback
// interval, and on [Client.TriggerSync]. At most one drain runs at a time.
// Operations of one resource are applied in enqueue order; different
// resources may be drained in parallel ([Config.Concurrency]).
//
// Every request carries the operation ID as an Idempotency-Key, so a retry
// after a lost acknowledgment is not applied twice. Transient failures are
// retried with exponential backoff. Permanent rejections poison the
// operation: it stays queued and counted by [Client.PendingCount] until an
// operator calls [Client.Dismiss].
//
// # Sync Status
//
// [Client.CurrentStatus] reports idle, syncing, synced, pending or error,
// plus the time of the last transition. Enqueue never changes the status.
//
// # Offline Reads
//
// [Client.Read] fetches a snapshot from the backend when online and falls
// back to the last cached copy otherwise. Confirmed writes refresh the cache.
//
// # Storage
//
// The default backend is SQLite ("sqlite"), which also archives pruned
// operations for [Client.History]. The "file" backend stores JSON documents.
// Custom stores can be injected with [WithStores].
//
// # Lifecycle States
//
// A Client moves through StateStopped, StateStarting, StateRunning,
// StateStopping and StateCrashed. [Client.Status] is safe to call from any
// goroutine.
package fieldsync
