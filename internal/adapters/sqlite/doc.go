// Package sqlite provides the default durable storage for fieldsync, backed by
// a single SQLite database (pure-Go driver, WAL journal).
//
// One database can host several namespaces; every row carries its namespace
// (or a namespaced key) so queues of different clients never collide.
// Synced operations that are pruned from the active queue are moved to the
// operation_history table for audit.
package sqlite
