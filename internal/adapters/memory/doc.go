// Package memory provides in-memory implementations of the fieldsync storage
// ports. Nothing survives a restart; use them in tests or for ephemeral embedding.
package memory
