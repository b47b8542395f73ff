// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [QueueStore]: Persists pending operations
//   - [StatusRepository]: Persists the process-wide sync status
//   - [CacheStore]: Persists resource snapshots for offline reads
//   - [Remote]: Applies operations to the remote backend and fetches snapshots
//   - [Connectivity]: Reports whether the network is reachable
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (sqlite, JSON files, HTTP, zerolog, etc.).
//
// This separation enables:
//   - Testing application logic with in-memory fakes
//   - Swapping infrastructure without changing sync logic
//   - Clear boundaries and dependency direction
package ports
