package fieldsync

import (
	"context"
	"net/http"

	"github.com/bft-labs/fieldsync/internal/ports"
	"github.com/bft-labs/fieldsync/pkg/log"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField is a structured log field.
type LogField = log.Field

// Remote applies operations to the backend. Return errors wrapped with
// Transient or Permanent; unclassified errors are retried.
type Remote = ports.Remote

// Fetcher reads authoritative snapshots for cache read-through.
type Fetcher = ports.Fetcher

// Store interfaces for custom persistence.
type (
	QueueStore       = ports.QueueStore
	StatusRepository = ports.StatusRepository
	CacheStore       = ports.CacheStore
)

// Probe reports whether the backend is reachable.
type Probe interface {
	Check(ctx context.Context) bool
}

// Option configures optional behavior of a Client.
type Option func(*options)

// options holds the optional configuration for a Client.
type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	remote       ports.Remote
	fetcher      ports.Fetcher
	queue        ports.QueueStore
	status       ports.StatusRepository
	cache        ports.CacheStore
	probe        Probe
	plugins      []Plugin
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
		logger:     log.NewNoopLogger(),
	}
}

// WithHTTPClient sets a custom HTTP client for the remote and the probe.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for lifecycle and sync events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithRemote replaces the HTTP remote. If remote also implements Fetcher it
// serves cache read-through.
func WithRemote(remote Remote) Option {
	return func(o *options) {
		o.remote = remote
		if f, ok := remote.(Fetcher); ok && o.fetcher == nil {
			o.fetcher = f
		}
	}
}

// WithFetcher sets the snapshot source for cache read-through.
func WithFetcher(fetcher Fetcher) Option {
	return func(o *options) {
		o.fetcher = fetcher
	}
}

// WithStores replaces the configured backend with custom stores.
func WithStores(queue QueueStore, status StatusRepository, cache CacheStore) Option {
	return func(o *options) {
		o.queue = queue
		o.status = status
		o.cache = cache
	}
}

// WithProbe replaces the connectivity probe.
func WithProbe(probe Probe) Option {
	return func(o *options) {
		o.probe = probe
	}
}

// WithPlugin registers a plugin to be initialized when the Client starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
