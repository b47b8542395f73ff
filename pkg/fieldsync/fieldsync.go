package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bft-labs/fieldsync/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/fieldsync/internal/adapters/http"
	"github.com/bft-labs/fieldsync/internal/adapters/sqlite"
	"github.com/bft-labs/fieldsync/internal/app"
	"github.com/bft-labs/fieldsync/internal/connectivity"
	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
	"github.com/bft-labs/fieldsync/pkg/log"
)

// ErrHistoryUnavailable is returned by History when the backend does not
// archive pruned operations.
var ErrHistoryUnavailable = errors.New("fieldsync: history not available for this backend")

// ErrUsageUnavailable is returned by StorageUsage when the stores cannot
// report their size.
var ErrUsageUnavailable = errors.New("fieldsync: storage usage not available for this backend")

// Client is an offline-first write queue with a background sync engine.
// Use New() to create an instance. Enqueue and the query methods work
// without Start; Start runs connectivity monitoring and automatic drains.
type Client struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	logger    ports.Logger
	emitter   *eventEmitterWrapper

	queueStore ports.QueueStore
	statusRepo ports.StatusRepository
	cacheStore ports.CacheStore
	history    ports.HistoryStore
	usage      ports.UsageReporter
	closer     io.Closer

	queue   *app.Queue
	cache   *app.Cache
	status  *app.StatusTracker
	engine  *app.Engine
	monitor *connectivity.Monitor
	probe   Probe
	signal  *connectivity.FileSignal
	unsub   func()

	plugins []Plugin

	mu sync.Mutex
}

// New creates a Client with the given configuration. Stores are opened and
// the persisted sync status is loaded; the Client starts in StateStopped.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions(&http.Client{Timeout: cfg.CallTimeout})
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.remote == nil && cfg.ServiceURL == "" {
		return nil, fmt.Errorf("%w: service url is required without a custom remote", ErrInvalidConfig)
	}

	c := &Client{
		config:  cfg,
		opts:    o,
		logger:  o.logger,
		emitter: &eventEmitterWrapper{handler: o.eventHandler},
		plugins: o.plugins,
	}
	c.lifecycle = app.NewLifecycle(c.logger, c.emitter)

	if err := c.openStores(); err != nil {
		return nil, err
	}

	remote, fetcher := o.remote, o.fetcher
	if remote == nil {
		r := httpAdapter.NewRemote(o.httpClient, httpAdapter.RemoteConfig{
			ServiceURL: cfg.ServiceURL,
			AuthKey:    cfg.AuthKey,
			RateLimit: httpAdapter.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit,
				BurstSize:         httpAdapter.DefaultRateLimit.BurstSize,
			},
		}, c.logger)
		remote = r
		if fetcher == nil {
			fetcher = r
		}
	}

	c.probe = o.probe
	if c.probe == nil {
		if cfg.OnlineMarker != "" {
			c.signal = connectivity.NewFileSignal(cfg.OnlineMarker, c.logger)
			c.probe = c.signal
		} else {
			c.probe = connectivity.NewHTTPProbe(cfg.ServiceURL, o.httpClient, 0)
		}
	}
	c.monitor = connectivity.NewMonitor(false, c.probe, cfg.ProbeInterval, c.logger)

	status, err := app.NewStatusTracker(ctx, c.statusRepo, c.logger, c.emitter)
	if err != nil {
		_ = c.closeStores()
		return nil, err
	}
	c.status = status
	c.queue = app.NewQueue(c.queueStore, c.logger)
	c.cache = app.NewCache(c.cacheStore, fetcher, c.monitor, cfg.CallTimeout, c.logger)
	c.engine = app.NewEngine(app.EngineConfig{
		CallTimeout:  cfg.CallTimeout,
		SyncInterval: cfg.SyncInterval,
		Concurrency:  cfg.Concurrency,
		Retry: app.RetryPolicy{
			Base:     cfg.RetryBase,
			Attempts: cfg.RetryAttempts,
		},
	}, app.EngineDeps{
		Store:  c.queueStore,
		Remote: remote,
		Conn:   c.monitor,
		Status: status,
		Cache:  c.cache,
		Logger: c.logger,
		Events: c.emitter,
	})

	return c, nil
}

// openStores selects the persistence backend. Custom stores from WithStores
// take precedence over cfg.Backend.
func (c *Client) openStores() error {
	o := c.opts
	switch {
	case o.queue != nil || o.status != nil || o.cache != nil:
		if o.queue == nil || o.status == nil || o.cache == nil {
			return fmt.Errorf("%w: WithStores requires queue, status and cache stores", ErrInvalidConfig)
		}
		c.queueStore, c.statusRepo, c.cacheStore = o.queue, o.status, o.cache
	case c.config.Backend == BackendFile:
		ns := domain.Namespace(c.config.Namespace)
		c.queueStore = fs.NewQueueFileStore(c.config.DataDir, ns)
		c.statusRepo = fs.NewStatusFileRepository(c.config.DataDir, ns)
		c.cacheStore = fs.NewCacheFileStore(c.config.DataDir, ns)
		c.usage = fs.NewUsage(c.config.DataDir, ns)
	default:
		store, err := sqlite.Open(c.config.DataDir, domain.Namespace(c.config.Namespace))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		c.closer = store
		c.usage = store
		c.queueStore = store.QueueStore()
		c.statusRepo = store.StatusRepository()
		c.cacheStore = store.CacheStore()
	}
	if h, ok := c.queueStore.(ports.HistoryStore); ok {
		c.history = h
	}
	if c.usage == nil {
		if u, ok := c.queueStore.(ports.UsageReporter); ok {
			c.usage = u
		}
	}
	return nil
}

func (c *Client) closeStores() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

// Start begins connectivity monitoring and background sync.
// Returns immediately after starting the worker goroutines.
// Returns an error if already running or if a plugin fails to initialize.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	runCtx, err := c.lifecycle.Begin(ctx, "Start() called")
	if err != nil {
		return err
	}

	pluginCfg := PluginConfig{
		DataDir:    c.config.DataDir,
		Namespace:  c.config.Namespace,
		ServiceURL: c.config.ServiceURL,
		Logger:     c.logger,
		History:    c.history,
	}
	for _, p := range c.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			c.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			c.lifecycle.Abort("plugin init failed: " + p.Name())
			return err
		}
		c.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	c.unsub = c.monitor.Subscribe(c.onConnectivity)

	c.lifecycle.Go(app.WorkerConnectivity, false, c.monitor.Run)
	if c.signal != nil {
		c.lifecycle.Go(app.WorkerMarker, false, func(ctx context.Context) error {
			return c.signal.Run(ctx, c.monitor)
		})
	}
	c.lifecycle.Go(app.WorkerEngine, true, c.engine.Run)

	if err := c.lifecycle.Ready("workers started"); err != nil {
		c.unsub()
		c.unsub = nil
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// onConnectivity wires monitor transitions into the engine.
func (c *Client) onConnectivity(online bool, reason string) {
	if online {
		c.engine.TriggerSync()
		return
	}
	if err := c.engine.MarkOffline(context.Background()); err != nil {
		c.logger.Error("failed to record offline status", ports.Err(err), ports.String("reason", reason))
	}
}

// Stop cancels background work and waits for the workers to exit.
// An in-flight drain leaves unconfirmed operations queued.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.CanStop() {
		return ErrNotRunning
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}

	return c.lifecycle.Shutdown(app.ShutdownTimeout, "Stop() called", c.shutdownPlugins)
}

// shutdownPlugins stops plugins in reverse initialization order.
func (c *Client) shutdownPlugins() {
	ctx := context.Background()
	for i := len(c.plugins) - 1; i >= 0; i-- {
		p := c.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			c.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			c.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
}

// Workers reports the background workers of the current or last run.
func (c *Client) Workers() []WorkerInfo {
	return c.lifecycle.Workers()
}

// Close stops the Client if it is running and releases the stores.
func (c *Client) Close() error {
	var stopErr error
	if c.lifecycle.CanStop() {
		stopErr = c.Stop()
	}
	return errors.Join(stopErr, c.closeStores())
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (c *Client) Status() State {
	return convertState(c.lifecycle.State())
}

// CurrentStatus returns the persisted sync status.
func (c *Client) CurrentStatus() SyncStatus {
	return c.engine.CurrentStatus()
}

// Online reports the last known connectivity state.
func (c *Client) Online() bool {
	return c.monitor.Online()
}

// SetOnline pushes a connectivity observation, for hosts that learn about
// network changes from the platform.
func (c *Client) SetOnline(online bool, reason string) {
	c.monitor.SetOnline(online, reason)
}

// Enqueue validates and durably queues one operation. The sync status is
// not changed; with SyncOnEnqueue a drain is requested while online.
func (c *Client) Enqueue(ctx context.Context, req NewOperation) (PendingOperation, error) {
	op, err := c.queue.Enqueue(ctx, req)
	if err != nil {
		return PendingOperation{}, err
	}
	if c.config.SyncOnEnqueue && c.monitor.Online() {
		c.engine.TriggerSync()
	}
	return op, nil
}

// TriggerSync requests a drain from the background engine. It never blocks.
func (c *Client) TriggerSync() {
	c.engine.TriggerSync()
}

// CheckConnectivity probes the backend once and records the result.
func (c *Client) CheckConnectivity(ctx context.Context) bool {
	online := c.probe.Check(ctx)
	c.monitor.SetOnline(online, "probe requested")
	return online
}

// Sync probes connectivity once and runs a drain pass in the calling
// goroutine. A pass already in flight is reported as coalesced.
func (c *Client) Sync(ctx context.Context) (DrainReport, error) {
	c.CheckConnectivity(ctx)
	return c.engine.Drain(ctx)
}

// PendingCount returns the number of unsynced operations, poisoned ones included.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.engine.PendingCount(ctx)
}

// Operations returns every stored operation in insertion order.
func (c *Client) Operations(ctx context.Context) ([]PendingOperation, error) {
	return c.queue.List(ctx)
}

// Dismiss removes one unsynced operation. It reports whether it existed.
func (c *Client) Dismiss(ctx context.Context, id string) (bool, error) {
	return c.queue.Dismiss(ctx, id)
}

// Prune removes synced operations from the queue.
func (c *Client) Prune(ctx context.Context) (int, error) {
	return c.queue.Prune(ctx)
}

// History returns archived operations, newest first. limit <= 0 means all.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if c.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return c.history.History(ctx, limit)
}

// StorageUsage returns how many bytes the local stores occupy on disk. With
// the sqlite backend the database is shared by every namespace in DataDir.
// It returns ErrUsageUnavailable for custom stores that cannot report it.
func (c *Client) StorageUsage(ctx context.Context) (int64, error) {
	if c.usage == nil {
		return 0, ErrUsageUnavailable
	}
	return c.usage.DiskUsage(ctx)
}

// Read returns the snapshot for key, from the backend when online and from
// the offline cache otherwise. ErrNoOfflineData means nothing is cached.
func (c *Client) Read(ctx context.Context, key CacheKey) ([]byte, error) {
	return c.cache.Read(ctx, key)
}

// CachePut stores a snapshot under key, replacing any previous one.
func (c *Client) CachePut(ctx context.Context, key CacheKey, snapshot []byte) error {
	return c.cache.Put(ctx, key, snapshot)
}

// CacheGet returns the cached entry for key without touching the network.
func (c *Client) CacheGet(ctx context.Context, key CacheKey) (CacheEntry, bool, error) {
	return c.cache.Get(ctx, key)
}

// ClearCache removes every cached snapshot of the namespace.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}
