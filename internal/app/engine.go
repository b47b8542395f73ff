package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// Default engine configuration values.
const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultSyncInterval = 30 * time.Second
	DefaultConcurrency  = 1
)

// errConnectivityLost stops retrying an operation when the network drops.
var errConnectivityLost = errors.New("connectivity lost")

// EngineConfig contains configuration for the sync engine.
type EngineConfig struct {
	// CallTimeout bounds one remote attempt. Expiry counts as a transient failure.
	CallTimeout time.Duration
	// SyncInterval is the fallback drain period of Run.
	SyncInterval time.Duration
	// Concurrency is the number of resources drained in parallel.
	Concurrency int
	Retry       RetryPolicy
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// EngineDeps are the collaborators of an Engine. Cache and Events are optional.
type EngineDeps struct {
	Store  ports.QueueStore
	Remote ports.Remote
	Conn   ports.Connectivity
	Status *StatusTracker
	Cache  *Cache
	Logger ports.Logger
	Events EventHandler
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted int
	Synced    int
	Failed    int
	Poisoned  int
	Deferred  int
	Pruned    int

	// Coalesced is set when another pass was already running and this call
	// did nothing.
	Coalesced bool
	// Interrupted is set when connectivity dropped or the context ended
	// before every candidate was attempted.
	Interrupted bool

	Duration time.Duration
	State    domain.SyncState
}

// Engine replays queued operations against the remote.
type Engine struct {
	cfg    EngineConfig
	store  ports.QueueStore
	remote ports.Remote
	conn   ports.Connectivity
	status *StatusTracker
	cache  *Cache
	logger ports.Logger
	events EventHandler

	draining atomic.Bool
	trigger  chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	events := deps.Events
	if events == nil {
		events = NopEventHandler{}
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		store:   deps.Store,
		remote:  deps.Remote,
		conn:    deps.Conn,
		status:  deps.Status,
		cache:   deps.Cache,
		logger:  deps.Logger,
		events:  events,
		trigger: make(chan struct{}, 1),
	}
}

// PendingCount returns the number of unsynced operations.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountUnsynced(ctx)
}

// CurrentStatus returns the current sync status.
func (e *Engine) CurrentStatus() domain.SyncStatus {
	return e.status.Current()
}

// TriggerSync asks the Run loop for a drain pass. It never blocks; requests
// made while one is already queued are merged.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// MarkOffline records that connectivity was lost.
func (e *Engine) MarkOffline(ctx context.Context) error {
	return e.status.Set(ctx, domain.SyncPending)
}

// Run serves sync triggers and the fallback interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
			e.runPass(ctx, "trigger")
		case <-ticker.C:
			n, err := e.store.CountUnsynced(ctx)
			if err != nil {
				e.logger.Error("failed to count pending operations", ports.Err(err))
				continue
			}
			if n > 0 {
				e.runPass(ctx, "interval")
			}
		}
	}
}

func (e *Engine) runPass(ctx context.Context, reason string) {
	report, err := e.Drain(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("drain failed", ports.String("reason", reason), ports.Err(err))
		}
		return
	}
	if report.Coalesced {
		return
	}

	fields := []ports.Field{
		ports.String("reason", reason),
		ports.String("state", report.State.String()),
		ports.Int("attempted", report.Attempted),
		ports.Int("synced", report.Synced),
		ports.Int("failed", report.Failed),
		ports.Int("poisoned", report.Poisoned),
		ports.Int("deferred", report.Deferred),
		ports.Int("pruned", report.Pruned),
		ports.Duration("duration", report.Duration),
	}
	if report.Attempted > 0 {
		e.logger.Info("drain complete", fields...)
	} else {
		e.logger.Debug("drain complete", fields...)
	}
}

// Drain runs one pass over the queue. Only one pass runs at a time; a call
// made while another is in flight returns immediately with Coalesced set.
//
// Per-operation failures are reported through the DrainReport and the sync
// status. The returned error is non-nil only for storage failures, which
// abort the pass, and for cancellation of ctx.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	if !e.draining.CompareAndSwap(false, true) {
		e.logger.Debug("drain already in progress")
		return DrainReport{Coalesced: true, State: e.status.Current().State}, nil
	}
	defer e.draining.Store(false)

	start := time.Now()
	report, err := e.drain(ctx)
	report.Duration = time.Since(start)
	report.State = e.status.Current().State
	return report, err
}

func (e *Engine) drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	if !e.conn.Online() {
		return report, e.status.Set(ctx, domain.SyncPending)
	}

	ops, err := e.store.List(ctx)
	if err != nil {
		return report, e.abort(ctx, err)
	}

	batches, stuck := plan(ops)
	if len(batches) == 0 {
		if stuck {
			return report, e.status.Set(ctx, domain.SyncError)
		}
		err = e.finish(ctx, &report)
		return report, err
	}

	if err := e.status.Set(ctx, domain.SyncSyncing); err != nil {
		return report, e.abort(ctx, err)
	}

	tally := &drainTally{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			return e.drainResource(gctx, b, tally)
		})
	}
	err = g.Wait()
	report = tally.snapshot()

	switch {
	case err != nil:
		return report, e.abort(ctx, err)
	case ctx.Err() != nil:
		report.Interrupted = true
		return report, errors.Join(ctx.Err(), e.status.Set(ctx, domain.SyncPending))
	case report.Interrupted:
		return report, e.status.Set(ctx, domain.SyncPending)
	case stuck || report.Failed > 0 || report.Poisoned > 0:
		return report, e.status.Set(ctx, domain.SyncError)
	default:
		err = e.finish(ctx, &report)
		return report, err
	}
}

// finish records a fully drained queue and prunes synced operations.
func (e *Engine) finish(ctx context.Context, report *DrainReport) error {
	if err := e.status.Set(ctx, domain.SyncSynced); err != nil {
		return e.abort(ctx, err)
	}
	n, err := e.store.PruneSynced(ctx)
	if err != nil {
		return e.abort(ctx, err)
	}
	report.Pruned = n
	return nil
}

// abort moves the status to error after a storage failure.
func (e *Engine) abort(ctx context.Context, err error) error {
	err = domain.Storage("drain", err)
	e.logger.Error("drain aborted", ports.Err(err))
	if setErr := e.status.Set(ctx, domain.SyncError); setErr != nil {
		return errors.Join(err, setErr)
	}
	return err
}

// drainResource applies one resource's candidates in enqueue order. It
// returns an error only for storage failures.
func (e *Engine) drainResource(ctx context.Context, b *resourceBatch, tally *drainTally) error {
	// Bookkeeping after a remote answer must not be lost to cancellation.
	storeCtx := context.WithoutCancel(ctx)

	for _, op := range b.ops {
		if ctx.Err() != nil || !e.conn.Online() {
			tally.update(func(r *DrainReport) { r.Interrupted = true })
			return nil
		}

		key := op.OrderingKey()
		if key != "" && b.blocked[key] {
			e.logger.Debug("operation deferred behind failed predecessor",
				ports.String("op_id", op.ID),
				ports.String("record_id", op.RecordID),
			)
			tally.update(func(r *DrainReport) { r.Deferred++ })
			continue
		}

		tally.update(func(r *DrainReport) { r.Attempted++ })
		ack, attempts, err := e.apply(ctx, op)
		op.Attempts += attempts

		switch {
		case err == nil:
			if err := e.store.MarkSynced(storeCtx, op.ID); err != nil {
				return fmt.Errorf("mark %s synced: %w", op.ID, err)
			}
			op.Synced = true
			tally.update(func(r *DrainReport) { r.Synced++ })

			if e.cache != nil {
				if err := e.cache.applyAck(storeCtx, op, ack); err != nil {
					e.logger.Warn("failed to update cache after sync", ports.String("op_id", op.ID), ports.Err(err))
				}
			}
			e.logger.Debug("operation synced",
				ports.String("op_id", op.ID),
				ports.Int("attempts", attempts),
				ports.Bool("duplicate", ack.Duplicate),
			)
			e.events.OnOperationSynced(op, ack)

		case ctx.Err() != nil:
			tally.update(func(r *DrainReport) { r.Interrupted = true })
			return nil

		case errors.Is(err, errConnectivityLost):
			if err := e.store.MarkFailed(storeCtx, op.ID, op.Attempts, err.Error(), false); err != nil {
				return fmt.Errorf("mark %s failed: %w", op.ID, err)
			}
			tally.update(func(r *DrainReport) { r.Interrupted = true })
			return nil

		default:
			poisoned := domain.IsPermanent(err)
			op.Poisoned = poisoned
			op.LastError = err.Error()
			if err := e.store.MarkFailed(storeCtx, op.ID, op.Attempts, op.LastError, poisoned); err != nil {
				return fmt.Errorf("mark %s failed: %w", op.ID, err)
			}
			if key != "" {
				b.blocked[key] = true
			}
			tally.update(func(r *DrainReport) {
				if poisoned {
					r.Poisoned++
				} else {
					r.Failed++
				}
			})
			e.logger.Warn("operation failed",
				ports.String("op_id", op.ID),
				ports.String("resource", op.Resource),
				ports.Int("attempts", op.Attempts),
				ports.Bool("poisoned", poisoned),
				ports.Err(err),
			)
			e.events.OnOperationFailed(op, err, poisoned)
		}
	}
	return nil
}

// apply sends op with per-call timeouts, retrying transient failures with
// backoff. It returns the number of attempts made.
func (e *Engine) apply(ctx context.Context, op domain.PendingOperation) (domain.Ack, int, error) {
	b := newBackoff(e.cfg.Retry.Base, e.cfg.Retry.Max)

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		ack, err := e.remote.Apply(callCtx, op)
		cancel()
		if err == nil {
			return ack, attempt, nil
		}
		if ctx.Err() != nil {
			return domain.Ack{}, attempt, ctx.Err()
		}
		if domain.IsPermanent(err) {
			return domain.Ack{}, attempt, err
		}
		if !domain.IsTransient(err) {
			err = domain.Transient(err)
		}
		if attempt >= e.cfg.Retry.Attempts {
			return domain.Ack{}, attempt, err
		}
		if !e.conn.Online() {
			return domain.Ack{}, attempt, fmt.Errorf("%w: %w", errConnectivityLost, err)
		}

		e.logger.Debug("retrying operation",
			ports.String("op_id", op.ID),
			ports.Int("attempt", attempt),
			ports.Err(err),
		)
		if err := b.Sleep(ctx); err != nil {
			return domain.Ack{}, attempt, err
		}
	}
}

// resourceBatch is the ordered work for one resource in a drain pass.
type resourceBatch struct {
	resource string
	ops      []domain.PendingOperation
	// blocked holds ordering keys whose earlier operation failed.
	blocked map[string]bool
}

// plan groups retryable operations by resource, preserving enqueue order.
// Ordering keys of previously poisoned operations start out blocked. stuck
// reports whether any poisoned operation remains in the queue.
func plan(ops []domain.PendingOperation) (batches []*resourceBatch, stuck bool) {
	byResource := make(map[string]*resourceBatch)
	var order []*resourceBatch

	batchFor := func(resource string) *resourceBatch {
		b, ok := byResource[resource]
		if !ok {
			b = &resourceBatch{resource: resource, blocked: make(map[string]bool)}
			byResource[resource] = b
			order = append(order, b)
		}
		return b
	}

	for _, op := range ops {
		if op.Retryable() {
			b := batchFor(op.Resource)
			b.ops = append(b.ops, op)
			continue
		}
		if op.Poisoned {
			stuck = true
			if key := op.OrderingKey(); key != "" {
				batchFor(op.Resource).blocked[key] = true
			}
		}
	}

	for _, b := range order {
		if len(b.ops) > 0 {
			batches = append(batches, b)
		}
	}
	return batches, stuck
}

// drainTally accumulates a DrainReport across resource goroutines.
type drainTally struct {
	mu sync.Mutex
	r  DrainReport
}

func (t *drainTally) update(fn func(r *DrainReport)) {
	t.mu.Lock()
	fn(&t.r)
	t.mu.Unlock()
}

func (t *drainTally) snapshot() DrainReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r
}
