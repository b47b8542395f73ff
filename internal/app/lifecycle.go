package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Names of the sync service's background workers.
const (
	WorkerEngine       = "engine"
	WorkerConnectivity = "connectivity"
	WorkerMarker       = "online-marker"
)

// State represents the lifecycle state of a running sync service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// WorkerInfo describes one background worker of the current or last run.
type WorkerInfo struct {
	Name      string
	Running   bool
	StartedAt time.Time
	StoppedAt time.Time
	// Err is the error the worker returned, if it did not stop because
	// the service was shut down.
	Err error
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle owns the background workers of the sync service (engine loop,
// connectivity monitor, online marker watcher) and the state machine that
// starts and stops them together.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	workers []*WorkerInfo

	logger  ports.Logger
	emitter EventEmitter
	now     func() time.Time
}

// NewLifecycle creates a stopped lifecycle.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:   StateStopped,
		logger:  logger,
		emitter: emitter,
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// CanStop reports whether Shutdown would act.
func (l *Lifecycle) CanStop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateRunning || l.state == StateStarting
}

// Begin moves a stopped or crashed service to Starting and returns the
// context its workers run under. Workers of a previous run are forgotten.
func (l *Lifecycle) Begin(parent context.Context, reason string) (context.Context, error) {
	l.mu.Lock()
	if l.state != StateStopped && l.state != StateCrashed {
		l.mu.Unlock()
		return nil, domain.ErrAlreadyRunning
	}
	l.ctx, l.cancel = context.WithCancel(parent)
	l.workers = nil
	ctx := l.ctx
	prev := l.setState(StateStarting)
	l.mu.Unlock()

	l.announce(prev, StateStarting, reason)
	return ctx, nil
}

// Ready moves a starting service to Running. It fails with
// domain.ErrNotRunning when a critical worker crashed the service first.
func (l *Lifecycle) Ready(reason string) error {
	return l.transition(reason, StateRunning, StateStarting)
}

// Abort crashes a service that failed before it became ready and cancels
// any worker already launched.
func (l *Lifecycle) Abort(reason string) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()
	_ = l.transition(reason, StateCrashed, StateStarting)
}

// Go runs fn as the named worker under the context returned by Begin.
// When a critical worker fails the service crashes and the remaining
// workers are cancelled. A worker returning after cancellation is a
// normal stop.
func (l *Lifecycle) Go(name string, critical bool, fn func(ctx context.Context) error) {
	l.mu.Lock()
	ctx := l.ctx
	info := &WorkerInfo{Name: name, Running: true, StartedAt: l.now()}
	l.workers = append(l.workers, info)
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		err := fn(ctx)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = nil
		}

		l.mu.Lock()
		info.Running = false
		info.StoppedAt = l.now()
		info.Err = err
		cancel := l.cancel
		l.mu.Unlock()

		if err == nil {
			return
		}
		l.logger.Error("worker stopped", ports.String("worker", name), ports.Err(err))
		if critical {
			cancel()
			_ = l.transition(name+": "+err.Error(), StateCrashed, StateStarting, StateRunning)
		}
	}()
}

// Workers returns a snapshot of the workers of the current or last run in
// the order they were started.
func (l *Lifecycle) Workers() []WorkerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]WorkerInfo, len(l.workers))
	for i, w := range l.workers {
		out[i] = *w
	}
	return out
}

// Shutdown cancels the workers of a starting or running service and waits
// up to timeout for them to return. cleanup runs once the wait is over,
// before the final transition to Stopped, or to Crashed when the workers
// did not return in time.
func (l *Lifecycle) Shutdown(timeout time.Duration, reason string, cleanup func()) error {
	if err := l.transition(reason, StateStopping, StateStarting, StateRunning); err != nil {
		return err
	}
	l.mu.Lock()
	l.cancel()
	l.mu.Unlock()

	err := l.wait(timeout)
	if cleanup != nil {
		cleanup()
	}

	if err != nil {
		_ = l.transition("shutdown timeout", StateCrashed, StateStopping)
		return err
	}
	_ = l.transition("graceful shutdown", StateStopped, StateStopping)
	return nil
}

func (l *Lifecycle) wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit", ports.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}

// transition moves to next if the current state is one of from.
func (l *Lifecycle) transition(reason string, next State, from ...State) error {
	l.mu.Lock()
	allowed := false
	for _, s := range from {
		if l.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		return domain.ErrNotRunning
	}
	prev := l.setState(next)
	l.mu.Unlock()

	l.announce(prev, next, reason)
	return nil
}

// setState must be called with l.mu held.
func (l *Lifecycle) setState(next State) State {
	prev := l.state
	l.state = next
	return prev
}

func (l *Lifecycle) announce(prev, next State, reason string) {
	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
}
