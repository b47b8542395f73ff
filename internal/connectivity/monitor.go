// Package connectivity tracks whether the remote backend is reachable and
// notifies subscribers on transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/fieldsync/internal/ports"
)

// DefaultPollInterval is the fallback probe period.
const DefaultPollInterval = 30 * time.Second

// Probe reports whether the backend is reachable right now.
type Probe interface {
	Check(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) bool { return f(ctx) }

// Listener is called on every online/offline transition.
type Listener func(online bool, reason string)

// Monitor holds the current connectivity state. Sources push state through
// SetOnline; Run polls a Probe as a fallback.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]Listener
	nextID    int

	probe    Probe
	interval time.Duration
	logger   ports.Logger
}

var _ ports.Connectivity = (*Monitor)(nil)

// NewMonitor creates a monitor starting in the given state. probe may be nil
// when state is only pushed.
func NewMonitor(initial bool, probe Probe, interval time.Duration, logger ports.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		online:    initial,
		listeners: make(map[int]Listener),
		probe:     probe,
		interval:  interval,
		logger:    logger,
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for transitions and returns a function that
// removes it.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetOnline records the state reported by a source. Listeners run only when
// the state actually changes. It reports whether it did.
func (m *Monitor) SetOnline(online bool, reason string) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed",
		ports.Bool("online", online),
		ports.String("reason", reason),
	)
	for _, fn := range listeners {
		fn(online, reason)
	}
	return true
}

// Run probes immediately and then every poll interval until ctx is done.
// It returns nil at once when the monitor has no probe.
func (m *Monitor) Run(ctx context.Context) error {
	if m.probe == nil {
		return nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.SetOnline(m.probe.Check(ctx), "probe")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
