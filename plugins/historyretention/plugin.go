// Package historyretention removes old entries from the archive of synced
// operations. It only has an effect on backends that keep history.
package historyretention

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/fieldsync/pkg/fieldsync"
	"github.com/bft-labs/fieldsync/pkg/log"
)

// Plugin periodically deletes history entries older than MaxAge.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval  time.Duration
	maxAge         time.Duration
	runImmediately bool

	// Runtime state
	history fieldsync.HistoryStore
	logger  fieldsync.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// Config holds configuration options for the retention plugin.
type Config struct {
	// CheckInterval is how often old entries are removed.
	// Default: 24 hours
	CheckInterval time.Duration

	// MaxAge is how long an archived operation is kept after pruning.
	// Default: 30 days
	MaxAge time.Duration

	// RunImmediately if true, runs a check on startup.
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  24 * time.Hour,
		MaxAge:         30 * 24 * time.Hour,
		RunImmediately: true,
	}
}

// New creates a retention plugin with the given configuration.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}

	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		maxAge:         cfg.MaxAge,
		runImmediately: cfg.RunImmediately,
		now:            time.Now,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "historyretention"
}

// Initialize starts the retention loop.
func (p *Plugin) Initialize(ctx context.Context, cfg fieldsync.PluginConfig) error {
	p.mu.Lock()
	p.history = cfg.History
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.mu.Unlock()

	if p.history == nil {
		p.logger.Warn("history retention disabled: backend keeps no history")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("history retention plugin initialized",
		log.Duration("max_age", p.maxAge),
		log.Duration("interval", p.checkInterval))

	p.wg.Add(1)
	go p.loop(loopCtx)

	return nil
}

// Shutdown stops the retention loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) loop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.pruneOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

// pruneOnce removes entries pruned before now - MaxAge.
func (p *Plugin) pruneOnce(ctx context.Context) {
	p.mu.RLock()
	history := p.history
	p.mu.RUnlock()

	cutoff := p.now().Add(-p.maxAge)
	n, err := history.PruneHistory(ctx, cutoff)
	if err != nil {
		p.logger.Error("history retention: prune failed", log.Err(err))
		return
	}
	if n > 0 {
		p.logger.Info("history retention completed", log.Int("removed", n))
	}
}
