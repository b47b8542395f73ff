package fieldsync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config configures a Client.
type Config struct {
	// DataDir holds the queue, status and cache. Default: ~/.fieldsync/data
	DataDir string

	// Backend is "sqlite" (default) or "file".
	Backend string

	// Namespace prefixes every persisted key. Default: "fieldsync"
	Namespace string

	// ServiceURL is the base URL of the backend API.
	ServiceURL string

	// AuthKey is sent as a bearer token.
	AuthKey string

	// SyncInterval is the fallback drain period. Default: 30s
	SyncInterval time.Duration

	// ProbeInterval is the connectivity poll period. Default: 30s
	ProbeInterval time.Duration

	// CallTimeout bounds one remote attempt. Default: 10s
	CallTimeout time.Duration

	// RetryBase is the first retry delay; it doubles per retry. Default: 200ms
	RetryBase time.Duration

	// RetryAttempts is the total number of attempts per operation and pass. Default: 3
	RetryAttempts int

	// Concurrency is the number of resources drained in parallel. Default: 1
	Concurrency int

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64

	// OnlineMarker, when set, switches connectivity detection from HTTP
	// probing to the presence of this file.
	OnlineMarker string

	// SyncOnEnqueue requests a drain after every enqueue while online.
	SyncOnEnqueue bool
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		if h, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(h, ".fieldsync", "data")
		}
	}
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Namespace == "" {
		c.Namespace = domain.DefaultNamespace
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir is required", ErrInvalidConfig)
	}
	if c.Backend != BackendSQLite && c.Backend != BackendFile {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
