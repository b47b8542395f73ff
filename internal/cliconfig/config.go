package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/pkg/log"
)

// DefaultServiceURL is the default backend the queue syncs against.
const DefaultServiceURL = "http://localhost:3000"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds CLI configuration for fieldsync.
type Config struct {
	DataDir   string
	Backend   string
	Namespace string

	ServiceURL string
	AuthKey    string

	SyncInterval  time.Duration
	ProbeInterval time.Duration
	CallTimeout   time.Duration
	RetryBase     time.Duration
	RetryAttempts int
	Concurrency   int
	RateLimit     float64

	OnlineMarker string
	LogFile      string
	LogLevel     string

	SyncOnEnqueue bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendSQLite,
		Namespace:     domain.DefaultNamespace,
		ServiceURL:    DefaultServiceURL,
		SyncInterval:  30 * time.Second,
		ProbeInterval: 30 * time.Second,
		CallTimeout:   10 * time.Second,
		RetryBase:     200 * time.Millisecond,
		RetryAttempts: 3,
		Concurrency:   1,
		RateLimit:     10,
		LogLevel:      "info",
		AuthKey:       os.Getenv("FIELDSYNC_AUTH_KEY"),
	}
}

// DefaultDataDir returns ~/.fieldsync/data, or "" if the home directory is unknown.
func DefaultDataDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".fieldsync", "data")
	}
	return ""
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
		if c.DataDir == "" {
			return fmt.Errorf("%w: data-dir is required", domain.ErrInvalidConfig)
		}
	}

	switch c.Backend {
	case "":
		c.Backend = BackendSQLite
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("%w: unknown backend %q (want %s or %s)", domain.ErrInvalidConfig, c.Backend, BackendSQLite, BackendFile)
	}

	if c.Namespace == "" {
		c.Namespace = domain.DefaultNamespace
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")

	if c.SyncInterval <= 0 {
		return fmt.Errorf("%w: sync interval must be positive", domain.ErrInvalidConfig)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("%w: probe interval must be positive", domain.ErrInvalidConfig)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: call timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("%w: retry base must be positive", domain.ErrInvalidConfig)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1", domain.ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", domain.ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", domain.ErrInvalidConfig)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
