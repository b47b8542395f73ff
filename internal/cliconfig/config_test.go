package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/fieldsync/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %v, want %v", cfg.Backend, BackendSQLite)
	}
	if cfg.Namespace != domain.DefaultNamespace {
		t.Errorf("Namespace = %v, want %v", cfg.Namespace, domain.DefaultNamespace)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want 30s", cfg.SyncInterval)
	}
	if cfg.CallTimeout != 10*time.Second {
		t.Errorf("CallTimeout = %v, want 10s", cfg.CallTimeout)
	}
	if cfg.RetryBase != 200*time.Millisecond || cfg.RetryAttempts != 3 {
		t.Errorf("retry = %v x%d, want 200ms x3", cfg.RetryBase, cfg.RetryAttempts)
	}
	if cfg.ServiceURL != DefaultServiceURL {
		t.Errorf("ServiceURL = %v, want %v", cfg.ServiceURL, DefaultServiceURL)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.DataDir = "/tmp/fieldsync"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"file backend", func(c *Config) { c.Backend = BackendFile }, false},
		{"empty backend defaults", func(c *Config) { c.Backend = "" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, true},
		{"zero sync interval", func(c *Config) { c.SyncInterval = 0 }, true},
		{"negative probe interval", func(c *Config) { c.ProbeInterval = -time.Second }, true},
		{"zero call timeout", func(c *Config) { c.CallTimeout = 0 }, true},
		{"zero retry base", func(c *Config) { c.RetryBase = 0 }, true},
		{"zero attempts", func(c *Config) { c.RetryAttempts = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, true},
		{"unlimited rate", func(c *Config) { c.RateLimit = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	c := Config{
		ServiceURL:    "http://api.example.com/",
		SyncInterval:  time.Second,
		ProbeInterval: time.Second,
		CallTimeout:   time.Second,
		RetryBase:     time.Millisecond,
		RetryAttempts: 1,
		Concurrency:   1,
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c.ServiceURL != "http://api.example.com" {
		t.Errorf("ServiceURL = %v, want trailing slash trimmed", c.ServiceURL)
	}
	if c.Backend != BackendSQLite {
		t.Errorf("Backend = %v, want %v", c.Backend, BackendSQLite)
	}
	if c.Namespace != domain.DefaultNamespace {
		t.Errorf("Namespace = %v, want %v", c.Namespace, domain.DefaultNamespace)
	}
	if c.DataDir == "" {
		t.Error("DataDir should be derived from the home directory")
	}
}
