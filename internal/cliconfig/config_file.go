package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir       string  `toml:"data_dir"`
	Backend       string  `toml:"backend"`
	Namespace     string  `toml:"namespace"`
	ServiceURL    string  `toml:"service_url"`
	AuthKey       string  `toml:"auth_key"`
	SyncInterval  string  `toml:"sync_interval"`
	ProbeInterval string  `toml:"probe_interval"`
	CallTimeout   string  `toml:"call_timeout"`
	RetryBase     string  `toml:"retry_base"`
	RetryAttempts int     `toml:"retry_attempts"`
	Concurrency   int     `toml:"concurrency"`
	RateLimit     float64 `toml:"rate_limit"`
	OnlineMarker  string  `toml:"online_marker"`
	LogFile       string  `toml:"log_file"`
	LogLevel      string  `toml:"log_level"`
	SyncOnEnqueue *bool   `toml:"sync_on_enqueue"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.fieldsync/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".fieldsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("namespace", fc.Namespace, &cfg.Namespace)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("online-marker", fc.OnlineMarker, &cfg.OnlineMarker)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("sync-interval", fc.SyncInterval, &cfg.SyncInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", fc.ProbeInterval, &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("call-timeout", fc.CallTimeout, &cfg.CallTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-base", fc.RetryBase, &cfg.RetryBase); err != nil {
		return err
	}

	s.setInt("retry-attempts", fc.RetryAttempts, &cfg.RetryAttempts)
	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)
	s.setFloat("rate-limit", fc.RateLimit, &cfg.RateLimit)

	s.setBool("sync-on-enqueue", fc.SyncOnEnqueue, &cfg.SyncOnEnqueue)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
