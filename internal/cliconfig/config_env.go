package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (FIELDSYNC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("FIELDSYNC_DATA_DIR"), &cfg.DataDir)
	s.setString("backend", os.Getenv("FIELDSYNC_BACKEND"), &cfg.Backend)
	s.setString("namespace", os.Getenv("FIELDSYNC_NAMESPACE"), &cfg.Namespace)
	s.setString("service-url", os.Getenv("FIELDSYNC_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", os.Getenv("FIELDSYNC_AUTH_KEY"), &cfg.AuthKey)
	s.setString("online-marker", os.Getenv("FIELDSYNC_ONLINE_MARKER"), &cfg.OnlineMarker)
	s.setString("log-file", os.Getenv("FIELDSYNC_LOG_FILE"), &cfg.LogFile)
	s.setString("log-level", os.Getenv("FIELDSYNC_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("sync-interval", os.Getenv("FIELDSYNC_SYNC_INTERVAL"), &cfg.SyncInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", os.Getenv("FIELDSYNC_PROBE_INTERVAL"), &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("call-timeout", os.Getenv("FIELDSYNC_CALL_TIMEOUT"), &cfg.CallTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-base", os.Getenv("FIELDSYNC_RETRY_BASE"), &cfg.RetryBase); err != nil {
		return err
	}

	if err := s.setIntFromString("retry-attempts", os.Getenv("FIELDSYNC_RETRY_ATTEMPTS"), &cfg.RetryAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("concurrency", os.Getenv("FIELDSYNC_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}
	if err := s.setFloatFromString("rate-limit", os.Getenv("FIELDSYNC_RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}

	s.setBoolFromString("sync-on-enqueue", os.Getenv("FIELDSYNC_SYNC_ON_ENQUEUE"), &cfg.SyncOnEnqueue)

	return nil
}
