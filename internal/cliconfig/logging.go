package cliconfig

import "github.com/bft-labs/fieldsync/pkg/log"

// NewLogger builds the CLI logger: console on stderr, or rotating JSON lines
// when a log file is configured.
func NewLogger(cfg Config, component string) (*log.ZerologAdapter, error) {
	return log.New(log.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		Component: component,
	})
}
