package historyretention

import "github.com/bft-labs/fieldsync/pkg/fieldsync"

// WithHistoryRetention returns a fieldsync Option that enables periodic
// removal of old history entries.
//
// Usage:
//
//	c, err := fieldsync.New(ctx, cfg,
//	    historyretention.WithHistoryRetention(historyretention.Config{
//	        CheckInterval: 6 * time.Hour,
//	        MaxAge:        7 * 24 * time.Hour,
//	    }),
//	)
func WithHistoryRetention(cfg Config) fieldsync.Option {
	return fieldsync.WithPlugin(New(cfg))
}

// WithDefaultHistoryRetention enables retention with default settings
// (check every 24h, keep 30 days).
func WithDefaultHistoryRetention() fieldsync.Option {
	return WithHistoryRetention(DefaultConfig())
}
