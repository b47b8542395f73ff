package fieldsync

import (
	"context"

	"github.com/bft-labs/fieldsync/internal/ports"
)

// Plugin extends a running Client.
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string

	// Initialize is called from Start. ctx is canceled on Stop.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called from Stop.
	Shutdown(ctx context.Context) error
}

// HistoryStore is implemented by backends that archive synced operations.
type HistoryStore = ports.HistoryStore

// PluginConfig is passed to plugins on Initialize.
type PluginConfig struct {
	DataDir    string
	Namespace  string
	ServiceURL string
	Logger     Logger

	// History is nil when the backend keeps no history.
	History HistoryStore
}
