package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/fieldsync/internal/cliconfig"
	"github.com/bft-labs/fieldsync/pkg/fieldsync"
	"github.com/bft-labs/fieldsync/pkg/log"
)

const helpDescription = `
Queue writes while offline and replay them to the backend when the network returns.

Highlights:
  - Durable queue in SQLite (default) or JSON files; nothing is lost on restart.
  - Replays per resource in enqueue order with an idempotency key per operation.
  - Retries transient failures with backoff; permanent rejections are kept for review.
  - Configure via $HOME/.fieldsync/config.toml, FIELDSYNC_* env vars, or flags.
`

var exampleUsage = strings.TrimSpace(`
  fieldsync enqueue create patient --payload '{"name":"Ada"}'
  fieldsync sync
  fieldsync status
  fieldsync run --service-url https://api.example.org --auth-key <api-key>
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries configuration shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	jsonOut bool
	logger  *log.ZerologAdapter
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline-first write queue and sync engine",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Close()
			}
		},
	}

	c.bindFlags(root.PersistentFlags())

	root.AddCommand(
		c.runCmd(),
		c.enqueueCmd(),
		c.syncCmd(),
		c.statusCmd(),
		c.listCmd(),
		c.historyCmd(),
		c.pruneCmd(),
		c.dismissCmd(),
		c.cacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) bindFlags(fs *pflag.FlagSet) {
	cfg := &c.cfg
	fs.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.fieldsync/config.toml)")
	fs.BoolVar(&c.jsonOut, "json", false, "print results as JSON")

	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the queue, status and cache (default: $HOME/.fieldsync/data)")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: sqlite or file")
	fs.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "key prefix for persisted state")

	fs.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base URL of the backend API")
	fs.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")

	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "fallback drain interval")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "connectivity probe interval")
	fs.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "timeout of one remote call")
	fs.DurationVar(&cfg.RetryBase, "retry-base", cfg.RetryBase, "first retry delay, doubled per retry")
	fs.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "attempts per operation and pass")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "resources drained in parallel")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "max requests per second (0 disables)")

	fs.StringVar(&cfg.OnlineMarker, "online-marker", cfg.OnlineMarker, "use the presence of this file as the connectivity signal")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write JSON logs to this rotating file instead of stderr")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.SyncOnEnqueue, "sync-on-enqueue", cfg.SyncOnEnqueue, "request a drain after every enqueue while online")
}

// load applies the config file, then FIELDSYNC_* variables, then flags.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	logger, err := cliconfig.NewLogger(c.cfg, "fieldsync")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	c.logger = logger

	logCfg := c.cfg
	if len(logCfg.AuthKey) > 0 {
		logCfg.AuthKey = "*****"
	}
	logger.Debug("configuration", log.Any("config", logCfg))
	return nil
}

// libConfig converts the CLI configuration to the library configuration.
func (c *cli) libConfig() fieldsync.Config {
	cfg := c.cfg
	return fieldsync.Config{
		DataDir:       cfg.DataDir,
		Backend:       cfg.Backend,
		Namespace:     cfg.Namespace,
		ServiceURL:    cfg.ServiceURL,
		AuthKey:       cfg.AuthKey,
		SyncInterval:  cfg.SyncInterval,
		ProbeInterval: cfg.ProbeInterval,
		CallTimeout:   cfg.CallTimeout,
		RetryBase:     cfg.RetryBase,
		RetryAttempts: cfg.RetryAttempts,
		Concurrency:   cfg.Concurrency,
		RateLimit:     cfg.RateLimit,
		OnlineMarker:  cfg.OnlineMarker,
		SyncOnEnqueue: cfg.SyncOnEnqueue,
	}
}

// open creates a client for one command. The caller must Close it.
func (c *cli) open(ctx context.Context, opts ...fieldsync.Option) (*fieldsync.Client, error) {
	opts = append([]fieldsync.Option{fieldsync.WithLogger(c.logger)}, opts...)
	client, err := fieldsync.New(ctx, c.libConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return client, nil
}
