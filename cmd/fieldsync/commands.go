package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bft-labs/fieldsync/pkg/fieldsync"
	"github.com/bft-labs/fieldsync/pkg/log"
	"github.com/bft-labs/fieldsync/plugins/historyretention"
)

func (c *cli) runCmd() *cobra.Command {
	retention := historyretention.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor connectivity and sync in the background until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client, err := c.open(ctx,
				fieldsync.WithEventHandler(&logEvents{logger: c.logger}),
				historyretention.WithHistoryRetention(retention),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := client.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			n, err := client.PendingCount(ctx)
			if err != nil {
				return err
			}
			c.logger.Info("fieldsync running",
				log.Int("pending", n),
				log.String("status", client.CurrentStatus().State.String()))

			<-sigCh
			c.logger.Info("received signal, stopping...")

			if err := client.Stop(); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention.MaxAge, "history-max-age", retention.MaxAge, "how long synced operations are kept in history")
	cmd.Flags().DurationVar(&retention.CheckInterval, "history-check-interval", retention.CheckInterval, "how often old history is removed")
	return cmd
}

func (c *cli) enqueueCmd() *cobra.Command {
	var (
		recordID    string
		payload     string
		payloadFile string
		syncNow     bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue <create|update|delete> <resource>",
		Short: "Queue one operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind, err := fieldsync.ParseOperationKind(args[0])
			if err != nil {
				return err
			}

			body, err := readPayload(payload, payloadFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			op, err := client.Enqueue(ctx, fieldsync.NewOperation{
				Kind:     kind,
				Resource: args[1],
				RecordID: recordID,
				Payload:  body,
			})
			if err != nil {
				return err
			}

			if !syncNow {
				return c.print(cmd.OutOrStdout(), op, func(w io.Writer) {
					fmt.Fprintln(w, op.ID)
				})
			}

			report, err := client.Sync(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				fmt.Fprintln(w, op.ID)
				printReport(w, report)
			})
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "id of the target record (required for update and delete)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the JSON payload from a file (- for stdin)")
	cmd.Flags().BoolVar(&syncNow, "sync", false, "sync immediately after queueing")
	return cmd
}

func readPayload(inline, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case inline != "" && file != "":
		return nil, errors.New("use either --payload or --payload-file")
	case inline != "":
		return []byte(inline), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, nil
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Probe connectivity and drain the queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx, fieldsync.WithEventHandler(&logEvents{logger: c.logger}))
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Sync(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				printReport(w, report)
			})
		},
	}
}

func printReport(w io.Writer, r fieldsync.DrainReport) {
	if r.Coalesced {
		fmt.Fprintln(w, "a sync is already in progress")
		return
	}
	fmt.Fprintf(w, "status: %s\n", r.State)
	fmt.Fprintf(w, "attempted %d, synced %d, failed %d, poisoned %d, deferred %d, pruned %d (%s)\n",
		r.Attempted, r.Synced, r.Failed, r.Poisoned, r.Deferred, r.Pruned, r.Duration.Round(time.Millisecond))
	if r.Interrupted {
		fmt.Fprintln(w, "connectivity lost during sync; remaining operations stay queued")
	}
}

type statusView struct {
	Status       string    `json:"status"`
	LastSyncAt   time.Time `json:"last_sync,omitempty"`
	Pending      int       `json:"pending"`
	Poisoned     int       `json:"poisoned"`
	StorageBytes int64     `json:"storage_bytes"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync status and pending operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			ops, err := client.Operations(ctx)
			if err != nil {
				return err
			}
			st := client.CurrentStatus()
			v := statusView{Status: st.State.String(), LastSyncAt: st.LastSyncAt}
			if v.StorageBytes, err = client.StorageUsage(ctx); err != nil {
				return err
			}
			for _, op := range ops {
				if op.Synced {
					continue
				}
				v.Pending++
				if op.Poisoned {
					v.Poisoned++
				}
			}

			return c.print(cmd.OutOrStdout(), v, func(w io.Writer) {
				fmt.Fprintf(w, "status:    %s\n", v.Status)
				if v.LastSyncAt.IsZero() {
					fmt.Fprintln(w, "changed:   never")
				} else {
					fmt.Fprintf(w, "changed:   %s\n", v.LastSyncAt.Local().Format(time.RFC3339))
				}
				fmt.Fprintf(w, "pending:   %d\n", v.Pending)
				fmt.Fprintf(w, "storage:   %s\n", humanize.IBytes(uint64(v.StorageBytes)))
				if v.Poisoned > 0 {
					fmt.Fprintf(w, "rejected:  %d (see 'fieldsync list', remove with 'fieldsync dismiss')\n", v.Poisoned)
				}
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued operations in enqueue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			ops, err := client.Operations(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), ops, func(w io.Writer) {
				printOperations(w, ops, nil)
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List synced operations archived by prune (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := client.History(ctx, limit)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				ops := make([]fieldsync.PendingOperation, len(entries))
				pruned := make([]time.Time, len(entries))
				for i, e := range entries {
					ops[i] = e.Operation
					pruned[i] = e.PrunedAt
				}
				printOperations(w, ops, pruned)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show (0 for all)")
	return cmd
}

// printOperations writes a table of ops; pruned, when set, adds a column.
func printOperations(w io.Writer, ops []fieldsync.PendingOperation, pruned []time.Time) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "no operations")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tKIND\tRESOURCE\tRECORD\tENQUEUED\tSTATE\tATTEMPTS\tERROR"
	if pruned != nil {
		header += "\tPRUNED"
	}
	fmt.Fprintln(tw, header)
	for i, op := range ops {
		state := "pending"
		switch {
		case op.Synced:
			state = "synced"
		case op.Poisoned:
			state = "rejected"
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s",
			op.ID, op.Kind, op.Resource, op.RecordID,
			op.EnqueuedAt.Local().Format(time.RFC3339), state, op.Attempts, op.LastError)
		if pruned != nil {
			line += "\t" + pruned[i].Local().Format(time.RFC3339)
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}

func (c *cli) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove synced operations from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := client.Prune(ctx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]int{"pruned": n}, func(w io.Writer) {
				fmt.Fprintf(w, "pruned %d operations\n", n)
			})
		},
	}
}

func (c *cli) dismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <operation-id>",
		Short: "Remove one unsynced operation without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			ok, err := client.Dismiss(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no unsynced operation with id %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dismissed %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read or clear the offline read cache",
	}

	var offline bool
	get := &cobra.Command{
		Use:   "get <resource> [record-id]",
		Short: "Print a snapshot, fetching it when online",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			key := fieldsync.ListKey(args[0])
			if len(args) == 2 {
				key = fieldsync.RecordKey(args[0], args[1])
			}

			var data []byte
			if offline {
				entry, ok, err := client.CacheGet(ctx, key)
				if err != nil {
					return err
				}
				if !ok {
					return fieldsync.ErrNoOfflineData
				}
				data = entry.Snapshot
			} else {
				client.CheckConnectivity(ctx)
				if data, err = client.Read(ctx, key); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	get.Flags().BoolVar(&offline, "offline", false, "only read the local cache")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}

	cmd.AddCommand(get, clearCmd)
	return cmd
}

// print writes v as JSON with --json, otherwise calls text.
func (c *cli) print(w io.Writer, v any, text func(io.Writer)) error {
	if !c.jsonOut {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logEvents logs sync events through the CLI logger.
type logEvents struct {
	fieldsync.BaseEventHandler
	logger fieldsync.Logger
}

func (e *logEvents) OnSyncStatusChange(ev fieldsync.SyncStatusEvent) {
	e.logger.Info("sync status changed",
		log.String("from", ev.Previous.State.String()),
		log.String("to", ev.Current.State.String()))
}

func (e *logEvents) OnOperationFailed(ev fieldsync.OperationFailedEvent) {
	e.logger.Warn("operation failed",
		log.String("id", ev.Operation.ID),
		log.String("resource", ev.Operation.Resource),
		log.Bool("rejected", ev.Poisoned),
		log.Err(ev.Error))
}
