package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/cliconfig"
	"github.com/bft-labs/fieldsync/pkg/fieldsync"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"a":1}`), 0o644))

	tests := []struct {
		name    string
		inline  string
		file    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "none"},
		{name: "inline", inline: `{"x":1}`, want: `{"x":1}`},
		{name: "file", file: file, want: `{"a":1}`},
		{name: "stdin", file: "-", stdin: `{"s":1}`, want: `{"s":1}`},
		{name: "both", inline: "{}", file: file, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.inline, tt.file, strings.NewReader(tt.stdin))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestLoad_FlagsOverrideEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
data_dir = "`+filepath.ToSlash(dir)+`"
backend = "file"
concurrency = 2
sync_interval = "1m"
`), 0o644))
	t.Setenv("FIELDSYNC_CONCURRENCY", "4")

	c := &cli{cfg: cliconfig.DefaultConfig()}
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	c.bindFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--config", cfgFile, "--sync-interval", "5s"}))

	require.NoError(t, c.load(cmd))
	defer c.logger.Close()

	assert.Equal(t, "file", c.cfg.Backend)
	assert.Equal(t, 4, c.cfg.Concurrency, "env overrides file")
	assert.Equal(t, 5*time.Second, c.cfg.SyncInterval, "flag overrides file")

	lib := c.libConfig()
	assert.Equal(t, fieldsync.BackendFile, lib.Backend)
	assert.Equal(t, dir, filepath.ToSlash(lib.DataDir))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, fieldsync.DrainReport{Attempted: 3, Synced: 2, Poisoned: 1, State: fieldsync.SyncError})
	out := buf.String()
	assert.Contains(t, out, "status: error")
	assert.Contains(t, out, "synced 2")
	assert.Contains(t, out, "poisoned 1")

	buf.Reset()
	printReport(&buf, fieldsync.DrainReport{Coalesced: true})
	assert.Contains(t, buf.String(), "already in progress")
}

func TestPrintOperations(t *testing.T) {
	var buf bytes.Buffer
	printOperations(&buf, nil, nil)
	assert.Equal(t, "no operations\n", buf.String())

	buf.Reset()
	printOperations(&buf, []fieldsync.PendingOperation{
		{ID: "patient-1-a", Kind: fieldsync.KindCreate, Resource: "patient"},
		{ID: "patient-2-b", Kind: fieldsync.KindUpdate, Resource: "patient", RecordID: "p1", Poisoned: true, LastError: "permanent: 422"},
	}, nil)
	out := buf.String()
	assert.Contains(t, out, "patient-1-a")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "permanent: 422")
}

func TestPrint_JSON(t *testing.T) {
	var buf bytes.Buffer
	c := &cli{jsonOut: true}
	require.NoError(t, c.print(&buf, map[string]int{"pruned": 2}, func(io.Writer) {}))
	assert.JSONEq(t, `{"pruned":2}`, buf.String())
}

func TestStatusCmd_ReportsStorageUsage(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
data_dir = "`+filepath.ToSlash(dir)+`"
backend = "file"
service_url = "http://127.0.0.1:9"
`), 0o644))

	c := &cli{cfg: cliconfig.DefaultConfig()}
	root := &cobra.Command{Use: "test"}
	c.bindFlags(root.Flags())
	require.NoError(t, root.Flags().Parse([]string{"--config", cfgFile, "--json"}))
	require.NoError(t, c.load(root))
	defer c.logger.Close()

	client, err := c.open(context.Background())
	require.NoError(t, err)
	_, err = client.Enqueue(context.Background(), fieldsync.NewOperation{
		Kind:     fieldsync.KindCreate,
		Resource: "patient",
		Payload:  []byte(`{"name":"Ada"}`),
	})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	var out bytes.Buffer
	cmd := c.statusCmd()
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.RunE(cmd, nil))

	var v statusView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, 1, v.Pending)
	assert.Positive(t, v.StorageBytes)
}
