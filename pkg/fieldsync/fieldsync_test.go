package fieldsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/pkg/fieldsync"
)

// backend is a fake REST API that records every request.
type backend struct {
	mu       sync.Mutex
	keys     []string
	paths    []string
	rejectID string
	srv      *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"remote"}]`))
		return
	}

	b.mu.Lock()
	key := r.Header.Get("Idempotency-Key")
	b.keys = append(b.keys, key)
	b.paths = append(b.paths, r.Method+" "+r.URL.Path)
	reject := b.rejectID != "" && key == b.rejectID
	b.mu.Unlock()

	if reject {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id":"srv-1"}`))
}

func (b *backend) requests() ([]string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...), append([]string(nil), b.paths...)
}

// switchProbe is a connectivity probe controlled by the test.
type switchProbe struct {
	online atomic.Bool
}

func (p *switchProbe) Check(context.Context) bool { return p.online.Load() }

func newClient(t *testing.T, b *backend, probe *switchProbe, backendKind string, opts ...fieldsync.Option) *fieldsync.Client {
	t.Helper()
	cfg := fieldsync.Config{
		DataDir:       t.TempDir(),
		Backend:       backendKind,
		ServiceURL:    b.srv.URL,
		AuthKey:       "secret",
		RetryBase:     time.Millisecond,
		CallTimeout:   time.Second,
		ProbeInterval: time.Hour,
		SyncInterval:  time.Hour,
	}
	opts = append([]fieldsync.Option{fieldsync.WithProbe(probe)}, opts...)
	c, err := fieldsync.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func enqueuePatient(t *testing.T, c *fieldsync.Client, name string) fieldsync.PendingOperation {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": name})
	require.NoError(t, err)
	op, err := c.Enqueue(context.Background(), fieldsync.NewOperation{
		Kind:     fieldsync.KindCreate,
		Resource: "patient",
		Payload:  payload,
	})
	require.NoError(t, err)
	return op
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  fieldsync.Config
	}{
		{"missing service url", fieldsync.Config{DataDir: t.TempDir()}},
		{"unknown backend", fieldsync.Config{DataDir: t.TempDir(), ServiceURL: "http://x", Backend: "redis"}},
		{"negative rate limit", fieldsync.Config{DataDir: t.TempDir(), ServiceURL: "http://x", RateLimit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fieldsync.New(context.Background(), tt.cfg)
			assert.ErrorIs(t, err, fieldsync.ErrInvalidConfig)
		})
	}
}

func TestClient_SyncDrainsQueue(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	probe := &switchProbe{}
	probe.online.Store(true)
	c := newClient(t, b, probe, fieldsync.BackendSQLite)

	first := enqueuePatient(t, c, "Ada")
	second := enqueuePatient(t, c, "Grace")
	assert.Equal(t, fieldsync.SyncIdle, c.CurrentStatus().State, "enqueue must not change status")

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 2, report.Pruned)
	assert.Equal(t, fieldsync.SyncSynced, report.State)

	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, fieldsync.SyncSynced, c.CurrentStatus().State)
	assert.False(t, c.CurrentStatus().LastSyncAt.IsZero())

	keys, paths := b.requests()
	assert.Equal(t, []string{first.ID, second.ID}, keys)
	assert.Equal(t, []string{"POST /api/patients", "POST /api/patients"}, paths)

	history, err := c.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, h := range history {
		assert.True(t, h.Operation.Synced)
	}
}

func TestClient_SyncWhileOffline(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	c := newClient(t, b, &switchProbe{}, fieldsync.BackendFile)

	enqueuePatient(t, c, "Ada")

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, fieldsync.SyncPending, report.State)
	assert.Zero(t, report.Attempted)

	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, _ := b.requests()
	assert.Empty(t, keys)

	_, err = c.History(ctx, 0)
	assert.ErrorIs(t, err, fieldsync.ErrHistoryUnavailable)
}

func TestClient_PoisonedOperationStaysUntilDismissed(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	probe := &switchProbe{}
	probe.online.Store(true)
	c := newClient(t, b, probe, fieldsync.BackendSQLite)

	enqueuePatient(t, c, "Ada")
	bad := enqueuePatient(t, c, "Bad")
	enqueuePatient(t, c, "Grace")
	b.mu.Lock()
	b.rejectID = bad.ID
	b.mu.Unlock()

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 1, report.Poisoned)
	assert.Equal(t, fieldsync.SyncError, c.CurrentStatus().State)

	n, err := c.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ops, err := c.Operations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.True(t, ops[0].Poisoned)
	assert.NotEmpty(t, ops[0].LastError)

	ok, err := c.Dismiss(ctx, bad.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	report, err = c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, fieldsync.SyncSynced, report.State)
}

func TestClient_StartSyncsOnReconnect(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	probe := &switchProbe{}
	c := newClient(t, b, probe, fieldsync.BackendSQLite)

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return c.Status() == fieldsync.StateRunning },
		time.Second, 5*time.Millisecond)

	enqueuePatient(t, c, "Ada")

	probe.online.Store(true)
	c.SetOnline(true, "test")

	require.Eventually(t, func() bool {
		n, err := c.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return c.CurrentStatus().State == fieldsync.SyncSynced
	}, time.Second, 5*time.Millisecond)

	probe.online.Store(false)
	c.SetOnline(false, "test")
	assert.Equal(t, fieldsync.SyncPending, c.CurrentStatus().State)

	require.NoError(t, c.Stop())
	assert.Equal(t, fieldsync.StateStopped, c.Status())
}

func TestClient_LifecycleErrors(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	c := newClient(t, b, &switchProbe{}, fieldsync.BackendFile)

	assert.ErrorIs(t, c.Stop(), fieldsync.ErrNotRunning)

	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Start(ctx), fieldsync.ErrAlreadyRunning)
	assert.Equal(t, fieldsync.StateRunning, c.Status())

	workers := c.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, "connectivity", workers[0].Name)
	assert.Equal(t, "engine", workers[1].Name)
	assert.True(t, workers[1].Running)

	require.NoError(t, c.Close())
	assert.Equal(t, fieldsync.StateStopped, c.Status())
	for _, w := range c.Workers() {
		assert.False(t, w.Running, w.Name)
		assert.NoError(t, w.Err, w.Name)
	}
}

func TestClient_StorageUsage(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{fieldsync.BackendSQLite, fieldsync.BackendFile} {
		t.Run(kind, func(t *testing.T) {
			c := newClient(t, newBackend(t), &switchProbe{}, kind)

			before, err := c.StorageUsage(ctx)
			require.NoError(t, err)

			enqueuePatient(t, c, "Ada")
			after, err := c.StorageUsage(ctx)
			require.NoError(t, err)
			assert.Greater(t, after, before)
		})
	}
}

func TestClient_ReadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	probe := &switchProbe{}
	c := newClient(t, b, probe, fieldsync.BackendSQLite)
	key := fieldsync.ListKey("patient")

	_, err := c.Read(ctx, key)
	assert.ErrorIs(t, err, fieldsync.ErrNoOfflineData)

	require.NoError(t, c.CachePut(ctx, key, []byte(`[{"id":"cached"}]`)))
	data, err := c.Read(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"cached"}]`, string(data))

	c.SetOnline(true, "test")
	data, err = c.Read(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"remote"}]`, string(data))

	entry, ok, err := c.CacheGet(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"remote"}]`, string(entry.Snapshot))

	require.NoError(t, c.ClearCache(ctx))
	_, ok, err = c.CacheGet(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_StatusSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	dir := t.TempDir()
	cfg := fieldsync.Config{DataDir: dir, ServiceURL: b.srv.URL, RetryBase: time.Millisecond}
	probe := &switchProbe{}
	probe.online.Store(true)

	c, err := fieldsync.New(ctx, cfg, fieldsync.WithProbe(probe))
	require.NoError(t, err)
	enqueuePatient(t, c, "Ada")
	_, err = c.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = fieldsync.New(ctx, cfg, fieldsync.WithProbe(probe))
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, fieldsync.SyncSynced, c.CurrentStatus().State)
}

type recordingHandler struct {
	fieldsync.BaseEventHandler
	mu       sync.Mutex
	synced   []string
	statuses []fieldsync.SyncState
}

func (h *recordingHandler) OnOperationSynced(e fieldsync.OperationSyncedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synced = append(h.synced, e.Operation.ID)
}

func (h *recordingHandler) OnSyncStatusChange(e fieldsync.SyncStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, e.Current.State)
}

func TestClient_EventHandler(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	probe := &switchProbe{}
	probe.online.Store(true)
	h := &recordingHandler{}
	c := newClient(t, b, probe, fieldsync.BackendFile, fieldsync.WithEventHandler(h))

	op := enqueuePatient(t, c, "Ada")
	_, err := c.Sync(ctx)
	require.NoError(t, err)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{op.ID}, h.synced)
	assert.Equal(t, []fieldsync.SyncState{fieldsync.SyncSyncing, fieldsync.SyncSynced}, h.statuses)
}

// trackingPlugin records Initialize and Shutdown calls.
type trackingPlugin struct {
	name    string
	order   *[]string
	mu      *sync.Mutex
	initErr error
	gotCfg  fieldsync.PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(_ context.Context, cfg fieldsync.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotCfg = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return p.initErr
}

func (p *trackingPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

func TestClient_PluginOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	a := &trackingPlugin{name: "a", order: &order, mu: &mu}
	z := &trackingPlugin{name: "z", order: &order, mu: &mu}

	b := newBackend(t)
	c := newClient(t, b, &switchProbe{}, fieldsync.BackendSQLite,
		fieldsync.WithPlugin(a), fieldsync.WithPlugin(z))

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.Status() == fieldsync.StateRunning },
		time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init:a", "init:z", "shutdown:z", "shutdown:a"}, order)
	assert.NotNil(t, a.gotCfg.History, "sqlite backend exposes history to plugins")
}

func TestClient_PluginInitFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	boom := errors.New("boom")
	p := &trackingPlugin{name: "bad", order: &order, mu: &mu, initErr: boom}

	b := newBackend(t)
	c := newClient(t, b, &switchProbe{}, fieldsync.BackendFile, fieldsync.WithPlugin(p))

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, fieldsync.StateCrashed, c.Status())
}
