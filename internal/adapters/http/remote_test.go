package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fieldsync/internal/domain"
)

func newTestRemote(t *testing.T, h http.HandlerFunc) *Remote {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRemote(srv.Client(), RemoteConfig{ServiceURL: srv.URL + "/", AuthKey: "secret"}, nil)
}

func op(kind domain.OperationKind, resource, record, payload string) domain.PendingOperation {
	return domain.NewOperation{
		Kind:     kind,
		Resource: resource,
		RecordID: record,
		Payload:  []byte(payload),
	}.Build(time.Now())
}

func TestRemote_ApplyRoutes(t *testing.T) {
	tests := []struct {
		name       string
		op         domain.PendingOperation
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{"create", op(domain.KindCreate, "patient", "", `{"name":"A"}`), http.MethodPost, "/api/patients", `{"name":"A"}`},
		{"update", op(domain.KindUpdate, "test", "t1", `{"v":2}`), http.MethodPut, "/api/tests/t1", `{"v":2}`},
		{"delete", op(domain.KindDelete, "referral", "r 9", ""), http.MethodDelete, "/api/referrals/r%209", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRemote(t, func(w http.ResponseWriter, req *http.Request) {
				assert.Equal(t, tt.wantMethod, req.Method)
				assert.Equal(t, tt.wantPath, req.URL.EscapedPath())
				assert.Equal(t, tt.op.ID, req.Header.Get(IdempotencyHeader))
				assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
				body, _ := io.ReadAll(req.Body)
				assert.Equal(t, tt.wantBody, string(body))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"id":"srv-1"}`))
			})

			ack, err := r.Apply(context.Background(), tt.op)
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"srv-1"}`, string(ack.Snapshot))
			assert.False(t, ack.Duplicate)
		})
	}
}

func TestRemote_ApplyClassifiesStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		echo         bool
		duplicate    bool
		transient    bool
		permanent    bool
		unauthorized bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "no content", status: http.StatusNoContent},
		{name: "conflict echoing key", status: http.StatusConflict, echo: true, duplicate: true},
		{name: "conflict without key", status: http.StatusConflict, permanent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, transient: true, unauthorized: true},
		{name: "forbidden", status: http.StatusForbidden, transient: true, unauthorized: true},
		{name: "request timeout", status: http.StatusRequestTimeout, transient: true},
		{name: "too early", status: http.StatusTooEarly, transient: true},
		{name: "too many requests", status: http.StatusTooManyRequests, transient: true},
		{name: "internal error", status: http.StatusInternalServerError, transient: true},
		{name: "bad gateway", status: http.StatusBadGateway, transient: true},
		{name: "bad request", status: http.StatusBadRequest, permanent: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, permanent: true},
		{name: "not found", status: http.StatusNotFound, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRemote(t, func(w http.ResponseWriter, req *http.Request) {
				if tt.echo {
					w.Header().Set(IdempotencyHeader, req.Header.Get(IdempotencyHeader))
				}
				w.WriteHeader(tt.status)
			})

			ack, err := r.Apply(context.Background(), op(domain.KindCreate, "patient", "", `{}`))
			switch {
			case tt.transient:
				require.Error(t, err)
				assert.True(t, domain.IsTransient(err), "got %v", err)
				assert.False(t, domain.IsPermanent(err))
				assert.Equal(t, tt.unauthorized, errors.Is(err, ErrUnauthorized))
			case tt.permanent:
				require.Error(t, err)
				assert.True(t, domain.IsPermanent(err), "got %v", err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.duplicate, ack.Duplicate)
				assert.Nil(t, ack.Snapshot)
			}
		})
	}
}

func TestRemote_ConflictForAnotherKeyIsRejection(t *testing.T) {
	r := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(IdempotencyHeader, "some-other-operation")
		w.WriteHeader(http.StatusConflict)
	})

	_, err := r.Apply(context.Background(), op(domain.KindCreate, "patient", "", `{}`))
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestRemote_OversizedBodies(t *testing.T) {
	huge := `[` + strings.Repeat(`1,`, maxBody/2) + `1]`
	r := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(huge))
	})
	ctx := context.Background()

	ack, err := r.Apply(ctx, op(domain.KindCreate, "patient", "", `{}`))
	require.NoError(t, err, "the write was accepted even though the ack is dropped")
	assert.Nil(t, ack.Snapshot)

	_, err = r.Fetch(ctx, domain.ListKey("patient"))
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.ErrorIs(t, err, errBodyTooLarge)
}

func TestRemote_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	r := NewRemote(nil, RemoteConfig{ServiceURL: srv.URL}, nil)
	_, err := r.Apply(context.Background(), op(domain.KindCreate, "patient", "", `{}`))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestRemote_TimeoutIsTransient(t *testing.T) {
	r := newTestRemote(t, func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Apply(ctx, op(domain.KindCreate, "patient", "", `{}`))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRemote_UpdateWithoutRecordIsPermanent(t *testing.T) {
	var calls atomic.Int32
	r := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})

	_, err := r.Apply(context.Background(), op(domain.KindUpdate, "patient", "", `{}`))
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Zero(t, calls.Load())
}

func TestRemote_Fetch(t *testing.T) {
	r := newTestRemote(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		switch req.URL.Path {
		case "/api/patients":
			_, _ = w.Write([]byte(`[{"id":"p1"}]`))
		case "/api/patients/p1":
			_, _ = w.Write([]byte(`{"id":"p1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	list, err := r.Fetch(ctx, domain.ListKey("patient"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(list))

	rec, err := r.Fetch(ctx, domain.RecordKey("patient", "p1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1"}`, string(rec))

	_, err = r.Fetch(ctx, domain.RecordKey("patient", "nope"))
	assert.True(t, domain.IsPermanent(err))
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{})
	l.Backoff("1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)

	l = newRateLimiter(RateLimitConfig{})
	l.Backoff("garbage")
	assert.NoError(t, l.Wait(context.Background()))
}
