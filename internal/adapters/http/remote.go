// Package http implements the remote backend port over HTTP.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/bft-labs/fieldsync/internal/domain"
	"github.com/bft-labs/fieldsync/internal/ports"
	"github.com/bft-labs/fieldsync/pkg/log"
)

const (
	apiPrefix = "/api/"

	// IdempotencyHeader carries the operation ID so the backend can dedup replays.
	IdempotencyHeader = "Idempotency-Key"

	maxErrorBody = 4 << 10
	// maxBody caps acknowledgment and fetched snapshot bodies.
	maxBody = 8 << 20
)

var (
	// ErrUnauthorized marks a 401 or 403 response. It is transient: the
	// credentials are at fault, not the operation.
	ErrUnauthorized = errors.New("remote rejected credentials")

	errBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBody)
)

// RemoteConfig configures the HTTP remote.
type RemoteConfig struct {
	ServiceURL string
	AuthKey    string
	RateLimit  RateLimitConfig
}

// Remote implements ports.Remote and ports.Fetcher against a REST backend.
type Remote struct {
	client  ports.HTTPClient
	cfg     RemoteConfig
	limiter *rateLimiter
	logger  ports.Logger
}

var (
	_ ports.Remote  = (*Remote)(nil)
	_ ports.Fetcher = (*Remote)(nil)
)

// NewRemote creates a new HTTP remote.
func NewRemote(client ports.HTTPClient, cfg RemoteConfig, logger ports.Logger) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	cfg.ServiceURL = strings.TrimRight(cfg.ServiceURL, "/")
	return &Remote{
		client:  client,
		cfg:     cfg,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
}

// Apply sends one queued operation to the backend.
//
// A 409 response that echoes the operation ID in the Idempotency-Key header
// means the backend already holds the operation and is reported as a
// duplicate acknowledgment. Any other 409 is a rejection.
func (r *Remote) Apply(ctx context.Context, op domain.PendingOperation) (domain.Ack, error) {
	method, path, err := route(op)
	if err != nil {
		return domain.Ack{}, domain.Permanent(err)
	}

	var body io.Reader
	if op.Kind != domain.KindDelete && len(op.Payload) > 0 {
		body = bytes.NewReader(op.Payload)
	}

	req, err := r.newRequest(ctx, method, path, body)
	if err != nil {
		return domain.Ack{}, domain.Permanent(err)
	}
	req.Header.Set(IdempotencyHeader, op.ID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.do(ctx, req)
	if err != nil {
		return domain.Ack{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict && resp.Header.Get(IdempotencyHeader) == op.ID:
		r.logger.Debug("remote reported duplicate operation",
			ports.String("op_id", op.ID),
			ports.String("resource", op.Resource),
		)
		return domain.Ack{Duplicate: true}, nil
	case resp.StatusCode/100 == 2:
		snapshot, err := readBody(resp.Body)
		if err != nil {
			// The write was accepted. Losing the snapshot only costs a cache refresh.
			r.logger.Warn("failed to read acknowledgment body", ports.String("op_id", op.ID), ports.Err(err))
			return domain.Ack{}, nil
		}
		return domain.Ack{Snapshot: jsonOrNil(snapshot)}, nil
	default:
		return domain.Ack{}, r.classify(resp)
	}
}

// Fetch reads the authoritative snapshot for key.
func (r *Remote) Fetch(ctx context.Context, key domain.CacheKey) ([]byte, error) {
	path := collectionPath(key.Resource)
	if !key.IsList() {
		path += "/" + url.PathEscape(key.ID)
	}

	req, err := r.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, domain.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, r.classify(resp)
	}
	data, err := readBody(resp.Body)
	if errors.Is(err, errBodyTooLarge) {
		return nil, domain.Permanent(err)
	}
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("read response: %w", err))
	}
	return data, nil
}

// readBody reads at most maxBody bytes and fails with errBodyTooLarge when
// the body is longer.
func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBody {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func (r *Remote) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.ServiceURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.AuthKey)
	}
	req.Header.Set("User-Agent", "fieldsync ("+runtime.GOOS+"/"+runtime.GOARCH+")")
	return req, nil
}

func (r *Remote) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, domain.Transient(fmt.Errorf("rate limit wait: %w", err))
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("send request: %w", err))
	}
	return resp, nil
}

// classify maps a non-success response onto the error taxonomy.
func (r *Remote) classify(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		r.limiter.Backoff(resp.Header.Get("Retry-After"))
		return domain.Transient(err)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return domain.Transient(fmt.Errorf("%w: %w", ErrUnauthorized, err))
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooEarly,
		resp.StatusCode >= 500:
		return domain.Transient(err)
	case resp.StatusCode >= 400:
		return domain.Permanent(err)
	default:
		// 1xx and unfollowed 3xx
		return domain.Transient(err)
	}
}

func route(op domain.PendingOperation) (method, path string, err error) {
	base := collectionPath(op.Resource)
	switch op.Kind {
	case domain.KindCreate:
		return http.MethodPost, base, nil
	case domain.KindUpdate, domain.KindDelete:
		if op.RecordID == "" {
			return "", "", fmt.Errorf("%s of %s requires a record id", op.Kind, op.Resource)
		}
		method := http.MethodPut
		if op.Kind == domain.KindDelete {
			method = http.MethodDelete
		}
		return method, base + "/" + url.PathEscape(op.RecordID), nil
	default:
		return "", "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func collectionPath(resource string) string {
	return apiPrefix + url.PathEscape(resource) + "s"
}

func jsonOrNil(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return b
}
