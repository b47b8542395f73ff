package connectivity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bft-labs/fieldsync/internal/ports"
)

const healthEndpoint = "/health"

// DefaultProbeTimeout bounds one health check.
const DefaultProbeTimeout = 5 * time.Second

// HTTPProbe considers the backend reachable when its health endpoint answers
// with any HTTP response. Only transport failures mean offline.
type HTTPProbe struct {
	url     string
	client  ports.HTTPClient
	timeout time.Duration
}

// NewHTTPProbe creates a probe for serviceURL.
func NewHTTPProbe(serviceURL string, client ports.HTTPClient, timeout time.Duration) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProbe{
		url:     strings.TrimRight(serviceURL, "/") + healthEndpoint,
		client:  client,
		timeout: timeout,
	}
}

// Check performs one health request.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
