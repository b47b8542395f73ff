package http

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds outbound rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables limiting.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultRateLimit keeps a reconnecting client from flooding the backend
// with a large backlog.
var DefaultRateLimit = RateLimitConfig{RequestsPerSecond: 10, BurstSize: 20}

// rateLimiter is a token bucket that also honours server Retry-After hints.
type rateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return &rateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
}

// Wait blocks until a request may be sent.
func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// Backoff delays further requests by the server's Retry-After value.
// Only the delta-seconds form is understood.
func (r *rateLimiter) Backoff(retryAfter string) {
	secs, err := strconv.Atoi(retryAfter)
	if err != nil || secs <= 0 {
		return
	}
	until := time.Now().Add(time.Duration(secs) * time.Second)

	r.mu.Lock()
	if until.After(r.retryAt) {
		r.retryAt = until
	}
	r.mu.Unlock()
}
