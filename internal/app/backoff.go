package app

import (
	"context"
	"math/rand"
	"time"
)

// Default retry configuration values.
const (
	DefaultRetryBase     = 200 * time.Millisecond
	DefaultRetryMax      = 10 * time.Second
	DefaultRetryAttempts = 3
)

// RetryPolicy bounds the attempts made for one operation within a drain pass.
type RetryPolicy struct {
	// Base is the delay after the first failed attempt. It doubles per retry.
	Base time.Duration
	// Max caps a single delay.
	Max time.Duration
	// Attempts is the total number of attempts, including the first.
	Attempts int
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:     DefaultRetryBase,
		Max:      DefaultRetryMax,
		Attempts: DefaultRetryAttempts,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	return p
}

// backoff implements exponential backoff with jitter.
type backoff struct {
	max     time.Duration
	current time.Duration
}

// newBackoff creates a new backoff with the given initial and max durations.
func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{
		max:     max,
		current: initial,
	}
}

// Next returns the current delay with ±20% jitter and doubles the base for
// the following call.
func (b *backoff) Next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Sleep waits for the next backoff delay or until ctx is done.
func (b *backoff) Sleep(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
