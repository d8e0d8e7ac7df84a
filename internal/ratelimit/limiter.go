// Package ratelimit gates outbound chain-RPC calls to a configured
// calls-per-second ceiling shared by every collector.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter blocks callers so that no more than the configured number of
// calls are issued within any trailing one-second window. It is safe for
// concurrent use; waiters are served in FIFO order.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing callsPerSecond calls per second.
// A non-positive value disables limiting.
func New(callsPerSecond int) *Limiter {
	if callsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(callsPerSecond), callsPerSecond)}
}

// Acquire blocks until issuing one call would stay within the ceiling.
// It fails only when the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
