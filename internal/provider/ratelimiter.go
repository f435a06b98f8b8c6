package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter paces outbound calls to at most R per second, process-wide
// and per-client, using a single shared critical section (spec.md §4.2
// "Rate limiting", §5 "Shared-resource policy"). Adapted from the
// teacher's sliding-window ratelimit.RateLimiter
// (internal/services/ratelimit/limiter.go), simplified here to a single
// minimum-interval gate since every call shares one budget rather than
// one per wallet ID.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration // 1/R
	next     time.Time     // earliest time the next call may leave

	log *zap.Logger
}

// NewRateLimiter builds a limiter pacing calls to requestsPerSecond per
// second. A non-positive rate disables pacing. log receives a debug-level
// entry whenever a call is actually delayed; it may be nil.
func NewRateLimiter(requestsPerSecond float64, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	rl := &RateLimiter{log: log}
	if requestsPerSecond > 0 {
		rl.interval = time.Duration(float64(time.Second) / requestsPerSecond)
	}
	return rl
}

// Wait blocks until the caller is clear to issue its next outbound call,
// or ctx is done. It reserves the next slot before returning so that two
// concurrent callers never leave within less than the configured interval.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.interval <= 0 {
		return nil
	}

	rl.mu.Lock()
	now := time.Now()
	wait := rl.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	rl.next = now.Add(wait).Add(rl.interval)
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	rl.log.Debug("rate limit delay", zap.Duration("wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
