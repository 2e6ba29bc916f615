package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// IncrFunc atomically increments the counter for a given (project, key,
// minute) window and returns the post-increment value. It is satisfied
// by apikey.Store.IncrRate; the limiter is kept storage-agnostic so it
// can be tested without a store implementation.
type IncrFunc func(ctx context.Context, projectID, keyID string, minute int64, ttlSeconds int) (int64, error)

// Limiter enforces a fixed-window per-minute admission threshold.
//
// On admission it computes minute = floor(now / 60) and atomically
// increments the counter for that window. If the post-increment value
// exceeds the configured threshold, the request is denied. The limiter
// makes no ordering guarantees across concurrent calls beyond the
// atomicity of the underlying increment; the counter is monotonic
// within a window.
type Limiter struct {
	cfg  Config
	incr IncrFunc
}

// New builds a Limiter. cfg.CounterTTL must already satisfy 60 <
// CounterTTL <= 300; New does not validate it, that is the
// configuration layer's job.
func New(cfg Config, incr IncrFunc) *Limiter {
	return &Limiter{cfg: cfg, incr: incr}
}

// Allow admits or denies one validation for (projectID, keyID) at now.
func (l *Limiter) Allow(ctx context.Context, projectID, keyID string, now time.Time) (Result, error) {
	minute := now.Unix() / 60
	count, err := l.incr(ctx, projectID, keyID, minute, l.cfg.CounterTTL)
	if err != nil {
		return Result{}, fmt.Errorf("rate limiter increment: %w", err)
	}
	return Result{
		Allowed: count <= int64(l.cfg.Threshold),
		Count:   count,
	}, nil
}
