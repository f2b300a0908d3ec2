// Package ratelimit implements an approximate fixed-window limiter on top of
// a Redis INCR + EXPIRE NX transaction. A window boundary can admit up to
// 2*limit requests.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the subset of the Redis client the limiter needs.
type Counter interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

type Result struct {
	Allowed   bool
	Current   int64
	Limit     int64
	Remaining int64
	ResetTime time.Time
}

type Limiter struct {
	store   Counter
	prefix  string
	limit   int64
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithTimeout bounds each Redis call.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// New returns a limiter whose keys look like prefix:subject:windowStart.
// window is truncated to whole seconds and must be at least one second.
func New(store Counter, prefix string, limit int, window time.Duration, opts ...Option) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	l := &Limiter{
		store:   store,
		prefix:  prefix,
		limit:   int64(limit),
		window:  window.Truncate(time.Second),
		timeout: 500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Limit() int64 {
	return l.limit
}

// Key returns the counter key for subject in the window containing at.
func (l *Limiter) Key(subject string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, subject, l.windowStart(at))
}

func (l *Limiter) windowStart(at time.Time) int64 {
	secs := int64(l.window / time.Second)
	now := at.Unix()
	return now - now%secs
}

// Check counts one hit for subject and reports whether it is within the limit.
// INCR and EXPIRE NX go out in one MULTI, so a counter never outlives its
// window for lack of a TTL. The key expires two windows after its first hit.
func (l *Limiter) Check(ctx context.Context, subject string) (Result, error) {
	now := l.now()
	start := l.windowStart(now)
	key := l.Key(subject, now)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var incr *redis.IntCmd
	_, err := l.store.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, 2*l.window)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("incr %s: %w", key, err)
	}
	current := incr.Val()

	remaining := l.limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   current <= l.limit,
		Current:   current,
		Limit:     l.limit,
		Remaining: remaining,
		ResetTime: time.Unix(start, 0).Add(l.window),
	}, nil
}
