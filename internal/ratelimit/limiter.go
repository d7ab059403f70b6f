// Package ratelimit enforces the per-client hourly request ceiling.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vehicle-lookup-api/internal/cache"
)

// Limiter decides whether another request from key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter counts requests per client in fixed windows aligned to
// window boundaries, the same windows RedisLimiter uses. Each client gets a
// non-refilling bucket of limit tokens that is replaced when a new window
// starts.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    int
	window   time.Duration
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	start    time.Time
	lastSeen time.Time
}

// NewMemoryLimiter creates a limiter allowing limit requests per window
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*entry),
		limit:    limit,
		window:   window,
		ttl:      2 * window,
		now:      time.Now,
	}
}

// Allow reports whether key may make another request
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	start := now.Truncate(m.window)
	e, ok := m.limiters[key]
	if !ok || !e.start.Equal(start) {
		// a zero rate never refills: the bucket holds exactly limit requests
		e = &entry{limiter: rate.NewLimiter(0, m.limit), start: start}
		m.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// Cleanup drops clients not seen within the retention period
func (m *MemoryLimiter) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for key, e := range m.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(m.limiters, key)
			removed++
		}
	}
	return removed
}

// Counter is a shared fixed-window counter
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// RedisLimiter counts requests per client in a fixed window shared by every
// instance. While Redis is unavailable it falls back to the memory limiter.
type RedisLimiter struct {
	counter  Counter
	fallback *MemoryLimiter
	limit    int64
	window   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a shared limiter allowing limit requests per window
func NewRedisLimiter(counter Counter, limit int, window time.Duration, logger zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		counter:  counter,
		fallback: NewMemoryLimiter(limit, window),
		limit:    int64(limit),
		window:   window,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
		now:      time.Now,
	}
}

// Allow reports whether key may make another request
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := r.counter.IncrWindow(ctx, key, r.window, r.now())
	if err != nil {
		if !errors.Is(err, cache.ErrUnavailable) {
			r.logger.Warn().Err(err).Msg("Shared rate counter failed, using local limiter")
		}
		return r.fallback.Allow(ctx, key)
	}
	return n <= r.limit, nil
}

// Cleanup drops idle clients from the local fallback limiter
func (r *RedisLimiter) Cleanup() int {
	return r.fallback.Cleanup()
}
