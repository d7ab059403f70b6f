package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-lookup-api/config"
)

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr(), PoolSize: 2}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs, mr
}

func TestNewCacheService_Disabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false}, zerolog.Nop())
	assert.Error(t, err)
}

func TestIncrWindow_CountsWithinWindow(t *testing.T) {
	cs, mr := newTestCache(t)
	require.True(t, cs.IsHealthy())

	ctx := context.Background()
	now := time.Date(2024, 9, 1, 10, 15, 0, 0, time.UTC)

	for want := int64(1); want <= 3; want++ {
		got, err := cs.IncrWindow(ctx, "10.0.0.1", time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := cs.IncrWindow(ctx, "10.0.0.2", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	key := RateWindowKey("10.0.0.1", time.Hour, now)
	assert.Equal(t, time.Hour, mr.TTL(key))

	next, err := cs.IncrWindow(ctx, "10.0.0.1", time.Hour, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestIncrWindow_CounterExpires(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	_, err := cs.IncrWindow(ctx, "k", time.Minute, now)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(RateWindowKey("k", time.Minute, now)))
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cs, mr := newTestCache(t)
	mr.Close()

	ctx := context.Background()
	for i := 0; i < cs.maxFailures; i++ {
		_, err := cs.IncrWindow(ctx, "k", time.Hour, time.Now())
		require.Error(t, err)
	}

	assert.False(t, cs.IsHealthy())
	_, err := cs.IncrWindow(ctx, "k", time.Hour, time.Now())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, cs.maxFailures, cs.GetStats().FailureCount)
}

func TestRateWindowKey(t *testing.T) {
	now := time.Date(2024, 9, 1, 10, 59, 59, 0, time.UTC)
	start := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, "ratelimit:ip:"+strconv.FormatInt(start, 10), RateWindowKey("ip", time.Hour, now))
}
