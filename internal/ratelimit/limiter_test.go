package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/cache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMemoryLimiter_CeilingPerClient(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	now := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "other clients have their own budget")

	now = now.Add(59 * time.Minute)
	ok, _ = l.Allow(ctx, "a")
	assert.False(t, ok, "no refill inside the window")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "new window starts with a full budget")
}

func TestMemoryLimiter_SteadyTrafficStaysUnderHourlyCeiling(t *testing.T) {
	l := NewMemoryLimiter(10, time.Hour)
	now := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	allowed := 0
	for minute := 0; minute < 60; minute++ {
		for i := 0; i < 10; i++ {
			if ok, _ := l.Allow(ctx, "10.0.0.1"); ok {
				allowed++
			}
		}
		now = now.Add(time.Minute)
	}
	assert.Equal(t, 10, allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	assert.Zero(t, l.Cleanup())

	now = now.Add(3 * time.Minute)
	assert.Equal(t, 1, l.Cleanup())
}

func newRedisLimiter(t *testing.T, limit int) (*RedisLimiter, *miniredis.Miniredis, *cache.CacheService) {
	t.Helper()
	mr := miniredis.RunT(t)
	cs, err := cache.NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr(), PoolSize: 2}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return NewRedisLimiter(cs, limit, time.Hour, zerolog.Nop()), mr, cs
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	l, _, _ := newRedisLimiter(t, 2)
	now := time.Date(2024, 9, 1, 10, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(30 * time.Minute)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "new window starts a new count")
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	a, _, cs := newRedisLimiter(t, 1)
	b := NewRedisLimiter(cs, 1, time.Hour, zerolog.Nop())
	ctx := context.Background()

	ok, _ := a.Allow(ctx, "ip")
	assert.True(t, ok)
	ok, _ = b.Allow(ctx, "ip")
	assert.False(t, ok)
}

func TestRedisLimiter_FallsBackWhenRedisDown(t *testing.T) {
	l, mr, _ := newRedisLimiter(t, 1)
	mr.Close()
	ctx := context.Background()

	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok, "local limiter still enforces the ceiling")
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("boom")
}

func newRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(l, zerolog.Nop(), "/health", "/metrics"))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/api/reg", ok)
	r.GET("/health", ok)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.7:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_RejectsWith200Body(t *testing.T) {
	r := newRouter(NewMemoryLimiter(1, time.Hour))

	first := get(r, "/api/reg")
	assert.Equal(t, "ok", first.Body.String())

	second := get(r, "/api/reg")
	assert.Equal(t, http.StatusOK, second.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, "You have exceeded the maximum number of requests allowed. Please try again later.", body["message"])
	assert.Equal(t, float64(429), body["code"])
}

func TestMiddleware_SkipsHealth(t *testing.T) {
	r := newRouter(NewMemoryLimiter(1, time.Hour))
	for i := 0; i < 3; i++ {
		assert.Equal(t, "ok", get(r, "/health").Body.String())
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	r := newRouter(errLimiter{})
	assert.Equal(t, "ok", get(r, "/api/reg").Body.String())
}
