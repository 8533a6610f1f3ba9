package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCaptureLimiter(t *testing.T, rate float64, burst int) (*CaptureLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CaptureRate: rate, CaptureBurst: burst}}
	limiter := NewCaptureLimiter(cfg, client, zap.NewNop())
	require.NotNil(t, limiter)
	return limiter, mr
}

func TestCaptureLimiterSpendsBurstThenRefills(t *testing.T) {
	limiter, mr := newCaptureLimiter(t, 1, 2)
	ctx := context.Background()

	first := limiter.Allow(ctx, "42")
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.Equal(t, 2, first.Limit)
	assert.True(t, limiter.Allow(ctx, "42").Allowed)

	denied := limiter.Allow(ctx, "42")
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)

	mr.SetTime(time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC))
	assert.True(t, limiter.Allow(ctx, "42").Allowed)
	assert.False(t, limiter.Allow(ctx, "42").Allowed)
}

func TestCaptureLimiterBucketsPerUser(t *testing.T) {
	limiter, mr := newCaptureLimiter(t, 1, 1)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "1").Allowed)
	assert.False(t, limiter.Allow(ctx, "1").Allowed)
	assert.True(t, limiter.Allow(ctx, "2").Allowed)

	assert.True(t, mr.Exists("storefront:ratelimit:capture:1"))
	assert.Equal(t, 2*time.Second, mr.TTL("storefront:ratelimit:capture:1"))
}

func TestCaptureLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	limiter, mr := newCaptureLimiter(t, 1, 1)
	mr.Close()

	res := limiter.Allow(context.Background(), "42")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Limit)
}
