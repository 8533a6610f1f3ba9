package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/zap"
)

const keyCaptureUser = "storefront:ratelimit:capture:%s"

// CaptureLimiter throttles manual capture requests per user. A nil limiter
// allows everything.
type CaptureLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewCaptureLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *CaptureLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if client == nil {
		log.Warn("capture rate limit enabled without redis, limiter disabled")
		return nil
	}
	if limitCfg.CaptureRate <= 0 || limitCfg.CaptureBurst <= 0 {
		log.Warn("capture rate limit must be positive, limiter disabled",
			zap.Float64("rate", limitCfg.CaptureRate), zap.Int("burst", limitCfg.CaptureBurst))
		return nil
	}
	return &CaptureLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.CaptureRate,
		burst:  limitCfg.CaptureBurst,
		log:    log.Named("ratelimit.capture"),
	}
}

// Allow fails open: a redis error is logged and the request goes through.
func (l *CaptureLimiter) Allow(ctx context.Context, userID string) *RateLimitResult {
	if l == nil {
		return &RateLimitResult{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCaptureUser, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("capture rate limit check failed", zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: l.burst}
	}
	return res
}
