package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultLockTTL            = 30 * time.Second
	defaultFulfillmentTimeout = 15 * time.Second
)

var ErrLockTTLTooShort = errors.New("lock_ttl_not_above_fulfillment_timeout")

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewRedisClient returns nil when REDIS_ADDR is empty.
func NewRedisClient(p Params) *redis.Client {
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.RedisPassword),
		DB:       p.Config.RedisDB,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewLocker picks the redis locker when a client is configured, otherwise
// the in-process keyed mutex. The redis lease must outlive the fulfillment
// deadline.
func NewLocker(client *redis.Client, cfg config.Config, log *zap.Logger) (Locker, error) {
	if client == nil {
		log.Info("redis not configured, using in-process fulfillment lock")
		return NewKeyedMutex(), nil
	}

	ttl, timeout := cfg.Fulfillment.LockTTL, cfg.Fulfillment.Timeout
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if timeout <= 0 {
		timeout = defaultFulfillmentTimeout
	}
	if ttl <= timeout {
		return nil, fmt.Errorf("%w: FULFILLMENT_LOCK_TTL=%s FULFILLMENT_TIMEOUT=%s", ErrLockTTLTooShort, ttl, timeout)
	}
	return NewRedisLocker(client, ttl, log), nil
}
