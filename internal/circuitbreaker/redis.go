package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper runs Redis commands through a circuit breaker. redis.Nil is a
// cache miss, not a failure.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
}

func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	return &RedisWrapper{
		client: client,
		cb:     New("redis", RedisConfig(), logger),
	}
}

func (w *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := w.cb.Execute(ctx, func() error {
		result = w.client.Ping(ctx)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (w *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := w.cb.Execute(ctx, func() error {
		result = w.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (w *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := w.cb.Execute(ctx, func() error {
		result = w.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (w *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := w.cb.Execute(ctx, func() error {
		result = w.client.Del(ctx, keys...)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (w *RedisWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd
	err := w.cb.Execute(ctx, func() error {
		result = w.client.Keys(ctx, pattern)
		return result.Err()
	})
	if err != nil && result == nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (w *RedisWrapper) Close() error { return w.client.Close() }

// Open reports whether the breaker currently rejects commands.
func (w *RedisWrapper) Open() bool { return w.cb.State() == StateOpen }
