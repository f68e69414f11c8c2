package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapperPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, w.Ping(ctx).Err())
	require.NoError(t, w.Set(ctx, "k", "v", time.Minute).Err())

	v, err := w.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	n, err := w.Del(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, w.Open())
}

func TestRedisWrapperMissIsNotAFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := w.Get(ctx, "absent").Result()
		assert.ErrorIs(t, err, redis.Nil)
	}
	assert.False(t, w.Open(), "cache misses must not trip the breaker")
}

func TestRedisWrapperOpensWhenServerDies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	w := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Error(t, w.Set(ctx, "k", "v", 0).Err())
	}
	assert.True(t, w.Open())
}
