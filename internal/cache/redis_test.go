package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCache_GetSet(t *testing.T) {
	c, _ := setupRedis(t)
	ctx := context.Background()

	val, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	val, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, c.Del(ctx, "k"))
	val, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestRedisCache_Expiration(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "snapshot", "data", time.Minute))
	mr.FastForward(2 * time.Minute)

	val, err := c.Get(ctx, "snapshot")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestRedisCache_Incr(t *testing.T) {
	c, _ := setupRedis(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisCache_HealthFailsWhenServerDown(t *testing.T) {
	c, mr := setupRedis(t)
	require.NoError(t, c.Health(context.Background()))

	mr.Close()
	assert.Error(t, c.Health(context.Background()))
}
