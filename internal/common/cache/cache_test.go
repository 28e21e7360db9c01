package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, "test:"), mr
}

func TestLocalCache_SetNX(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Minute, time.Minute)

	inserted, err := c.SetNX(ctx, "key", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = c.SetNX(ctx, "key", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted)

	value, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("first"), value)
}

func TestLocalCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Minute, time.Minute)

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "key"))

	_, found, err = c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_SetNX(t *testing.T) {
	ctx := context.Background()
	c, _ := setupRedisCache(t)

	inserted, err := c.SetNX(ctx, "key", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = c.SetNX(ctx, "key", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted)

	value, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("first"), value)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)

	inserted, err := c.SetNX(ctx, "key", []byte("value"), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, inserted)

	mr.FastForward(11 * time.Second)

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)

	// Expired key can be claimed again.
	inserted, err = c.SetNX(ctx, "key", []byte("fresh"), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	assert.True(t, mr.Exists("test:key"))
}

func TestRedisCache_StoreDown(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)
	mr.Close()

	_, err := c.SetNX(ctx, "key", []byte("value"), time.Minute)
	assert.Error(t, err)

	_, _, err = c.Get(ctx, "key")
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		c, err := New(Config{Type: TypeLocal, TTL: time.Minute, CleanupInterval: time.Minute})
		require.NoError(t, err)
		assert.IsType(t, &LocalCache{}, c)
	})

	t.Run("redis requires client", func(t *testing.T) {
		_, err := New(Config{Type: TypeRedis})
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(Config{Type: "bogus"})
		assert.Error(t, err)
	})
}
