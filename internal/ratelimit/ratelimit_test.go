package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitloop-backend/internal/config"
)

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "uploads:provider123")
		require.NoError(t, err)
		assert.True(t, ok, "event %d", i)
	}

	ok, err := l.Allow(ctx, "uploads:provider123")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys have their own window
	ok, err = l.Allow(ctx, "uploads:other")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, mr.Exists("ratelimit:uploads:provider123"))
	assert.Greater(t, mr.TTL("ratelimit:uploads:provider123"), time.Duration(0))
}

func TestRedisLimiter_ErrorWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedisLimiter(client, 3, time.Minute).Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	l, client, err := New(ctx, config.RedisConfig{}, config.RateLimitConfig{UploadsPerWindow: 5, WindowSeconds: 60})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, NoopLimiter{}, l)

	mr := miniredis.RunT(t)
	l, client, err = New(ctx, config.RedisConfig{Addr: mr.Addr()}, config.RateLimitConfig{UploadsPerWindow: 5, WindowSeconds: 60})
	require.NoError(t, err)
	defer client.Close()
	assert.IsType(t, &RedisLimiter{}, l)
}

func TestNoopLimiter(t *testing.T) {
	ok, err := NoopLimiter{}.Allow(context.Background(), "anything")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_DeniedRetriesNotCounted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, 2, 200*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "uploads:p1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "uploads:p1")
		require.NoError(t, err)
		assert.False(t, ok, "retry %d", i)
	}

	members, err := mr.ZMembers("ratelimit:uploads:p1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Once the allowed events age out, the provider can upload again
	time.Sleep(250 * time.Millisecond)
	ok, err := l.Allow(ctx, "uploads:p1")
	require.NoError(t, err)
	assert.True(t, ok)
}
