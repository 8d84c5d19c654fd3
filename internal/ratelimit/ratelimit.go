package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/logging"
)

// Limiter decides whether another event for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NoopLimiter allows everything. Used when Redis is not configured.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set per key.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	seq    atomic.Uint64
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow trims entries older than the window, records this event, and counts
// what is left, all in one pipeline. A denied event is removed again so that
// retries do not extend the block.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	key = "ratelimit:" + key
	// Members must be unique even when two events share a timestamp
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now-l.window.Nanoseconds(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := card.Val()
	allowed := count <= int64(l.limit)
	if !allowed {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit release: %w", err)
		}
	}
	logging.Debug("Rate limit check",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Int("limit", l.limit),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

// New returns a RedisLimiter when Redis is configured and reachable, and a
// NoopLimiter when no address is set.
func New(ctx context.Context, rc config.RedisConfig, lc config.RateLimitConfig) (Limiter, *redis.Client, error) {
	if rc.Addr == "" || lc.UploadsPerWindow <= 0 {
		return NoopLimiter{}, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	window := time.Duration(lc.WindowSeconds) * time.Second
	return NewRedisLimiter(client, lc.UploadsPerWindow, window), client, nil
}
