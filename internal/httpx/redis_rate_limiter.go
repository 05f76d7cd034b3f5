package httpx

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// redisRateLimiter is the shared fixed-window limiter for multi-instance
// deployments. Each Allow is one pipelined round trip: INCR the window
// counter, arm its expiry if new, and read the remaining TTL so the
// rate-limit headers report the true window end. Redis failures fail open
// so an unavailable Redis never blocks runs.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter connects to Redis and verifies it is reachable.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		prefix:  "studio:ratelimit:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	windowKey := rl.prefix + key
	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.ExpireNX(ctx, windowKey, window)
	ttl := pipe.PTTL(ctx, windowKey)
	if _, err := pipe.Exec(ctx); err != nil {
		if rl.logger != nil {
			rl.logger.Error("redis rate limiter unavailable, allowing request", "error", err)
		}
		return rateDecision{allowed: true}
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	n := int(count.Val())
	return rateDecision{
		allowed:   n <= limit,
		count:     n,
		windowEnd: time.Now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}
