package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a distributed rate limiter backed by Redis
type RedisLimiter struct {
	client      redis.UniversalClient
	prefix      string
	minInterval time.Duration
	poll        time.Duration
}

// NewRedis creates a new Redis-backed rate limiter
func NewRedis(client redis.UniversalClient, prefix string, minInterval time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "localtv:ratelimit:"
	}
	return &RedisLimiter{
		client:      client,
		prefix:      prefix,
		minInterval: minInterval,
		poll:        100 * time.Millisecond,
	}
}

func (l *RedisLimiter) key(host string) string {
	return l.prefix + host
}

// Allow claims the slot for host with SET NX; the key expires after the
// interval. Redis errors fail open.
func (l *RedisLimiter) Allow(host string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	set, err := l.client.SetNX(ctx, l.key(host), time.Now().Unix(), l.minInterval).Result()
	if err != nil {
		return true
	}
	return set
}

// Wait retries Allow, sleeping for the remaining TTL of the slot in between.
func (l *RedisLimiter) Wait(ctx context.Context, host string) error {
	for {
		if l.Allow(host) {
			return nil
		}

		delay := l.TimeUntilAllowed(host)
		if delay <= 0 {
			delay = l.poll
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// TimeUntilAllowed returns how long until the host can make another request
func (l *RedisLimiter) TimeUntilAllowed(host string) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ttl, err := l.client.PTTL(ctx, l.key(host)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// Reset removes the rate limit for a host
func (l *RedisLimiter) Reset(host string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l.client.Del(ctx, l.key(host))
}

var _ RateLimiter = (*RedisLimiter)(nil)
