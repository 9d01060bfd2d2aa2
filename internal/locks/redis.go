package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/localtv/internal/logging"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only if the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// backend is the token-checked key store behind Redis.
type backend interface {
	acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) (bool, error)
}

type redisBackend struct {
	client redis.UniversalClient
}

func (b redisBackend) acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, token, ttl).Result()
}

func (b redisBackend) renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, b.client, []string{key}, token, ttl.Milliseconds()).Int64()
	return n == 1, err
}

func (b redisBackend) release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, b.client, []string{key}, token).Int64()
	return n == 1, err
}

// Redis is a Locker shared by every instance pointed at the same Redis.
// A held lock is renewed every third of its ttl, so it only lapses when the
// holder stops renewing, for example after a crash.
type Redis struct {
	backend backend
	prefix  string
	ttl     time.Duration
	logger  *logging.Logger
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, logger *logging.Logger) *Redis {
	return newRedis(redisBackend{client: client}, prefix, ttl, logger)
}

func newRedis(b backend, prefix string, ttl time.Duration, logger *logging.Logger) *Redis {
	if prefix == "" {
		prefix = "localtv:lock:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{backend: b, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := r.prefix + key

	ok, err := r.backend.acquire(ctx, fullKey, token, r.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	renewCtx, stopRenew := context.WithCancel(context.Background())
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		r.keepAlive(renewCtx, fullKey, token)
	}()

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			stopRenew()
			<-renewed

			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := r.backend.release(releaseCtx, fullKey, token)
			switch {
			case err != nil:
				r.logger.Error("Failed to release lock", logging.WithFields(map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				}))
			case !released:
				r.logger.Warn("Lock expired before release", logging.WithField("key", key))
			}
		})
	}
	return unlock, true, nil
}

// keepAlive extends the lock until ctx is cancelled or the lock is lost.
func (r *Redis) keepAlive(ctx context.Context, fullKey, token string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, r.ttl/3)
		ok, err := r.backend.renew(renewCtx, fullKey, token, r.ttl)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("Failed to renew lock", logging.WithFields(map[string]interface{}{
				"key":   fullKey,
				"error": err.Error(),
			}))
			continue
		}
		if !ok {
			r.logger.Error("Lock lost while held", logging.WithField("key", fullKey))
			return
		}
	}
}

var _ Locker = (*Redis)(nil)
