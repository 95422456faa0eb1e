package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/contract-approval/internal/application/port"
)

// ErrLockTimeout is returned when a lock could not be acquired within the wait budget
var ErrLockTimeout = errors.New("lock wait timeout")

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig tunes the distributed lock
type RedisConfig struct {
	Prefix       string
	TTL          time.Duration
	WaitTimeout  time.Duration
	RetryBackoff time.Duration
}

// RedisLocker is a token lock (SET NX PX) shared by every replica that talks
// to the same Redis. The TTL bounds how long a crashed holder blocks a key.
type RedisLocker struct {
	client redis.Cmdable
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed locker. A nil logger discards release failures.
func NewRedisLocker(client redis.Cmdable, cfg RedisConfig, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Lock polls until the key is acquired, ctx is done or the wait budget runs out
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.cfg.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.WaitTimeout)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %q: %w", fullKey, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		timer := time.NewTimer(l.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must run even when the caller's ctx is already cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			l.release(releaseCtx, fullKey, token)
		})
	}, nil
}

// release deletes the key if we still own it. A failed release leaves the key
// blocked until its TTL runs out.
func (l *RedisLocker) release(ctx context.Context, fullKey, token string) {
	deleted, err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Int()
	if err != nil {
		l.logger.Error("Failed to release lock",
			zap.String("key", fullKey),
			zap.Duration("ttl", l.cfg.TTL),
			zap.Error(err))
		return
	}
	if deleted == 0 {
		l.logger.Warn("Lock expired before release",
			zap.String("key", fullKey),
			zap.Duration("ttl", l.cfg.TTL))
	}
}

var _ port.Locker = (*RedisLocker)(nil)
