package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hselingforschool/olymp-queue-bot/pkg/retry"
)

// ErrLockHeld is returned when the lock is still held after all attempts.
var ErrLockHeld = errors.New("redis: lock is held by another instance")

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig configures a Locker.
type LockerConfig struct {
	// TTL bounds how long a crashed instance can hold a lock.
	TTL time.Duration

	// RetryDelay is the first pause between acquisition attempts.
	RetryDelay time.Duration

	// MaxWait bounds the total wait for a lock.
	MaxWait time.Duration
}

// DefaultLockerConfig returns the default lock settings.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:        30 * time.Second,
		RetryDelay: 20 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// Locker implements port.Locker with SET NX PX and a token checked on release.
type Locker struct {
	client *Client
	cfg    LockerConfig
	logger *slog.Logger
}

// NewLocker creates a Locker.
func NewLocker(client *Client, cfg LockerConfig, logger *slog.Logger) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockerConfig().TTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultLockerConfig().RetryDelay
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultLockerConfig().MaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: client, cfg: cfg, logger: logger}
}

// Lock implements port.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.MaxWait)
	defer cancel()

	retrier := retry.New(
		retry.WithMaxAttempts(l.maxAttempts()),
		retry.WithInitialDelay(l.cfg.RetryDelay),
		retry.WithMaxDelay(250*time.Millisecond),
		retry.WithMultiplier(1.5),
		retry.WithJitter(0.3),
		retry.WithRetryIf(func(err error) bool { return errors.Is(err, ErrLockHeld) }),
	)

	err := retrier.Do(waitCtx, func(ctx context.Context) error {
		ok, err := l.client.rdb.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return retry.Permanent(fmt.Errorf("redis: acquire %s: %w", key, err))
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}, nil
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.client.config.WriteTimeout+time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.client.rdb, []string{redisKey}, token).Err(); err != nil {
		// The key expires after TTL anyway.
		l.logger.Warn("failed to release redis lock", "key", redisKey, "error", err)
	}
}

func (l *Locker) maxAttempts() int {
	n := int(l.cfg.MaxWait / l.cfg.RetryDelay)
	if n < 1 {
		return 1
	}
	return n
}
