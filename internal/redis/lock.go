package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("booking lock not acquired")

// Locker serialises booking attempts that compete for the same site calendar day.
type Locker interface {
	WithDayLock(ctx context.Context, site, date string, fn func(ctx context.Context) error) error
}

type LockOption func(*redisDayLocker)

// WithAcquireWait keeps retrying a held lock every interval until wait has
// elapsed. Without it a held lock fails immediately.
func WithAcquireWait(wait, interval time.Duration) LockOption {
	return func(l *redisDayLocker) {
		l.wait = wait
		if interval > 0 {
			l.retryEvery = interval
		}
	}
}

type redisDayLocker struct {
	client     *redis.Client
	ttl        time.Duration
	wait       time.Duration
	retryEvery time.Duration
}

// NewRedisDayLocker guards one site calendar day per key. ttl bounds both
// the key lifetime and the time fn may run.
func NewRedisDayLocker(client *redis.Client, ttl time.Duration, opts ...LockOption) Locker {
	l := &redisDayLocker{
		client:     client,
		ttl:        ttl,
		retryEvery: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func lockKey(site, date string) string {
	return fmt.Sprintf("lock:calendar:%s:%s", site, date)
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, site, date string, fn func(ctx context.Context) error) error {
	key := lockKey(site, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// release even when the caller's context is already done
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			return nil
		}
		if l.wait <= 0 || !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.retryEvery):
		}
	}
}

// compare-and-delete so an expired holder never removes a newer lock
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}

	return nil
}
