package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker implements statemachine.Locker with a Redis lease per entity.
// The lease is taken with SET NX PX under a random token, renewed at half
// its TTL while fn runs, and released only by the token holder.
type Locker struct {
	client redis.UniversalClient
	cfg    LockConfig
}

// NewLocker creates a Locker. Zero LockConfig fields fall back to defaults.
func NewLocker(client redis.UniversalClient, cfg LockConfig) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = "statekit:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	return &Locker{client: client, cfg: cfg}
}

// Key returns the Redis key guarding an entity.
func (l *Locker) Key(entityType, id string) string {
	return l.cfg.Prefix + entityType + ":" + id
}

// WithLock implements statemachine.Locker. If the lease cannot be renewed
// while fn runs, the context passed to fn is canceled and ErrLockLost is
// returned together with fn's result.
func (l *Locker) WithLock(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error {
	key := l.Key(entityType, id)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	lctx, cancel := context.WithCancelCause(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		l.renew(lctx, key, token, cancel)
	}()

	err := fn(lctx)

	cancel(nil)
	<-renewDone

	if cause := context.Cause(lctx); errors.Is(cause, ErrLockLost) {
		err = errors.Join(err, cause)
	}

	// Release must not be skipped because the caller's ctx is done.
	if rerr := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); rerr != nil {
		err = errors.Join(err, fmt.Errorf("release %s: %w", key, rerr))
	}
	return err
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	if l.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WaitTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) renew(ctx context.Context, key, token string, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(l.cfg.TTL/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.cfg.TTL.Milliseconds()).Int()
			if ctx.Err() != nil {
				return
			}
			if err != nil || n == 0 {
				cancel(fmt.Errorf("%w: %s", ErrLockLost, key))
				return
			}
		}
	}
}
