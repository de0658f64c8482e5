package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/kbukum/crossmatch/errors"
	"github.com/kbukum/crossmatch/logger"
)

// ErrLockLost is returned by Extend and Release when the key no longer
// holds the lock's token, because it expired or another holder took it.
var ErrLockLost = errors.New("redis: lock no longer held")

var (
	extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lock is a held run lock. A zero Lock is a no-op, handed out when locking
// is disabled.
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration

	stop context.CancelFunc
	wg   sync.WaitGroup
	once sync.Once
}

// Acquire takes the lock for routine on behalf of holder, usually a run ID.
// It fails with a LOCKED error naming the current holder when the lock is
// taken. The lock is kept alive in the background until Release.
func (c *Client) Acquire(ctx context.Context, routine, holder string) (*Lock, error) {
	key := c.cfg.KeyPrefix + ":" + routine
	ttl := c.cfg.lockTTL()

	ok, err := c.rdb.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		current, err := c.rdb.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("read lock holder %s: %w", key, err)
		}
		return nil, apperrors.Locked(routine, current)
	}

	keepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	l := &Lock{client: c, key: key, token: holder, ttl: ttl, stop: stop}
	l.wg.Go(func() { l.keepAlive(keepCtx) })

	c.log.WithContext(ctx).Debug("Run lock acquired", logger.Fields(
		logger.FieldRoutine, routine,
		"key", key,
		"ttl", ttl.String(),
	))
	return l, nil
}

// Key returns the Redis key of the lock, or "" for a no-op lock.
func (l *Lock) Key() string { return l.key }

// Extend resets the lock's expiry to its full TTL.
func (l *Lock) Extend(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	n, err := extendScript.Run(ctx, l.client.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release stops the keepalive and deletes the key if it still holds this
// lock's token. Calling it again is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		l.stop()
		l.wg.Wait()
		var n int
		n, err = releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Int()
		switch {
		case err != nil:
			err = fmt.Errorf("release lock %s: %w", l.key, err)
		case n == 0:
			err = ErrLockLost
		}
	})
	return err
}

func (l *Lock) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				l.client.log.Warn("Run lock keepalive failed", logger.MergeWithError(logger.Fields("key", l.key), err))
				if errors.Is(err, ErrLockLost) {
					return
				}
			}
		}
	}
}
