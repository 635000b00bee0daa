package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the key only if it still carries our token
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// Locker hands out per-key mutual exclusion backed by Redis SET NX
type Locker struct {
	rdb    *redis.Client
	prefix string
}

// NewLocker creates a locker whose keys live under prefix
func NewLocker(rdb *redis.Client, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

// Lock is a held lock; Release is safe to call more than once
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire takes the lock for name or returns ErrLockHeld
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	key := l.prefix + name

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{rdb: l.rdb, key: key, token: token}, nil
}

// Release frees the lock if it is still ours
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	if err := lk.rdb.Eval(ctx, releaseScript, []string{lk.key}, lk.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	return nil
}
