package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"solana-pool-trader/internal/execution"
)

// unlockLua deletes the lock key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Lock defaults.
const (
	DefaultLockTTL   = 30 * time.Second
	DefaultLockRetry = 50 * time.Millisecond
)

// WalletLock is a distributed execution.Locker built on SET NX PX.
// The TTL bounds how long a crashed holder can block other processes.
type WalletLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	retry    time.Duration
}

// NewWalletLock creates a WalletLock. Zero durations use the defaults.
func NewWalletLock(c *Client, ttl, retry time.Duration) *WalletLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if retry <= 0 {
		retry = DefaultLockRetry
	}
	return &WalletLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		retry:    retry,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// TryLock makes a single acquisition attempt.
func (l *WalletLock) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Release even when the caller's context is already cancelled.
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(uctx, l.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, true, nil
}

// Lock implements execution.Locker, polling until the key is free.
func (l *WalletLock) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		unlock, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ execution.Locker = (*WalletLock)(nil)
