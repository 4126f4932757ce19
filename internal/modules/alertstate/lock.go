// README: Per-type run locks. A run that cannot take the lock is skipped, not queued.
package alertstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/domainerr"
)

const lockKeyPrefix = "alerts:lock:%s"

// Locker hands out a release func when the lock was taken; ok is false when it is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, t Type) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{redis: client, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, t Type) (func(), bool, error) {
	key := fmt.Sprintf(lockKeyPrefix, string(t))
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, domainerr.Unavailable("acquire run lock "+string(t), err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The run context may be done by now.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.redis, []string{key}, token).Err()
	}
	return release, true, nil
}

// LocalLocker serialises runs inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[Type]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[Type]*sync.Mutex)}
}

func (l *LocalLocker) TryLock(_ context.Context, t Type) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[t]
	if !ok {
		m = &sync.Mutex{}
		l.locks[t] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}
	return m.Unlock, true, nil
}
