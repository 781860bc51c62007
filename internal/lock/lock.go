// Package lock serializes work on a single key, either within one process or
// across replicas through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires exclusive locks on keys.
type Locker interface {
	// Acquire blocks until key is locked or ctx is done. The returned function
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// keyedMutex is a reference-counted mutex for one key.
type keyedMutex struct {
	ch   chan struct{}
	refs int
}

// InMemoryLocker is a Locker for a single process.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedMutex
}

// NewInMemoryLocker creates an InMemoryLocker.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]*keyedMutex)}
}

// Acquire implements Locker.
func (l *InMemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	km, ok := l.locks[key]
	if !ok {
		km = &keyedMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = km
	}
	km.refs++
	l.mu.Unlock()

	select {
	case km.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, km)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-km.ch
			l.unref(key, km)
		})
	}, nil
}

func (l *InMemoryLocker) unref(key string, km *keyedMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	km.refs--
	if km.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *InMemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis lock defaults.
const (
	DefaultTTL       = 10 * time.Second
	DefaultRetryWait = 25 * time.Millisecond
	redisKeyPrefix   = "lock:"
)

// RedisLocker is a Locker shared by every replica using the same Redis.
// Locks expire after ttl so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
}

// NewRedisLocker creates a RedisLocker. Zero durations use the defaults.
func NewRedisLocker(client redis.UniversalClient, ttl, retryWait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retryWait <= 0 {
		retryWait = DefaultRetryWait
	}
	return &RedisLocker{client: client, ttl: ttl, retryWait: retryWait}
}

// Acquire implements Locker using SET NX PX with a random token.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release with a fresh context so a canceled request still unlocks.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
