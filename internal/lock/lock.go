// Package lock provides per-source advisory locks so two scans of the same source never overlap.
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

// DefaultTTL bounds how long a crashed holder can block a source
const DefaultTTL = 30 * time.Minute

var (
	// ErrNotAcquired is returned when the lock is held by someone else
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrNotHeld is returned when releasing a lock this holder no longer owns
	ErrNotHeld = errors.New("lock not held")
)

// Locker hands out named advisory locks
type Locker interface {
	// Acquire takes the lock without waiting and returns ErrNotAcquired if it is taken
	Acquire(ctx context.Context, name string, ttl time.Duration) (Handle, error)
}

// Handle releases an acquired lock
type Handle interface {
	Release(ctx context.Context) error
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker stores locks in Redis so separate processes (scheduler and CLI) exclude each other
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire implements Locker using SET NX with a random token
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Handle, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	key := l.prefix + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &redisHandle{client: l.client, key: key, token: token}, nil
}

type redisHandle struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Release deletes the key only if it still carries this holder's token
func (h *redisHandle) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// LocalLocker is an in-process locker for single-binary deployments and tests
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	now   func() time.Time
	count uint64
}

type localHold struct {
	id      uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

// Acquire implements Locker. Expired holds are taken over.
func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Handle, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[name]; ok && now.Before(h.expires) {
		return nil, ErrNotAcquired
	}

	l.count++
	l.held[name] = localHold{id: l.count, expires: now.Add(ttl)}
	return &localHandle{locker: l, name: name, id: l.count}, nil
}

type localHandle struct {
	locker *LocalLocker
	name   string
	id     uint64
}

func (h *localHandle) Release(context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()

	cur, ok := h.locker.held[h.name]
	if !ok || cur.id != h.id {
		return ErrNotHeld
	}
	delete(h.locker.held, h.name)
	return nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
