package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when a caller triggers a run while another
// instance already holds the named lock; callers should treat this as a
// 202-equivalent and let the in-flight run finish on its own.
var ErrRunInProgress = errors.New("processor run already in progress")

// runLock serializes processor runs. When Redis is
// configured the lock is a SETNX-with-TTL key shared across instances,
// grounded on the pack's redis.NewClient construction style
// (store/redis/redis.go); otherwise it degrades to an in-process,
// non-blocking mutex for a single instance.
type runLock interface {
	// tryAcquire returns true if the lock was obtained. The caller must
	// call the returned release func exactly once on success.
	tryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// redisLock implements runLock with a Redis SETNX-with-TTL key.
type redisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// newRedisLock constructs a distributed lock over the given Redis client.
func newRedisLock(client *redis.Client, key string, ttl time.Duration) *redisLock {
	return &redisLock{client: client, key: key, ttl: ttl}
}

func (l *redisLock) tryAcquire(ctx context.Context) (func(), bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		l.client.Del(context.Background(), l.key)
	}
	return release, true, nil
}

// localLock is a non-blocking, in-process mutex substitute for when Redis
// is not configured (single-instance deployments, tests).
type localLock struct {
	mu      sync.Mutex
	running bool
}

func newLocalLock() *localLock {
	return &localLock{}
}

func (l *localLock) tryAcquire(context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil, false, nil
	}
	l.running = true
	release := func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}
	return release, true, nil
}
