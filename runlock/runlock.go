// Package runlock keeps pipeline runs from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another holder owns the lock
var ErrRunInProgress = errors.New("pipeline run already in progress")

// keyPrefix namespaces lock keys in redis
const keyPrefix = "threatfeed:lock:"

// Locker grants exclusive named locks. Release is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Local is an in-process Locker
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Acquire implements Locker
func (l *Local) Acquire(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, ErrRunInProgress
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the key's expiry only if this holder still owns it
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a Locker shared by every process using the same redis
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a redis-backed locker. ttl expires locks whose holder died;
// a live holder renews its lock every ttl/3 until released.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Acquire implements Locker using SET NX PX
func (r *Redis) Acquire(ctx context.Context, name string) (func(), error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	go r.keepAlive(name, key, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				log.Printf("Warning: failed to release lock %s: %v", name, err)
			}
		})
	}, nil
}

// keepAlive renews the lock until stop is closed or the lock is lost
func (r *Redis) keepAlive(name, key, token string, stop <-chan struct{}) {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			renewed, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Printf("Warning: failed to renew lock %s: %v", name, err)
				continue
			}
			if renewed == 0 {
				log.Printf("Warning: lock %s expired before release", name)
				return
			}
		}
	}
}
