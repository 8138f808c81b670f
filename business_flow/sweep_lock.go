package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SweepLocker serializes sweeps of the same kind across processes
type SweepLocker interface {
	// TryLock returns ok=false when another holder owns the key
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the lock only while it still carries the holder's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSweepLocker takes locks with SETNX and a TTL so a crashed holder cannot block forever.
// Each lock carries a random token and release never removes a lock taken by someone else.
type RedisSweepLocker struct {
	rc     redis.UniversalClient
	prefix string
}

func NewRedisSweepLocker(rc redis.UniversalClient, prefix string) *RedisSweepLocker {
	return &RedisSweepLocker{rc: rc, prefix: prefix}
}

func (l *RedisSweepLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lockKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := releaseScript.Run(context.Background(), l.rc, []string{lockKey}, token).Err(); err != nil {
			log.Printf("sweep lock %s: release failed: %v", lockKey, err)
		}
	}, true, nil
}

// NoopSweepLocker always grants the lock; used when redis is not configured
type NoopSweepLocker struct{}

func (NoopSweepLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
