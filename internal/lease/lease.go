// Package lease provides a Redis-backed run lock so one repricing run executes
// at a time across instances.
package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey names the repricing lease.
const DefaultKey = "hoteld:repricing:lease"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLease implements repricing.RunLock.
type RedisLease struct {
	client  client
	key     string
	tokenFn func() string
}

// New returns a lease stored under key. An empty key uses DefaultKey.
func New(redisClient redis.UniversalClient, key string) *RedisLease {
	return newLease(redisClient, key)
}

func newLease(redisClient client, key string) *RedisLease {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	return &RedisLease{client: redisClient, key: key, tokenFn: uuid.NewString}
}

// Acquire sets the lease with a TTL when nobody holds it. The release func
// deletes it only if the lease was not taken over after expiring.
func (lease *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (func(ctx context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lease ttl must be positive")
	}
	token := lease.tokenFn()
	acquired, err := lease.client.SetNX(ctx, lease.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", lease.key, err)
	}
	if !acquired {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, lease.client, []string{lease.key}, token).Err(); err != nil {
			return fmt.Errorf("release lease %s: %w", lease.key, err)
		}
		return nil
	}
	return release, true, nil
}
