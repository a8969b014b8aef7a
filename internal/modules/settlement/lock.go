// README: Per-delivery settlement lock on Redis (SET NX with an owner token).
package settlement

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpace/internal/types"
)

const (
	lockKeyPrefix = "settlement:lock:"
	// maxLegs is the most payment legs one delivery can have.
	maxLegs   = 5
	lockSlack = 5 * time.Second
)

// MinLockTTL is long enough for one settle to send every leg when each
// processor call takes perCall at worst.
func MinLockTTL(perCall time.Duration) time.Duration {
	return time.Duration(maxLegs)*perCall + lockSlack
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker interface {
	// Acquire returns ok=false when another holder owns the lock.
	Acquire(ctx context.Context, deliveryID types.ID) (release func(), ok bool, err error)
}

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, deliveryID types.ID) (func(), bool, error) {
	key := lockKeyPrefix + string(deliveryID)
	token := string(types.NewID())
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may already be cancelled; the lock must still go.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
