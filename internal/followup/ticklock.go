package followup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tickLockPrefix = "salesbot:followup:tick:"

// RedisTickLock is a per-channel lease shared by every process pointing at
// the same Redis. The holder can renew its own lease.
type RedisTickLock struct {
	client *redis.Client
	owner  string
}

func NewRedisTickLock(client *redis.Client) *RedisTickLock {
	return &RedisTickLock{client: client, owner: uuid.NewString()}
}

func (l *RedisTickLock) Acquire(ctx context.Context, channel string, ttl time.Duration) (bool, error) {
	key := tickLockPrefix + channel
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil || ok {
		return ok, err
	}

	holder, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return l.client.SetNX(ctx, key, l.owner, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if holder != l.owner {
		return false, nil
	}
	if err := l.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}
