package orchestrator

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultDeliveryTTL covers the redelivery horizon of the supported providers.
	DefaultDeliveryTTL = 24 * time.Hour
	defaultMemoryCap   = 50_000
	redisDeliveryNS    = "salesbot:delivery:"
)

// DeliveryTracker remembers provider message ids so a redelivered webhook is
// acknowledged without a second reply.
type DeliveryTracker interface {
	// FirstDelivery reports whether id has not been seen before and records it.
	FirstDelivery(ctx context.Context, id string) (bool, error)
}

// MemoryTracker is a bounded in-process tracker. Ids are kept in arrival
// order, so expired entries are dropped from the front and a full tracker
// evicts its oldest id in constant time.
type MemoryTracker struct {
	mu    sync.Mutex
	seen  map[string]*list.Element
	order *list.List
	ttl   time.Duration
	max   int
	now   func() time.Time
}

type trackedID struct {
	id string
	at time.Time
}

func NewMemoryTracker(ttl time.Duration, capacity int) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	if capacity <= 0 {
		capacity = defaultMemoryCap
	}
	return &MemoryTracker{
		seen:  make(map[string]*list.Element),
		order: list.New(),
		ttl:   ttl,
		max:   capacity,
		now:   time.Now,
	}
}

func (t *MemoryTracker) FirstDelivery(_ context.Context, id string) (bool, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.expire(now)
	if el, ok := t.seen[id]; ok {
		if now.Sub(el.Value.(trackedID).at) < t.ttl {
			return false, nil
		}
		t.remove(el)
	}
	for t.order.Len() >= t.max {
		t.remove(t.order.Front())
	}
	t.seen[id] = t.order.PushBack(trackedID{id: id, at: now})
	return true, nil
}

// Len returns the number of ids currently tracked.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *MemoryTracker) expire(now time.Time) {
	for el := t.order.Front(); el != nil; el = t.order.Front() {
		if now.Sub(el.Value.(trackedID).at) < t.ttl {
			return
		}
		t.remove(el)
	}
}

func (t *MemoryTracker) remove(el *list.Element) {
	delete(t.seen, el.Value.(trackedID).id)
	t.order.Remove(el)
}

// RedisTracker shares seen ids across processes with SET NX and a TTL.
// Redis errors fall through to the in-memory tracker.
type RedisTracker struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryTracker
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &RedisTracker{client: client, ttl: ttl, fallback: NewMemoryTracker(ttl, 0)}
}

func (t *RedisTracker) FirstDelivery(ctx context.Context, id string) (bool, error) {
	first, err := t.client.SetNX(ctx, redisDeliveryNS+id, 1, t.ttl).Result()
	if err != nil {
		fallbackFirst, _ := t.fallback.FirstDelivery(ctx, id)
		return fallbackFirst, err
	}
	return first, nil
}
