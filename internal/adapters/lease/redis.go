package lease

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/poyrazK/batchdns/internal/infrastructure/metrics"
)

// releaseScript deletes a lease key only while we still hold it, so an
// expired lease reclaimed by another node is never released from under it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaseManager serializes record-set mutations across nodes with
// SET NX PX leases in Redis.
type RedisLeaseManager struct {
	client *redis.Client
	prefix string
}

func NewRedisLeaseManager(client *redis.Client) *RedisLeaseManager {
	return &RedisLeaseManager{client: client, prefix: "batchdns:lease:"}
}

// Acquire takes every key or none. Keys are locked in sorted order so two
// batches competing for overlapping sets cannot deadlock.
func (m *RedisLeaseManager) Acquire(ctx context.Context, keys []string, ttl time.Duration) (func(), error) {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	token := uuid.New().String()
	var held []string
	for _, key := range sorted {
		full := m.prefix + key
		ok, err := m.client.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			m.release(held, token)
			return nil, err
		}
		if !ok {
			m.release(held, token)
			return nil, fmt.Errorf("record set %q is locked by another batch", key)
		}
		held = append(held, full)
	}
	metrics.LeasesHeld.Add(float64(len(held)))

	released := false
	return func() {
		if released {
			return
		}
		released = true
		metrics.LeasesHeld.Sub(float64(len(held)))
		m.release(held, token)
	}, nil
}

func (m *RedisLeaseManager) release(held []string, token string) {
	if len(held) == 0 {
		return
	}
	// Release on a fresh context: the caller's may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, key := range held {
		if err := releaseScript.Run(ctx, m.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("failed to release lease %s: %v", key, err)
		}
	}
}

func (m *RedisLeaseManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
