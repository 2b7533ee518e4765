package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a leading-edge per-key cooldown: the first call fires and starts
// the window, later calls are suppressed until the window elapses. Re-arming
// depends only on elapsed time, not on the condition clearing.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

type memoryLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewMemoryLimiter creates the default in-process cooldown limiter.
func NewMemoryLimiter(cooldown time.Duration) Limiter {
	return &memoryLimiter{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if fired, ok := m.last[key]; ok && now.Sub(fired) < m.cooldown {
		return false, nil
	}
	m.last[key] = now
	return true, nil
}

func (m *memoryLimiter) Close() error { return nil }

type redisLimiter struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisLimiter creates a cooldown limiter backed by Redis, for deployments
// where several monitor instances must share alert state.
func NewRedisLimiter(redisURL string, cooldown time.Duration) (Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisLimiter{client: client, cooldown: cooldown}, nil
}

// Allow uses SET NX with the cooldown as TTL: only the call that creates the
// key fires, and the key expiring re-arms the rule.
func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, "cooldown:"+key, 1, r.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check failed: %w", err)
	}
	return ok, nil
}

func (r *redisLimiter) Close() error { return r.client.Close() }
