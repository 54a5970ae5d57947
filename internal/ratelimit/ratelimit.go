// Package ratelimit provides fixed-window limiters keyed by string.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// Memory keeps counters in process.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*bucket), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) bool {
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.windowEnd) {
		m.buckets[key] = &bucket{count: 1, windowEnd: now.Add(window)}
		m.sweep(now)
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// sweep drops expired buckets so idle keys do not accumulate.
func (m *Memory) sweep(now time.Time) {
	for key, b := range m.buckets {
		if now.After(b.windowEnd) {
			delete(m.buckets, key)
		}
	}
}

const script = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

const redisTimeout = 250 * time.Millisecond

// Redis shares counters between instances. It fails open when Redis is unreachable.
type Redis struct {
	client redis.Scripter
	script *redis.Script
	prefix string
	logger *zap.Logger
}

func NewRedis(client redis.Scripter, prefix string, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "joblink:ratelimit:"
	}
	return &Redis{client: client, script: redis.NewScript(script), prefix: prefix, logger: log}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if r == nil || r.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}

	ttl := max(window.Milliseconds(), 1)

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	allowed, err := r.script.Run(ctx, r.client, []string{r.prefix + key}, ttl, limit).Int64()
	if err != nil {
		r.logger.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
		return true
	}
	return allowed == 1
}
