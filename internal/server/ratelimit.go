package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/config"
)

// Limiter decides whether a client may make another request this second
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// NewLimiter builds the limiter described by cfg, or nil when limiting is
// disabled.
func NewLimiter(cfg config.RateLimitConfig, redisCfg config.RedisConfig) (Limiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLimiter(cfg.RequestsPerSecond), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		return NewRedisLimiter(rdb, redisCfg.KeyPrefix, cfg.RequestsPerSecond), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

// RedisLimiter counts requests per key in one-second Redis counters, so the
// limit holds across several server instances.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
}

func NewRedisLimiter(rdb *redis.Client, prefix string, limit int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: int64(limit)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := l.prefix + "ratelimit:" + key

	// Increment counter
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
		return true
	}

	// Set expiry on first request
	if count == 1 {
		l.rdb.Expire(ctx, k, time.Second)
	}

	return count <= l.limit
}

// MemoryLimiter is a per-process fixed one-second window
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	second int64
	count  int
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	sec := l.now().Unix()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || w.second != sec {
		if len(l.windows) > 10000 {
			l.evict(sec)
		}
		w = &window{second: sec}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.limit
}

// evict drops windows from past seconds
func (l *MemoryLimiter) evict(sec int64) {
	for k, w := range l.windows {
		if w.second != sec {
			delete(l.windows, k)
		}
	}
}
