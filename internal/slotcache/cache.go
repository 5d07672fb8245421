// Package slotcache memoizes computed availability for a short TTL. Every
// backend failure is absorbed and reported as a miss; callers never see cache
// errors.
package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

const keyPrefix = "availability"

// Key identifies one computed slot list.
type Key struct {
	ProviderID string
	Date       string
	Plan       string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, k.ProviderID, k.Date, k.Plan)
}

func dayIndexKey(providerID, date string) string {
	return fmt.Sprintf("%s:index:%s:%s", keyPrefix, providerID, date)
}

// Cache is the advisory availability cache.
type Cache interface {
	Get(ctx context.Context, key Key) ([]string, bool)
	Set(ctx context.Context, key Key, slots []string)
	Invalidate(ctx context.Context, key Key)
	// InvalidateDay drops the entries for every plan of a provider's day.
	InvalidateDay(ctx context.Context, providerID, date string)
}

// Nop is used when no cache backend is configured.
type Nop struct{}

func (Nop) Get(context.Context, Key) ([]string, bool)     { return nil, false }
func (Nop) Set(context.Context, Key, []string)            {}
func (Nop) Invalidate(context.Context, Key)               {}
func (Nop) InvalidateDay(context.Context, string, string) {}

// RedisCache stores slot lists as JSON strings with a per-day index set so a
// booking can drop all plans of the affected day at once.
type RedisCache struct {
	redis   *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

// NewRedisCache creates a cache. A nil client yields a cache that always misses.
func NewRedisCache(client *redis.Client, ttl, timeout time.Duration, logger *logging.Logger) *RedisCache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{
		redis:   client,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger.Component("slotcache"),
	}
}

// WithMetrics records cache results.
func (c *RedisCache) WithMetrics(m *metrics.BookingMetrics) *RedisCache {
	c.metrics = m
	return c
}

func (c *RedisCache) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *RedisCache) Get(ctx context.Context, key Key) ([]string, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	raw, err := c.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.ObserveCache("get", "miss")
		return nil, false
	}
	if err != nil {
		c.logger.Warn("availability cache read failed", "key", key.String(), "error", err)
		c.metrics.ObserveCache("get", "error")
		return nil, false
	}
	var slots []string
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.logger.Warn("availability cache entry corrupt", "key", key.String(), "error", err)
		c.metrics.ObserveCache("get", "error")
		return nil, false
	}
	if slots == nil {
		slots = []string{}
	}
	c.metrics.ObserveCache("get", "hit")
	return slots, true
}

func (c *RedisCache) Set(ctx context.Context, key Key, slots []string) {
	if c == nil || c.redis == nil {
		return
	}
	if slots == nil {
		slots = []string{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		c.logger.Warn("availability cache encode failed", "key", key.String(), "error", err)
		return
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	index := dayIndexKey(key.ProviderID, key.Date)
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key.String(), payload, c.ttl)
		pipe.SAdd(ctx, index, key.String())
		pipe.Expire(ctx, index, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("availability cache write failed", "key", key.String(), "error", err)
		c.metrics.ObserveCache("set", "error")
		return
	}
	c.metrics.ObserveCache("set", "stored")
}

func (c *RedisCache) Invalidate(ctx context.Context, key Key) {
	if c == nil || c.redis == nil {
		return
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key.String())
		pipe.SRem(ctx, dayIndexKey(key.ProviderID, key.Date), key.String())
		return nil
	})
	if err != nil {
		c.logger.Warn("availability cache invalidate failed", "key", key.String(), "error", err)
		c.metrics.ObserveCache("invalidate", "error")
	}
}

func (c *RedisCache) InvalidateDay(ctx context.Context, providerID, date string) {
	if c == nil || c.redis == nil {
		return
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	index := dayIndexKey(providerID, date)
	members, err := c.redis.SMembers(ctx, index).Result()
	if err != nil {
		c.logger.Warn("availability cache index read failed", "provider_id", providerID, "date", date, "error", err)
		c.metrics.ObserveCache("invalidate", "error")
		return
	}
	keys := append(members, index)
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("availability cache invalidate failed", "provider_id", providerID, "date", date, "error", err)
		c.metrics.ObserveCache("invalidate", "error")
		return
	}
	c.metrics.ObserveCache("invalidate", "ok")
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Nop{}
)
