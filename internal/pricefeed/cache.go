package pricefeed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tradeclash/contest-engine/internal/models"
)

// ValueCacheEntry is a cached portfolio valuation with metadata.
type ValueCacheEntry struct {
	PortfolioID string          `json:"portfolio_id"`
	Value       decimal.Decimal `json:"value"`
	CachedAt    time.Time       `json:"cached_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// ValueCacheStats tracks cache performance counters.
type ValueCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisValueCache caches portfolio valuations and per-class refresh
// watermarks in Redis. A missing or unreachable Redis degrades to a
// cache miss, never an error.
type RedisValueCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ValueCacheStats
	prefix string
}

// NewRedisValueCache creates a Redis-backed valuation cache.
func NewRedisValueCache(redisClient *redis.Client, ttl time.Duration) *RedisValueCache {
	return &RedisValueCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ValueCacheStats{},
		prefix: "portfolio_value:",
	}
}

// GetValue retrieves a cached portfolio value. The second return is
// false on a miss, an expired entry or any Redis error.
func (c *RedisValueCache) GetValue(ctx context.Context, portfolioID string) (decimal.Decimal, bool) {
	data, err := c.redis.Get(ctx, c.prefix+portfolioID).Result()
	if err == redis.Nil {
		c.recordMiss()
		return decimal.Zero, false
	}
	if err != nil {
		log.Printf("Redis error getting value for %s: %v", portfolioID, err)
		c.recordMiss()
		return decimal.Zero, false
	}

	var entry ValueCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		log.Printf("Error deserializing cached value for %s: %v", portfolioID, err)
		c.recordMiss()
		return decimal.Zero, false
	}

	// Guard against entries outliving the Redis TTL after a clock skew.
	if time.Now().After(entry.ExpiresAt) {
		c.recordMiss()
		return decimal.Zero, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return entry.Value, true
}

// SetValue stores a portfolio value with the cache TTL.
func (c *RedisValueCache) SetValue(ctx context.Context, portfolioID string, value decimal.Decimal) {
	now := time.Now()
	entry := ValueCacheEntry{
		PortfolioID: portfolioID,
		Value:       value,
		CachedAt:    now,
		ExpiresAt:   now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Error serializing value for %s: %v", portfolioID, err)
		return
	}
	if err := c.redis.Set(ctx, c.prefix+portfolioID, data, c.ttl).Err(); err != nil {
		log.Printf("Redis error setting value for %s: %v", portfolioID, err)
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// MarkRefreshed records the time of the last successful price refresh
// for an asset class. The watermark has no TTL; staleness is judged by
// the reader.
func (c *RedisValueCache) MarkRefreshed(ctx context.Context, class models.AssetClass, at time.Time) {
	if err := c.redis.Set(ctx, c.prefix+"refreshed:"+string(class), at.Format(time.RFC3339), 0).Err(); err != nil {
		log.Printf("Redis error marking %s refreshed: %v", class, err)
	}
}

// LastRefreshed returns the last refresh watermark for an asset class,
// or a zero time when none is recorded.
func (c *RedisValueCache) LastRefreshed(ctx context.Context, class models.AssetClass) time.Time {
	data, err := c.redis.Get(ctx, c.prefix+"refreshed:"+string(class)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error reading %s refresh watermark: %v", class, err)
		}
		return time.Time{}
	}
	at, err := time.Parse(time.RFC3339, data)
	if err != nil {
		return time.Time{}
	}
	return at
}

// GetStats returns a copy of the cache counters.
func (c *RedisValueCache) GetStats() ValueCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ValueCacheStats{Hits: c.stats.Hits, Misses: c.stats.Misses, Sets: c.stats.Sets}
}

func (c *RedisValueCache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
