// Package analytics serves aggregate queries over stored snapshots, with a
// Redis read-through cache in front of PostgreSQL.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kitsudo/anime-dashboard/internal/metrics"
)

// Cache is a JSON read-through cache. Every Redis failure degrades to a
// cache miss: analytics answers come from the database either way, just
// slower. Callers never see a cache error.
type Cache struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewCache wraps the given Redis client. A nil client disables caching
// entirely, which is the degraded mode for environments without Redis.
func NewCache(rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *Cache {
	return &Cache{
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "analytics_cache").Logger(),
	}
}

// NewRedisClient connects to the Redis URL, returning nil (not an error)
// when the URL is empty or unreachable so the service starts without cache.
func NewRedisClient(ctx context.Context, redisURL string, log zerolog.Logger) *redis.Client {
	if redisURL == "" {
		log.Warn().Msg("no redis url configured, analytics cache disabled")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid redis url, analytics cache disabled")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, analytics cache disabled")
		client.Close()
		return nil
	}
	return client
}

// Get unmarshals the cached value for key into dest and reports whether it
// was found. Misses and Redis errors both return false.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.count("miss")
		return false
	}
	if err != nil {
		c.count("error")
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.count("error")
		c.log.Warn().Err(err).Str("key", key).Msg("cache payload corrupt")
		return false
	}
	c.count("hit")
	return true
}

// Set stores val under key with the given TTL. Failures are logged and
// swallowed.
func (c *Cache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.count("error")
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate removes all analytics keys, called after a pipeline run so
// dashboards pick up the fresh snapshot immediately.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, "analytics:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache scan failed")
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn().Err(err).Msg("cache invalidation failed")
			return
		}
	}
	c.log.Info().Int("keys", len(keys)).Msg("analytics cache invalidated")
}

func (c *Cache) count(result string) {
	if c.metrics != nil {
		c.metrics.CacheOps.WithLabelValues(result).Inc()
	}
}
