package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
	goredis "github.com/redis/go-redis/v9"
)

// QueryCacheConfig configures the query result cache.
type QueryCacheConfig struct {
	// Enabled turns caching on.
	Enabled bool
	// TTL is how long a cached result lives.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// DefaultQueryCacheConfig returns the cache defaults: disabled, one hour
// TTL.
func DefaultQueryCacheConfig() *QueryCacheConfig {
	return &QueryCacheConfig{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "lumen:query:",
	}
}

// QueryCache caches query results in redis. Two queries share an entry
// only when both the question and the query options match, so a cached
// top-3 answer never serves a top-10 request.
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache creates a QueryCache.
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = DefaultQueryCacheConfig()
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey hashes the question together with the options that influence
// the result.
func (c *QueryCache) cacheKey(question string, opts *QueryOptions) string {
	payload, _ := json.Marshal(struct {
		Question string        `json:"question"`
		Options  *QueryOptions `json:"options"`
	}{Question: question, Options: opts})

	hash := sha256.Sum256(payload)
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached result for the question, or nil on a miss.
func (c *QueryCache) Get(ctx context.Context, question string, opts *QueryOptions) (*model.QueryResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, nil
	}

	key := c.cacheKey(question, opts)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		// Drop the corrupt entry.
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("cache hit", "key", key, "candidates", len(result.Candidates))
	return &result, nil
}

// Set stores the result under the question and options.
func (c *QueryCache) Set(ctx context.Context, question string, opts *QueryOptions, result *model.QueryResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	key := c.cacheKey(question, opts)

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Clear removes every cached query result. Called after ingestion and
// deletion, since either changes what any question may retrieve.
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("cleared query cache", "deleted_count", deleted)
	return nil
}

// GetStats returns cache statistics.
func (c *QueryCache) GetStats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{"enabled": false}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keys := 0
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keys,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
