package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/redis"
)

const (
	keyPrefix     = "search:"
	generationKey = keyPrefix + "generation"
)

// QueryCache memoizes ranked candidate lists in Redis; the live re-check
// still runs on every search. Keys embed a generation counter; Invalidate
// bumps it so every earlier entry becomes unreachable and ages out through
// its TTL.
type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached ranking for (query, settings) or runs
// computeFn once per key across concurrent callers. Redis failures degrade
// to computing without caching.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	settings domain.Settings,
	computeFn func() (*executor.Ranking, error),
) (*executor.Ranking, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Error("cache generation lookup failed", "error", err)
		c.miss()
		result, err := computeFn()
		return result, false, err
	}
	key := buildKey(gen, query, settings)
	if result, ok := c.get(ctx, key); ok {
		c.hit()
		return result, true, nil
	}

	c.miss()
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Ranking), false, nil
}

// Invalidate makes every cached result unreachable.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, generationKey)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "generation", gen)
	return nil
}

// Purge deletes every cache key, including the generation counter.
func (c *QueryCache) Purge(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("purging cache: %w", err)
	}
	c.logger.Info("cache purged", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) generation(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, generationKey)
	if pkgredis.IsNilError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.Ranking, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.Ranking
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.Ranking) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the query together with every setting that
// changes what a search returns.
func buildKey(gen int64, query string, settings domain.Settings) string {
	settings.SearchDelayMs = 0
	fingerprint, _ := json.Marshal(settings)
	hash := sha256.Sum256([]byte(query + "\x00" + string(fingerprint)))
	return fmt.Sprintf("%s%d:%x", keyPrefix, gen, hash[:16])
}
