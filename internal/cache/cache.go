// Package cache wraps gocache with typed, prefixed views backed by memory or redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	go_store "github.com/eko/gocache/store/go_cache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	"github.com/jon4hz/clubhub/internal/config"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// PrefixedCache stores JSON encoded values of type T under prefixed keys.
// Caches sharing a store keep their own statistics.
type PrefixedCache[T any] struct {
	cache     *cache.Cache[any]
	cacheType config.CacheType
	prefix    string

	hits, misses, sets, setErrors, deletes atomic.Int64
}

// NewPrefixedCache creates a new prefixed cache wrapper.
func NewPrefixedCache[T any](c *cache.Cache[any], cacheType config.CacheType, prefix string) *PrefixedCache[T] {
	return &PrefixedCache[T]{
		cache:     c,
		cacheType: cacheType,
		prefix:    prefix,
	}
}

func (p *PrefixedCache[T]) key(key any) string {
	return p.prefix + fmt.Sprintf("%v", key)
}

// Get retrieves a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Get(ctx context.Context, key any) (T, error) {
	var result T
	value, err := p.cache.Get(ctx, p.key(key))
	if err != nil {
		p.misses.Add(1)
		return result, err
	}

	// the memory store hands back what was stored, redis returns strings
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		p.misses.Add(1)
		return result, store.NotFoundWithCause(fmt.Errorf("unexpected cached value of type %T", value))
	}
	if err := json.Unmarshal(data, &result); err != nil {
		p.misses.Add(1)
		return result, err
	}
	p.hits.Add(1)
	return result, nil
}

// Set stores a value in the cache with the prefixed key.
func (p *PrefixedCache[T]) Set(ctx context.Context, key any, object T, options ...store.Option) error {
	data, err := json.Marshal(object)
	if err == nil {
		err = p.cache.Set(ctx, p.key(key), data, options...)
	}
	if err != nil {
		p.setErrors.Add(1)
		return err
	}
	p.sets.Add(1)
	return nil
}

// Delete removes a value from the cache with the prefixed key.
func (p *PrefixedCache[T]) Delete(ctx context.Context, key any) error {
	if err := p.cache.Delete(ctx, p.key(key)); err != nil {
		return err
	}
	p.deletes.Add(1)
	return nil
}

// Clear removes all values from the underlying store.
func (p *PrefixedCache[T]) Clear(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// GetType returns the configured cache type.
func (p *PrefixedCache[T]) GetType() config.CacheType {
	return p.cacheType
}

// GetStats returns the statistics of this prefix, named after it.
func (p *PrefixedCache[T]) GetStats() *Stats {
	return &Stats{
		CacheName: strings.TrimSuffix(p.prefix, "-"),
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Sets:      p.sets.Load(),
		SetErrors: p.setErrors.Load(),
		Deletes:   p.deletes.Load(),
	}
}

// Stats are the statistics of a named cache.
type Stats struct {
	CacheName string `json:"cacheName"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Sets      int64  `json:"sets"`
	SetErrors int64  `json:"setErrors"`
	Deletes   int64  `json:"deletes"`
}

// NewInstance returns a cache backed by the configured store.
func NewInstance(cfg *config.CacheConfig) *cache.Cache[any] {
	switch cfg.Type {
	case config.CacheTypeRedis:
		return newRedisCache(cfg)
	default:
		return newMemoryCache()
	}
}

func newMemoryCache() *cache.Cache[any] {
	// never expire items in memory cache by ttl, the scheduler flushes the cache
	gocacheClient := gocache.New(gocache.NoExpiration, gocache.NoExpiration)
	gocacheStore := go_store.NewGoCache(gocacheClient)
	return cache.New[any](gocacheStore)
}

func newRedisCache(cfg *config.CacheConfig) *cache.Cache[any] {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	redisStore := redis_store.NewRedis(redisClient)
	return cache.New[any](redisStore)
}
