package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, id string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &p, nil
}

func (r *RedisCache) Set(ctx context.Context, p *domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(p.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// CachedCatalog reads products through a Redis cache. Concurrent misses for
// the same id share one backend lookup. Search always goes to the backend.
type CachedCatalog struct {
	Store
	cache *RedisCache
	log   *slog.Logger
	sfg   singleflight.Group
}

func NewCachedCatalog(store Store, cache *RedisCache, log *slog.Logger) *CachedCatalog {
	return &CachedCatalog{Store: store, cache: cache, log: log}
}

func (c *CachedCatalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := c.sfg.Do(id, func() (any, error) {
		p, err := c.cache.Get(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.log.WarnContext(ctx, "catalog cache get failed", slog.String("product_id", id), slog.String("error", err.Error()))
		}

		p, err = c.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := c.cache.Set(context.WithoutCancel(ctx), p); err != nil {
			c.log.WarnContext(ctx, "catalog cache set failed", slog.String("product_id", id), slog.String("error", err.Error()))
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	// callers may modify what they get back
	p := *v.(*domain.Product)
	return &p, nil
}

func (c *CachedCatalog) Upsert(ctx context.Context, products ...domain.Product) error {
	if err := c.Store.Upsert(ctx, products...); err != nil {
		return err
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if err := c.cache.Delete(ctx, ids...); err != nil {
		c.log.WarnContext(ctx, "catalog cache invalidation failed", slog.String("error", err.Error()))
	}
	return nil
}

var _ Store = (*CachedCatalog)(nil)
