package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:     client,
		baseTTL:    15 * time.Minute,
		versionTTL: time.Hour,
	}
}

type RedisCache struct {
	client     *redis.Client
	baseTTL    time.Duration
	versionTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, productID string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, cacheKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &product, nil
}

// GetMany returns the cached products among productIDs. Misses and entries
// that fail to decode are left out of the result.
func (r RedisCache) GetMany(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	found := make(map[string]*domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return found, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = cacheKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var product domain.Product
		if err := json.Unmarshal([]byte(s), &product); err != nil {
			continue
		}
		found[productIDs[i]] = &product
	}
	return found, nil
}

func (r RedisCache) Set(ctx context.Context, product *domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(product.ID.Hex()), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Versions(ctx context.Context, productIDs []string) ([]int64, error) {
	versions := make([]int64, len(productIDs))
	if len(productIDs) == 0 {
		return versions, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = versionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad version for %s: %w", productIDs[i], err)
		}
		versions[i] = n
	}
	return versions, nil
}

// SetIfVersion watches the version key so an invalidation that lands between
// the check and the write aborts the transaction.
func (r RedisCache) SetIfVersion(ctx context.Context, product *domain.Product, version int64) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	id := product.ID.Hex()
	vk := versionKey(id)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(id), data, r.ttl())
			return nil
		})
		return err
	}, vk)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

func (r RedisCache) Delete(ctx context.Context, productID string) error {
	vk := versionKey(productID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vk)
		pipe.Expire(ctx, vk, r.versionTTL)
		pipe.Del(ctx, cacheKey(productID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// ttl spreads expiry over five minutes past the base TTL.
func (r RedisCache) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func cacheKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}

func versionKey(productID string) string {
	return fmt.Sprintf("product:%s:version", productID)
}
