// Package redis caches asset metadata shared across service instances.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type AssetCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewAssetCache(client redis.UniversalClient, ttl time.Duration) *AssetCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AssetCache{
		client: client,
		prefix: "ledger:asset:",
		ttl:    ttl,
	}
}

func (c *AssetCache) Set(ctx context.Context, asset *domain.Asset) error {
	if asset == nil {
		return nil
	}
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}
	return c.client.Set(ctx, c.prefix+asset.ID, data, c.ttl).Err()
}

// GetByIDs returns the cached subset; callers fetch the rest from the system
// of record.
func (c *AssetCache) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Asset, error) {
	result := make(map[string]*domain.Asset, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.prefix + id
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read assets from redis: %w", err)
	}

	for _, val := range values {
		s, ok := val.(string)
		if !ok {
			continue
		}
		var a domain.Asset
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		result[a.ID] = &a
	}
	return result, nil
}

func (c *AssetCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.prefix+id).Err()
}
