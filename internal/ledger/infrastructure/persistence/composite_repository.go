// Package persistence composes the store-specific repositories.
package persistence

import (
	"context"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	redisrepo "github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/persistence/redis"
	"github.com/wyfcoding/wealthledger/pkg/logger"
)

// cachedAssetRepository reads asset metadata cache-aside: redis first, the
// system of record for misses. The cache is best effort and never fails a
// read.
type cachedAssetRepository struct {
	primary domain.AssetRepository
	cache   *redisrepo.AssetCache
}

func NewCachedAssetRepository(primary domain.AssetRepository, cache *redisrepo.AssetCache) domain.AssetRepository {
	return &cachedAssetRepository{primary: primary, cache: cache}
}

func (r *cachedAssetRepository) Save(ctx context.Context, asset *domain.Asset) error {
	if err := r.primary.Save(ctx, asset); err != nil {
		return err
	}
	if err := r.cache.Set(ctx, asset); err != nil {
		logger.Warn(ctx, "asset cache write failed", "asset_id", asset.ID, "error", err)
	}
	return nil
}

func (r *cachedAssetRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Asset, error) {
	cached, err := r.cache.GetByIDs(ctx, ids)
	if err != nil {
		logger.Warn(ctx, "asset cache read failed", "error", err)
		cached = map[string]*domain.Asset{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return cached, nil
	}

	fetched, err := r.primary.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, a := range fetched {
		cached[id] = a
		if err := r.cache.Set(ctx, a); err != nil {
			logger.Warn(ctx, "asset cache write failed", "asset_id", id, "error", err)
		}
	}
	return cached, nil
}
