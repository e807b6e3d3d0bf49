package application

import (
	"context"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/cache"
)

// AssetService resolves asset metadata through a process-local TTL cache in
// front of the composite repository. Concurrent misses for one key share a
// single in-flight fetch.
type AssetService struct {
	repo  domain.AssetRepository
	local *cache.TTLCache[*domain.Asset]
}

// NewAssetService builds an AssetService.
func NewAssetService(repo domain.AssetRepository, local *cache.TTLCache[*domain.Asset]) *AssetService {
	return &AssetService{repo: repo, local: local}
}

// GetAsset resolves one asset, deduplicating concurrent fetches.
func (s *AssetService) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	return s.local.GetOrFetch(ctx, id, func(ctx context.Context) (*domain.Asset, error) {
		assets, err := s.repo.GetByIDs(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		a, ok := assets[id]
		if !ok {
			// Unknown assets resolve to a placeholder so folds can still run.
			a = &domain.Asset{ID: id, Symbol: id, Class: domain.ClassOther}
		}
		return a, nil
	})
}

// GetAssets resolves a batch, filling cache misses with one repository call.
func (s *AssetService) GetAssets(ctx context.Context, ids []string) (map[string]*domain.Asset, error) {
	out := make(map[string]*domain.Asset, len(ids))
	var missing []string
	for _, id := range ids {
		if a, ok := s.local.Get(id); ok {
			out[id] = a
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		a, ok := fetched[id]
		if !ok {
			a = &domain.Asset{ID: id, Symbol: id, Class: domain.ClassOther}
		}
		s.local.Set(id, a)
		out[id] = a
	}
	return out, nil
}

// ClassesFor maps asset ids to classes for the reconstructor fold.
func (s *AssetService) ClassesFor(ctx context.Context, ids []string) (map[string]domain.AssetClass, error) {
	assets, err := s.GetAssets(ctx, ids)
	if err != nil {
		return nil, err
	}
	classes := make(map[string]domain.AssetClass, len(assets))
	for id, a := range assets {
		classes[id] = a.Class
	}
	return classes, nil
}

// SymbolsFor maps asset ids to display symbols.
func (s *AssetService) SymbolsFor(ctx context.Context, ids []string) (map[string]string, error) {
	assets, err := s.GetAssets(ctx, ids)
	if err != nil {
		return nil, err
	}
	symbols := make(map[string]string, len(assets))
	for id, a := range assets {
		symbols[id] = a.Symbol
	}
	return symbols, nil
}

// Invalidate drops cached metadata for the given ids.
func (s *AssetService) Invalidate(ids ...string) {
	s.local.Delete(ids...)
}
