package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/cache"
	"github.com/wyfcoding/wealthledger/pkg/logger"
)

// PriceService resolves current per-asset prices through a tiered chain:
// process-local TTL cache, most recent mirror price within a lookback window,
// manual price record in the system of record, then the class default.
type PriceService struct {
	mirror domain.MirrorRepository
	prices domain.PriceRecordRepository
	assets *AssetService
	local  *cache.TTLCache[decimal.Decimal]
	clock  cache.Clock

	// singleLookback bounds single lookups; batchLookback is wider, trading
	// freshness for one round trip.
	singleLookback time.Duration
	batchLookback  time.Duration
}

// NewPriceService builds a PriceService.
func NewPriceService(
	mirror domain.MirrorRepository,
	prices domain.PriceRecordRepository,
	assets *AssetService,
	local *cache.TTLCache[decimal.Decimal],
	clock cache.Clock,
	singleLookback, batchLookback time.Duration,
) *PriceService {
	if clock == nil {
		clock = cache.SystemClock()
	}
	return &PriceService{
		mirror:         mirror,
		prices:         prices,
		assets:         assets,
		local:          local,
		clock:          clock,
		singleLookback: singleLookback,
		batchLookback:  batchLookback,
	}
}

// GetCurrentPrice resolves one asset's current price.
func (s *PriceService) GetCurrentPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if price, ok := s.local.Get(assetID); ok {
		return price, nil
	}

	since := s.clock.Now().Add(-s.singleLookback)
	price, found, err := s.mirror.LatestPrice(ctx, assetID, since)
	if err != nil {
		logger.Warn(ctx, "mirror price lookup failed, trying event log", "asset_id", assetID, "error", err)
	} else if found {
		s.local.Set(assetID, price)
		return price, nil
	}

	record, err := s.prices.LatestByAsset(ctx, assetID)
	if err == nil && record != nil {
		s.local.Set(assetID, record.Price)
		return record.Price, nil
	}

	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	fallback := domain.DefaultPriceFor(asset.Class)
	s.local.Set(assetID, fallback)
	return fallback, nil
}

// GetBatchPrices resolves all assets with one mirror round trip, filling
// still-unresolved assets from price records, then class defaults. The local
// cache is populated as a side effect.
func (s *PriceService) GetBatchPrices(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(assetIDs))
	var missing []string
	for _, id := range assetIDs {
		if price, ok := s.local.Get(id); ok {
			out[id] = price
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	since := s.clock.Now().Add(-s.batchLookback)
	mirrored, err := s.mirror.LatestPrices(ctx, missing, since)
	if err != nil {
		logger.Warn(ctx, "mirror batch price lookup failed", "count", len(missing), "error", err)
		mirrored = map[string]decimal.Decimal{}
	}

	var unresolved []string
	for _, id := range missing {
		if price, ok := mirrored[id]; ok {
			s.local.Set(id, price)
			out[id] = price
			continue
		}
		unresolved = append(unresolved, id)
	}
	if len(unresolved) == 0 {
		return out, nil
	}

	records, err := s.prices.LatestByAssets(ctx, unresolved)
	if err != nil {
		logger.Warn(ctx, "price record batch lookup failed", "count", len(unresolved), "error", err)
		records = map[string]decimal.Decimal{}
	}

	var defaulted []string
	for _, id := range unresolved {
		if price, ok := records[id]; ok {
			s.local.Set(id, price)
			out[id] = price
			continue
		}
		defaulted = append(defaulted, id)
	}
	if len(defaulted) == 0 {
		return out, nil
	}

	assets, err := s.assets.GetAssets(ctx, defaulted)
	if err != nil {
		return nil, err
	}
	for _, id := range defaulted {
		price := domain.DefaultPriceFor(assets[id].Class)
		s.local.Set(id, price)
		out[id] = price
	}
	return out, nil
}

// UpdateAssetPrice records a new price with provenance and confidence, and
// invalidates the cached price so the next read observes it.
func (s *PriceService) UpdateAssetPrice(ctx context.Context, assetID string, price decimal.Decimal, source domain.PriceSource, confidence float64) error {
	record := &domain.PriceRecord{
		AssetID:    assetID,
		Price:      price,
		Source:     source,
		Confidence: confidence,
	}
	if err := s.prices.Save(ctx, record); err != nil {
		return err
	}
	s.local.Delete(assetID)
	return nil
}
