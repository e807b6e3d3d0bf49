package mysql

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type priceRecordRepository struct {
	db *gorm.DB
}

func NewPriceRecordRepository(db *gorm.DB) domain.PriceRecordRepository {
	return &priceRecordRepository{db: db}
}

func (r *priceRecordRepository) Save(ctx context.Context, record *domain.PriceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *priceRecordRepository) LatestByAsset(ctx context.Context, assetID string) (*domain.PriceRecord, error) {
	var record domain.PriceRecord
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *priceRecordRepository) LatestByAssets(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(assetIDs))
	if len(assetIDs) == 0 {
		return result, nil
	}

	var records []*domain.PriceRecord
	err := r.db.WithContext(ctx).
		Where("asset_id IN ?", assetIDs).
		Order("asset_id ASC, created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	// Ascending order makes the last record per asset win.
	for _, rec := range records {
		result[rec.AssetID] = rec.Price
	}
	return result, nil
}
