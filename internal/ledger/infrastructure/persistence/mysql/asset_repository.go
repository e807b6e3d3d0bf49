package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type assetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) domain.AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Save(ctx context.Context, asset *domain.Asset) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(asset).Error
}

func (r *assetRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Asset, error) {
	result := make(map[string]*domain.Asset, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var assets []*domain.Asset
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&assets).Error; err != nil {
		return nil, err
	}
	for _, a := range assets {
		result[a.ID] = a
	}
	return result, nil
}
