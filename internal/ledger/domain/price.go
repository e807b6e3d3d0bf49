package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource labels where a price record came from.
type PriceSource string

const (
	PriceSourceManual   PriceSource = "manual"
	PriceSourceProvider PriceSource = "provider"
	PriceSourceImport   PriceSource = "import"
)

// PriceRecord is a manually or programmatically set price in the system of
// record, kept with provenance and confidence for later audit.
type PriceRecord struct {
	ID         uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AssetID    string          `gorm:"column:asset_id;type:varchar(36);index:idx_asset_created;not null" json:"asset_id"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(30,10);not null" json:"price"`
	Source     PriceSource     `gorm:"column:source;type:varchar(16);not null" json:"source"`
	Confidence float64         `gorm:"column:confidence;not null;default:1" json:"confidence"`
	CreatedAt  time.Time       `gorm:"column:created_at;index:idx_asset_created" json:"created_at"`
}

func (PriceRecord) TableName() string { return "asset_prices" }

// DefaultPriceFor is the class-based last resort: 1 for currency, 0 (meaning
// "needs valuation") for everything else.
func DefaultPriceFor(class AssetClass) decimal.Decimal {
	if class.IsCurrency() {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}
