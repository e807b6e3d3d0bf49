package domain

import "time"

// AssetClass buckets assets for valuation: currency-class positions make up
// the cash balance, everything else is an asset holding.
type AssetClass string

const (
	ClassCurrency AssetClass = "currency"
	ClassEquity   AssetClass = "equity"
	ClassFund     AssetClass = "fund"
	ClassCrypto   AssetClass = "crypto"
	ClassProperty AssetClass = "property"
	ClassOther    AssetClass = "other"
)

// IsCurrency reports whether positions of this class count as cash.
func (c AssetClass) IsCurrency() bool { return c == ClassCurrency }

// Asset is the metadata record behind an asset id.
type Asset struct {
	ID        string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID    string     `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	Symbol    string     `gorm:"column:symbol;type:varchar(32);index;not null" json:"symbol"`
	Name      string     `gorm:"column:name;type:varchar(128)" json:"name"`
	Class     AssetClass `gorm:"column:class;type:varchar(16);not null;default:'other'" json:"class"`
	Currency  string     `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Asset) TableName() string { return "assets" }
