package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BreakdownEntry is one non-currency holding inside a snapshot.
type BreakdownEntry struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Class    AssetClass      `json:"class"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// Snapshot is the valued state of a user's ledger on one calendar day.
// TotalValue always equals CashBalance plus AssetsValue; a negative cash
// balance (overdraft) is representable, not an error.
type Snapshot struct {
	UserID      string           `json:"user_id"`
	Date        time.Time        `json:"date"`
	TotalValue  decimal.Decimal  `json:"total_value"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
	AssetsValue decimal.Decimal  `json:"assets_value"`
	Breakdown   []BreakdownEntry `json:"asset_breakdown"`
}

// BuildSnapshot values a position list. Currency-class positions fold into
// the cash balance; every other class is emitted as a breakdown entry,
// sorted by value descending for stable display. symbols may be nil.
func BuildSnapshot(userID string, date time.Time, positions []Position, symbols map[string]string) *Snapshot {
	s := &Snapshot{
		UserID:      userID,
		Date:        date,
		CashBalance: decimal.Zero,
		AssetsValue: decimal.Zero,
		Breakdown:   []BreakdownEntry{},
	}

	for _, p := range positions {
		value := p.Value()
		if p.Class.IsCurrency() {
			s.CashBalance = s.CashBalance.Add(value)
			continue
		}
		s.AssetsValue = s.AssetsValue.Add(value)
		s.Breakdown = append(s.Breakdown, BreakdownEntry{
			AssetID:  p.AssetID,
			Symbol:   symbols[p.AssetID],
			Class:    p.Class,
			Quantity: p.Quantity,
			Price:    p.LastPrice,
			Value:    value,
		})
	}

	sort.SliceStable(s.Breakdown, func(i, j int) bool {
		return s.Breakdown[i].Value.GreaterThan(s.Breakdown[j].Value)
	})

	s.TotalValue = s.CashBalance.Add(s.AssetsValue)
	return s
}
