package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

// SeriesPoint is one dated valuation in a series. Both read paths emit this
// exact shape, so callers cannot tell which one served them.
type SeriesPoint struct {
	Date        time.Time       `json:"date"`
	TotalValue  decimal.Decimal `json:"total_value"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	AssetsValue decimal.Decimal `json:"assets_value"`
}

// HoldingRow is one valued position in a holdings result.
type HoldingRow struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Class    domain.AssetClass `json:"class"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// BreakdownRow is one asset's activity and end state over a range.
type BreakdownRow struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Class    domain.AssetClass `json:"class"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	NetFlow  decimal.Decimal `json:"net_flow"`
}

// PerformanceResult is the premium performance analysis over a range.
type PerformanceResult struct {
	From          time.Time               `json:"from"`
	To            time.Time               `json:"to"`
	StartValue    decimal.Decimal         `json:"start_value"`
	EndValue      decimal.Decimal         `json:"end_value"`
	AbsoluteGain  decimal.Decimal         `json:"absolute_gain"`
	PercentChange decimal.Decimal         `json:"percent_change"`
	Series        []SeriesPoint           `json:"series"`
	Benchmark     []domain.BenchmarkPoint `json:"benchmark,omitempty"`
}
