package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MirrorRow is one append-only row in the analytical mirror. The mirror never
// updates or deletes, so every read over it aggregates: quantities are sums
// of deltas, prices are the latest price-bearing row. ReversalOf links a
// compensating row to the event it negates.
type MirrorRow struct {
	EventID    string
	UserID     string
	AssetID    string
	Kind       EventKind
	UnitsDelta decimal.Decimal
	Price      decimal.Decimal
	HasPrice   bool
	Timestamp  time.Time
	Source     Provenance
	ReversalOf string
}

// NewMirrorRow maps an event onto its mirror representation.
func NewMirrorRow(e *Event, source Provenance) *MirrorRow {
	row := &MirrorRow{
		EventID:   e.ID,
		UserID:    e.UserID,
		AssetID:   e.AssetID,
		Kind:      e.Kind,
		Timestamp: e.OccurredAt,
		Source:    source,
	}
	if e.UnitsDelta.Valid {
		row.UnitsDelta = e.UnitsDelta.Decimal
	}
	switch e.Kind {
	case KindBuy, KindSell:
		if e.PriceClose.Valid {
			row.Price = e.PriceClose.Decimal
			row.HasPrice = true
		}
	case KindPositionAdd, KindValuation:
		if e.PriceOverride.Valid {
			row.Price = e.PriceOverride.Decimal
			row.HasPrice = true
		}
	}
	return row
}

// NewReversalRow builds the compensating row for a logically deleted event:
// same asset, negated delta, no price, tagged with the original event id. The
// reversal carries the original timestamp so every date window containing the
// original row also contains its negation.
func NewReversalRow(e *Event) *MirrorRow {
	row := &MirrorRow{
		EventID:    e.ID + ":reversal",
		UserID:     e.UserID,
		AssetID:    e.AssetID,
		Kind:       e.Kind,
		Timestamp:  e.OccurredAt,
		Source:     e.Source,
		ReversalOf: e.ID,
	}
	if e.UnitsDelta.Valid {
		row.UnitsDelta = e.UnitsDelta.Decimal.Neg()
	}
	return row
}
