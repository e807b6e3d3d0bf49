package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the derived per-asset state as of a date: running quantity and
// the last price any event established. Positions are never persisted.
type Position struct {
	AssetID   string          `json:"asset_id"`
	Class     AssetClass      `json:"class"`
	Quantity  decimal.Decimal `json:"quantity"`
	LastPrice decimal.Decimal `json:"last_price"`
}

// Value is quantity times last price.
func (p Position) Value() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice)
}

// Fold accumulates events into positions. It is the single fold both the
// point-in-time reconstruction and the series builders share, so their
// results cannot drift apart.
type Fold struct {
	classes map[string]AssetClass
	acc     map[string]*Position
}

// NewFold starts an empty fold over the given asset classes.
func NewFold(classes map[string]AssetClass) *Fold {
	return &Fold{classes: classes, acc: make(map[string]*Position, 8)}
}

// Apply folds one event in. Soft-deleted events are ignored. Events must be
// applied in timestamp order for deterministic price-overwrite semantics.
func (f *Fold) Apply(e *Event) {
	if e.Deleted {
		return
	}
	p := f.position(e.AssetID)

	if e.Kind.AppliesDelta() && e.UnitsDelta.Valid {
		p.Quantity = p.Quantity.Add(e.UnitsDelta.Decimal)
	}

	// Price stickiness: the price carried by the most recent price-bearing
	// event survives across events without one.
	switch e.Kind {
	case KindBuy, KindSell:
		if e.PriceClose.Valid {
			p.LastPrice = e.PriceClose.Decimal
		}
	case KindPositionAdd, KindValuation:
		if e.PriceOverride.Valid {
			p.LastPrice = e.PriceOverride.Decimal
		}
	}
}

// Add shifts an asset's quantity and optionally its price, for callers that
// fold pre-aggregated deltas instead of raw events.
func (f *Fold) Add(assetID string, delta decimal.Decimal, price decimal.Decimal, hasPrice bool) {
	p := f.position(assetID)
	p.Quantity = p.Quantity.Add(delta)
	if hasPrice {
		p.LastPrice = price
	}
}

// Positions returns the nonzero positions, sorted by asset id.
func (f *Fold) Positions() []Position {
	out := make([]Position, 0, len(f.acc))
	for _, p := range f.acc {
		if p.Quantity.IsZero() {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

func (f *Fold) position(assetID string) *Position {
	p, ok := f.acc[assetID]
	if !ok {
		class := f.classes[assetID]
		p = &Position{AssetID: assetID, Class: class}
		if class.IsCurrency() {
			p.LastPrice = decimal.NewFromInt(1)
		}
		f.acc[assetID] = p
	}
	return p
}

// Reconstructor folds an ordered event history into positions as of a
// calendar day in one fixed reference timezone.
type Reconstructor struct {
	loc *time.Location
}

// NewReconstructor builds a Reconstructor for the given reference timezone.
func NewReconstructor(loc *time.Location) *Reconstructor {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconstructor{loc: loc}
}

// Location returns the reference timezone.
func (r *Reconstructor) Location() *time.Location { return r.loc }

// CutoffFor returns the first instant after the target calendar day in the
// reference timezone. Events strictly before it belong to the day.
func (r *Reconstructor) CutoffFor(date time.Time) time.Time {
	y, m, d := date.In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc).AddDate(0, 0, 1)
}

// DayOf truncates an instant to its calendar day in the reference timezone.
func (r *Reconstructor) DayOf(t time.Time) time.Time {
	y, m, d := t.In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// PositionsAt folds events into positions as of the end of the target day.
// Zero-quantity positions are dropped; currency-class assets default to
// price 1.
func (r *Reconstructor) PositionsAt(events []*Event, classes map[string]AssetClass, date time.Time) []Position {
	cutoff := r.CutoffFor(date)

	retained := make([]*Event, 0, len(events))
	for _, e := range events {
		if e.OccurredAt.Before(cutoff) {
			retained = append(retained, e)
		}
	}
	SortEvents(retained)

	fold := NewFold(classes)
	for _, e := range retained {
		fold.Apply(e)
	}
	return fold.Positions()
}

// SortEvents orders events by effective timestamp, breaking ties by creation
// time and id so repeated folds are deterministic.
func SortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}
