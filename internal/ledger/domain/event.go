package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies what a ledger event does to a position.
type EventKind string

const (
	KindDeposit     EventKind = "deposit"
	KindWithdraw    EventKind = "withdraw"
	KindBuy         EventKind = "buy"
	KindSell        EventKind = "sell"
	KindPositionAdd EventKind = "position_add"
	KindValuation   EventKind = "valuation"
	KindTransfer    EventKind = "transfer"
	KindDividend    EventKind = "dividend"
	KindSplit       EventKind = "split"
)

// Provenance records how an event or mirrored row came to exist.
type Provenance string

const (
	ProvenanceManual    Provenance = "manual"
	ProvenanceImport    Provenance = "import"
	ProvenanceMigration Provenance = "migration"
	ProvenanceRetry     Provenance = "retry"
)

// Event is one immutable financial event in a user's ledger. Deletion is
// logical: the Deleted flag flips, the row never goes away.
type Event struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(36);index:idx_user_occurred;not null" json:"user_id"`
	AssetID   string    `gorm:"column:asset_id;type:varchar(36);index;not null" json:"asset_id"`
	AccountID string    `gorm:"column:account_id;type:varchar(36)" json:"account_id,omitempty"`
	Kind      EventKind `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	// OccurredAt is the effective timestamp the fold orders by.
	OccurredAt    time.Time           `gorm:"column:occurred_at;index:idx_user_occurred;not null" json:"occurred_at"`
	UnitsDelta    decimal.NullDecimal `gorm:"column:units_delta;type:decimal(30,10)" json:"units_delta,omitempty"`
	PriceOverride decimal.NullDecimal `gorm:"column:price_override;type:decimal(30,10)" json:"price_override,omitempty"`
	PriceClose    decimal.NullDecimal `gorm:"column:price_close;type:decimal(30,10)" json:"price_close,omitempty"`
	Notes         string              `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Source        Provenance          `gorm:"column:source;type:varchar(16);not null;default:'manual'" json:"source"`
	Deleted       bool                `gorm:"column:deleted;not null;default:false" json:"deleted"`
	CreatedAt     time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (Event) TableName() string { return "ledger_events" }

// deltaKinds are the kinds that must carry a units delta.
var deltaKinds = map[EventKind]bool{
	KindDeposit:     true,
	KindWithdraw:    true,
	KindBuy:         true,
	KindSell:        true,
	KindPositionAdd: true,
	KindTransfer:    true,
	KindDividend:    true,
	KindSplit:       true,
}

// Validate rejects events missing a field their kind requires. Invalid events
// are never written, so they never reach the sync queue either.
func (e *Event) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if e.AssetID == "" {
		return fmt.Errorf("%w: asset_id is required", ErrValidation)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrValidation)
	}

	switch {
	case deltaKinds[e.Kind]:
		if !e.UnitsDelta.Valid {
			return fmt.Errorf("%w: %s event requires units_delta", ErrValidation, e.Kind)
		}
	case e.Kind == KindValuation:
		if !e.PriceOverride.Valid {
			return fmt.Errorf("%w: valuation event requires price_override", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrValidation, e.Kind)
	}
	return nil
}

// AppliesDelta reports whether the kind moves quantity.
func (k EventKind) AppliesDelta() bool { return deltaKinds[k] }
