package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventRepository is the authoritative, append-only event log.
type EventRepository interface {
	Save(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	// ListByUser returns the user's full history in timestamp order,
	// soft-deleted events included; the fold skips them itself.
	ListByUser(ctx context.Context, userID string) ([]*Event, error)
	// ListActive returns non-deleted events in [from, to) for resync.
	ListActive(ctx context.Context, userID string, from, to time.Time) ([]*Event, error)
	MarkDeleted(ctx context.Context, id string) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// MirrorDelta is the mirror's per-day per-asset aggregate: summed deltas and
// the day's last price-bearing row. Series queries fold these in order.
type MirrorDelta struct {
	Day        time.Time
	AssetID    string
	UnitsDelta decimal.Decimal
	LastPrice  decimal.Decimal
	HasPrice   bool
}

// MirrorHolding is an aggregated position read from the mirror.
type MirrorHolding struct {
	AssetID   string
	Quantity  decimal.Decimal
	LastPrice decimal.Decimal
	HasPrice  bool
}

// MirrorRepository is the column-oriented analytical store. Rows are
// immutable; every read aggregates so replays and reversals stay idempotent.
type MirrorRepository interface {
	InsertRow(ctx context.Context, row *MirrorRow) error
	InsertRows(ctx context.Context, rows []*MirrorRow) error
	// DeltasByDay returns day/asset aggregates for all rows before cutoff,
	// ordered by day.
	DeltasByDay(ctx context.Context, userID string, cutoff time.Time) ([]MirrorDelta, error)
	// HoldingsAt returns nonzero aggregated positions as of cutoff.
	HoldingsAt(ctx context.Context, userID string, cutoff time.Time) ([]MirrorHolding, error)
	// NetFlows returns per-asset summed deltas within [from, to).
	NetFlows(ctx context.Context, userID string, from, to time.Time) (map[string]decimal.Decimal, error)
	// LatestPrice returns the most recent price-bearing row for the asset
	// since the given instant.
	LatestPrice(ctx context.Context, assetID string, since time.Time) (decimal.Decimal, bool, error)
	LatestPrices(ctx context.Context, assetIDs []string, since time.Time) (map[string]decimal.Decimal, error)
	CountBySource(ctx context.Context, userID string, source Provenance) (uint64, error)
	// DeleteBySource issues a mutation removing rows with the given
	// provenance tag; used only by explicit replace-backfills.
	DeleteBySource(ctx context.Context, userID string, source Provenance) error
}

// SyncQueueRepository persists failed mirror writes for the retry sweep.
type SyncQueueRepository interface {
	Enqueue(ctx context.Context, item *SyncQueueItem) error
	// ListRetryable returns items with retry_count below maxAttempts.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*SyncQueueItem, error)
	Delete(ctx context.Context, id uint) error
	// MarkFailed increments retry_count with a store-level conditional
	// update; false means another sweep worker got there first.
	MarkFailed(ctx context.Context, item *SyncQueueItem, lastError string) (bool, error)
	CountRetryable(ctx context.Context, maxAttempts int) (int64, error)
	// List returns queue items newest first for operator inspection,
	// exhausted items included.
	List(ctx context.Context, limit int) ([]*SyncQueueItem, error)
}

// AssetRepository resolves asset metadata in batch.
type AssetRepository interface {
	Save(ctx context.Context, asset *Asset) error
	GetByIDs(ctx context.Context, ids []string) (map[string]*Asset, error)
}

// PriceRecordRepository stores manually-set prices in the system of record.
type PriceRecordRepository interface {
	Save(ctx context.Context, record *PriceRecord) error
	LatestByAsset(ctx context.Context, assetID string) (*PriceRecord, error)
	LatestByAssets(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error)
}

// EntitlementChecker gates premium read operations before any I/O.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

// BenchmarkPoint is one benchmark index observation.
type BenchmarkPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// BenchmarkClient is the external, read-only supplier of benchmark series.
type BenchmarkClient interface {
	GetBenchmark(ctx context.Context, symbol string, from, to time.Time) ([]BenchmarkPoint, error)
}

// EventPublisher feeds accepted events downstream, best effort; a publish
// failure never fails a write.
type EventPublisher interface {
	PublishEventRecorded(ctx context.Context, event *Event) error
}
