// Package clickhouse implements the analytical mirror on the native protocol.
// The mirror table is append-only: deletes happen only through reversal rows,
// so every query aggregates instead of trusting individual rows.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type mirrorRepository struct {
	conn driver.Conn
	// tz is the reference timezone for calendar-day bucketing. Day buckets
	// must be computed in this zone, not the server's, or a server-day
	// bucket could straddle two reference days.
	tz string
}

func NewMirrorRepository(conn driver.Conn, loc *time.Location) domain.MirrorRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &mirrorRepository{conn: conn, tz: loc.String()}
}

func (r *mirrorRepository) InsertRow(ctx context.Context, row *domain.MirrorRow) error {
	return r.InsertRows(ctx, []*domain.MirrorRow{row})
}

func (r *mirrorRepository) InsertRows(ctx context.Context, rows []*domain.MirrorRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO ledger_mirror (event_id, user_id, asset_id, kind, units_delta, price, has_price, ts, source, reversal_of)")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		hasPrice := uint8(0)
		if row.HasPrice {
			hasPrice = 1
		}
		err := batch.Append(
			row.EventID,
			row.UserID,
			row.AssetID,
			string(row.Kind),
			row.UnitsDelta.InexactFloat64(),
			row.Price.InexactFloat64(),
			hasPrice,
			row.Timestamp,
			string(row.Source),
			row.ReversalOf,
		)
		if err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}
	return batch.Send()
}

func (r *mirrorRepository) DeltasByDay(ctx context.Context, userID string, cutoff time.Time) ([]domain.MirrorDelta, error) {
	query := `SELECT toStartOfDay(ts, ?) AS day, asset_id,
	                 sum(units_delta) AS units_delta,
	                 argMaxIf(price, ts, has_price = 1) AS last_price,
	                 max(has_price) AS has_price
	          FROM ledger_mirror
	          WHERE user_id = ? AND ts < ?
	          GROUP BY day, asset_id
	          ORDER BY day ASC, asset_id ASC`

	rows, err := r.conn.Query(ctx, query, r.tz, userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deltas []domain.MirrorDelta
	for rows.Next() {
		var (
			d         domain.MirrorDelta
			units     float64
			lastPrice float64
			hasPrice  uint8
		)
		if err := rows.Scan(&d.Day, &d.AssetID, &units, &lastPrice, &hasPrice); err != nil {
			return nil, err
		}
		d.UnitsDelta = decimal.NewFromFloat(units)
		d.LastPrice = decimal.NewFromFloat(lastPrice)
		d.HasPrice = hasPrice == 1
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

func (r *mirrorRepository) HoldingsAt(ctx context.Context, userID string, cutoff time.Time) ([]domain.MirrorHolding, error) {
	query := `SELECT asset_id,
	                 sum(units_delta) AS quantity,
	                 argMaxIf(price, ts, has_price = 1) AS last_price,
	                 max(has_price) AS has_price
	          FROM ledger_mirror
	          WHERE user_id = ? AND ts < ?
	          GROUP BY asset_id
	          HAVING quantity != 0
	          ORDER BY asset_id ASC`

	rows, err := r.conn.Query(ctx, query, userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []domain.MirrorHolding
	for rows.Next() {
		var (
			h         domain.MirrorHolding
			quantity  float64
			lastPrice float64
			hasPrice  uint8
		)
		if err := rows.Scan(&h.AssetID, &quantity, &lastPrice, &hasPrice); err != nil {
			return nil, err
		}
		h.Quantity = decimal.NewFromFloat(quantity)
		h.LastPrice = decimal.NewFromFloat(lastPrice)
		h.HasPrice = hasPrice == 1
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (r *mirrorRepository) NetFlows(ctx context.Context, userID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	query := `SELECT asset_id, sum(units_delta) AS flow
	          FROM ledger_mirror
	          WHERE user_id = ? AND ts >= ? AND ts < ?
	          GROUP BY asset_id
	          HAVING flow != 0`

	rows, err := r.conn.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flows := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			assetID string
			flow    float64
		)
		if err := rows.Scan(&assetID, &flow); err != nil {
			return nil, err
		}
		flows[assetID] = decimal.NewFromFloat(flow)
	}
	return flows, rows.Err()
}

func (r *mirrorRepository) LatestPrice(ctx context.Context, assetID string, since time.Time) (decimal.Decimal, bool, error) {
	query := `SELECT price FROM ledger_mirror
	          WHERE asset_id = ? AND has_price = 1 AND ts >= ?
	          ORDER BY ts DESC
	          LIMIT 1`

	rows, err := r.conn.Query(ctx, query, assetID, since)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return decimal.Zero, false, rows.Err()
	}
	var price float64
	if err := rows.Scan(&price); err != nil {
		return decimal.Zero, false, err
	}
	return decimal.NewFromFloat(price), true, nil
}

func (r *mirrorRepository) LatestPrices(ctx context.Context, assetIDs []string, since time.Time) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(assetIDs))
	if len(assetIDs) == 0 {
		return prices, nil
	}

	query := `SELECT asset_id, argMax(price, ts) AS price
	          FROM ledger_mirror
	          WHERE asset_id IN (?) AND has_price = 1 AND ts >= ?
	          GROUP BY asset_id`

	rows, err := r.conn.Query(ctx, query, assetIDs, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			assetID string
			price   float64
		)
		if err := rows.Scan(&assetID, &price); err != nil {
			return nil, err
		}
		prices[assetID] = decimal.NewFromFloat(price)
	}
	return prices, rows.Err()
}

func (r *mirrorRepository) CountBySource(ctx context.Context, userID string, source domain.Provenance) (uint64, error) {
	query := `SELECT count() FROM ledger_mirror WHERE user_id = ? AND source = ?`

	rows, err := r.conn.Query(ctx, query, userID, string(source))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// DeleteBySource is the one mutation the mirror allows, reserved for explicit
// replace-backfills. ClickHouse applies it asynchronously.
func (r *mirrorRepository) DeleteBySource(ctx context.Context, userID string, source domain.Provenance) error {
	return r.conn.Exec(ctx, "ALTER TABLE ledger_mirror DELETE WHERE user_id = ? AND source = ?", userID, string(source))
}
