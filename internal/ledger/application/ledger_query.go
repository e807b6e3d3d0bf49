package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
)

// LedgerQuery answers read queries from the analytical mirror, falling back
// to deriving the identical result from the event log whenever the mirror
// errors, times out, or returns nothing. Both paths converge on one DTO per
// query type, so callers cannot tell which path served them.
type LedgerQuery struct {
	events       domain.EventRepository
	mirror       domain.MirrorRepository
	recon        *domain.Reconstructor
	assets       *AssetService
	prices       *PriceService
	snapshots    *SnapshotCache
	entitlements domain.EntitlementChecker
	benchmark    domain.BenchmarkClient
	metrics      *metrics.Metrics
	queryTimeout time.Duration
}

// NewLedgerQuery builds the query service. benchmark may be nil.
func NewLedgerQuery(
	events domain.EventRepository,
	mirror domain.MirrorRepository,
	recon *domain.Reconstructor,
	assets *AssetService,
	prices *PriceService,
	snapshots *SnapshotCache,
	entitlements domain.EntitlementChecker,
	benchmark domain.BenchmarkClient,
	m *metrics.Metrics,
	queryTimeout time.Duration,
) *LedgerQuery {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &LedgerQuery{
		events:       events,
		mirror:       mirror,
		recon:        recon,
		assets:       assets,
		prices:       prices,
		snapshots:    snapshots,
		entitlements: entitlements,
		benchmark:    benchmark,
		metrics:      m,
		queryTimeout: queryTimeout,
	}
}

// GetSnapshot returns the valued snapshot for (user, date), computing and
// caching it on miss. Cached snapshots never expire; ledger mutations
// invalidate them.
func (q *LedgerQuery) GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.Snapshot, error) {
	if snap, ok := q.snapshots.Get(userID, date); ok {
		q.metrics.SnapshotCacheHits.Inc()
		return snap, nil
	}
	q.metrics.SnapshotCacheMisses.Inc()

	events, err := q.events.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEventLogUnavailable, err)
	}

	ids := assetIDsOf(events)
	classes, err := q.assets.ClassesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	symbols, err := q.assets.SymbolsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	positions := q.recon.PositionsAt(events, classes, date)
	positions, err = q.fillCurrentPrices(ctx, positions)
	if err != nil {
		return nil, err
	}
	snap := domain.BuildSnapshot(userID, q.recon.DayOf(date), positions, symbols)
	q.snapshots.Set(userID, date, snap)
	return snap, nil
}

// InvalidateSnapshot removes one cached date, or the user's whole cache when
// date is nil.
func (q *LedgerQuery) InvalidateSnapshot(userID string, date *time.Time) {
	if date == nil {
		q.snapshots.InvalidateUser(userID)
		return
	}
	q.snapshots.Invalidate(userID, *date)
}

// DailySeries returns one valued point per calendar day in [from, to].
func (q *LedgerQuery) DailySeries(ctx context.Context, userID string, from, to time.Time) ([]SeriesPoint, error) {
	points, perr := q.dailySeriesPrimary(ctx, userID, from, to)
	if perr == nil && len(points) > 0 {
		return points, nil
	}
	if perr != nil {
		logger.Warn(ctx, "mirror series query failed, deriving from event log", "user_id", userID, "error", perr)
	}
	q.metrics.FallbackReadsTotal.WithLabelValues("daily_series").Inc()

	points, ferr := q.dailySeriesFallback(ctx, userID, from, to)
	if ferr != nil {
		return nil, fmt.Errorf("%w: primary: %v, fallback: %v", domain.ErrReadUnavailable, perr, ferr)
	}
	return points, nil
}

// MonthlySeries samples the daily series at each month's last covered day.
func (q *LedgerQuery) MonthlySeries(ctx context.Context, userID string, from, to time.Time) ([]SeriesPoint, error) {
	daily, err := q.DailySeries(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	var monthly []SeriesPoint
	for i, p := range daily {
		last := i == len(daily)-1
		if !last {
			next := daily[i+1]
			if next.Date.Month() == p.Date.Month() && next.Date.Year() == p.Date.Year() {
				continue
			}
		}
		monthly = append(monthly, p)
	}
	return monthly, nil
}

// HoldingsAt returns the valued positions as of a date, enriched with asset
// metadata and, for unpriced non-currency positions, current prices.
func (q *LedgerQuery) HoldingsAt(ctx context.Context, userID string, date time.Time) ([]HoldingRow, error) {
	positions, perr := q.holdingsPrimary(ctx, userID, date)
	if perr != nil || len(positions) == 0 {
		if perr != nil {
			logger.Warn(ctx, "mirror holdings query failed, deriving from event log", "user_id", userID, "error", perr)
		}
		q.metrics.FallbackReadsTotal.WithLabelValues("holdings_at").Inc()

		var ferr error
		positions, ferr = q.holdingsFallback(ctx, userID, date)
		if ferr != nil {
			return nil, fmt.Errorf("%w: primary: %v, fallback: %v", domain.ErrReadUnavailable, perr, ferr)
		}
	}
	return q.valuedRows(ctx, positions)
}

// AssetBreakdown reports, per asset, the end-of-range state plus the net
// units flow within [from, to].
func (q *LedgerQuery) AssetBreakdown(ctx context.Context, userID string, from, to time.Time) ([]BreakdownRow, error) {
	holdings, err := q.HoldingsAt(ctx, userID, to)
	if err != nil {
		return nil, err
	}

	rangeStart := q.recon.DayOf(from)
	rangeEnd := q.recon.CutoffFor(to)

	flows, perr := q.netFlowsPrimary(ctx, userID, rangeStart, rangeEnd)
	if perr != nil {
		logger.Warn(ctx, "mirror flow query failed, deriving from event log", "user_id", userID, "error", perr)
		q.metrics.FallbackReadsTotal.WithLabelValues("asset_breakdown").Inc()

		var ferr error
		flows, ferr = q.netFlowsFallback(ctx, userID, rangeStart, rangeEnd)
		if ferr != nil {
			return nil, fmt.Errorf("%w: primary: %v, fallback: %v", domain.ErrReadUnavailable, perr, ferr)
		}
	}

	rows := make([]BreakdownRow, 0, len(holdings))
	seen := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		rows = append(rows, BreakdownRow{
			AssetID:  h.AssetID,
			Symbol:   h.Symbol,
			Class:    h.Class,
			Quantity: h.Quantity,
			Price:    h.Price,
			Value:    h.Value,
			NetFlow:  flows[h.AssetID],
		})
		seen[h.AssetID] = true
	}

	// Assets traded within the range but fully exited by its end still show
	// up, with zero quantity.
	var exited []string
	for id := range flows {
		if !seen[id] {
			exited = append(exited, id)
		}
	}
	if len(exited) > 0 {
		assets, err := q.assets.GetAssets(ctx, exited)
		if err != nil {
			return nil, err
		}
		for _, id := range exited {
			rows = append(rows, BreakdownRow{
				AssetID: id,
				Symbol:  assets[id].Symbol,
				Class:   assets[id].Class,
				NetFlow: flows[id],
			})
		}
	}
	return rows, nil
}

// PerformanceAnalysis is premium-gated: the entitlement check runs before any
// store I/O.
func (q *LedgerQuery) PerformanceAnalysis(ctx context.Context, userID string, from, to time.Time, benchmarkSymbol string) (*PerformanceResult, error) {
	entitled, err := q.entitlements.IsEntitled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !entitled {
		return nil, domain.ErrNotEntitled
	}

	series, err := q.DailySeries(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	result := &PerformanceResult{
		From:   q.recon.DayOf(from),
		To:     q.recon.DayOf(to),
		Series: series,
	}
	if len(series) > 0 {
		result.StartValue = series[0].TotalValue
		result.EndValue = series[len(series)-1].TotalValue
		result.AbsoluteGain = result.EndValue.Sub(result.StartValue)
		if !result.StartValue.IsZero() {
			result.PercentChange = result.AbsoluteGain.Div(result.StartValue).Mul(decimal.NewFromInt(100))
		}
	}

	if benchmarkSymbol != "" && q.benchmark != nil {
		points, err := q.benchmark.GetBenchmark(ctx, benchmarkSymbol, result.From, result.To)
		if err != nil {
			logger.Warn(ctx, "benchmark fetch failed, omitting", "symbol", benchmarkSymbol, "error", err)
		} else {
			result.Benchmark = points
		}
	}
	return result, nil
}

// --- primary (mirror) implementations ---

func (q *LedgerQuery) dailySeriesPrimary(ctx context.Context, userID string, from, to time.Time) ([]SeriesPoint, error) {
	tctx, cancel := context.WithTimeout(ctx, q.queryTimeout)
	defer cancel()

	deltas, err := q.mirror.DeltasByDay(tctx, userID, q.recon.CutoffFor(to))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMirrorUnavailable, err)
	}
	if len(deltas) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, 8)
	seen := make(map[string]bool)
	for _, d := range deltas {
		if !seen[d.AssetID] {
			seen[d.AssetID] = true
			ids = append(ids, d.AssetID)
		}
	}
	classes, err := q.assets.ClassesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	return q.seriesFromDeltas(deltas, classes, from, to), nil
}

func (q *LedgerQuery) seriesFromDeltas(deltas []domain.MirrorDelta, classes map[string]domain.AssetClass, from, to time.Time) []SeriesPoint {
	fold := domain.NewFold(classes)
	startDay := q.recon.DayOf(from)
	endDay := q.recon.DayOf(to)

	idx := 0
	for idx < len(deltas) && q.recon.DayOf(deltas[idx].Day).Before(startDay) {
		d := deltas[idx]
		fold.Add(d.AssetID, d.UnitsDelta, d.LastPrice, d.HasPrice)
		idx++
	}

	var points []SeriesPoint
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		for idx < len(deltas) && q.recon.DayOf(deltas[idx].Day).Equal(day) {
			d := deltas[idx]
			fold.Add(d.AssetID, d.UnitsDelta, d.LastPrice, d.HasPrice)
			idx++
		}
		points = append(points, pointFor(day, fold.Positions()))
	}
	return points
}

func (q *LedgerQuery) holdingsPrimary(ctx context.Context, userID string, date time.Time) ([]domain.Position, error) {
	tctx, cancel := context.WithTimeout(ctx, q.queryTimeout)
	defer cancel()

	holdings, err := q.mirror.HoldingsAt(tctx, userID, q.recon.CutoffFor(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMirrorUnavailable, err)
	}
	if len(holdings) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.AssetID)
	}
	classes, err := q.assets.ClassesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(holdings))
	for _, h := range holdings {
		class := classes[h.AssetID]
		price := h.LastPrice
		if !h.HasPrice {
			price = domain.DefaultPriceFor(class)
		}
		positions = append(positions, domain.Position{
			AssetID:   h.AssetID,
			Class:     class,
			Quantity:  h.Quantity,
			LastPrice: price,
		})
	}
	return positions, nil
}

func (q *LedgerQuery) netFlowsPrimary(ctx context.Context, userID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	tctx, cancel := context.WithTimeout(ctx, q.queryTimeout)
	defer cancel()

	flows, err := q.mirror.NetFlows(tctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMirrorUnavailable, err)
	}
	return flows, nil
}

// --- fallback (event log) implementations ---

func (q *LedgerQuery) dailySeriesFallback(ctx context.Context, userID string, from, to time.Time) ([]SeriesPoint, error) {
	events, classes, err := q.loadHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	domain.SortEvents(events)
	fold := domain.NewFold(classes)
	startDay := q.recon.DayOf(from)
	endDay := q.recon.DayOf(to)

	idx := 0
	var points []SeriesPoint
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		cutoff := q.recon.CutoffFor(day)
		for idx < len(events) && events[idx].OccurredAt.Before(cutoff) {
			fold.Apply(events[idx])
			idx++
		}
		points = append(points, pointFor(day, fold.Positions()))
	}
	return points, nil
}

func (q *LedgerQuery) holdingsFallback(ctx context.Context, userID string, date time.Time) ([]domain.Position, error) {
	events, classes, err := q.loadHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	return q.recon.PositionsAt(events, classes, date), nil
}

func (q *LedgerQuery) netFlowsFallback(ctx context.Context, userID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	events, err := q.events.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEventLogUnavailable, err)
	}

	flows := make(map[string]decimal.Decimal)
	for _, e := range events {
		if e.Deleted || !e.Kind.AppliesDelta() || !e.UnitsDelta.Valid {
			continue
		}
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		flows[e.AssetID] = flows[e.AssetID].Add(e.UnitsDelta.Decimal)
	}
	return flows, nil
}

// --- shared helpers ---

func (q *LedgerQuery) loadHistory(ctx context.Context, userID string) ([]*domain.Event, map[string]domain.AssetClass, error) {
	events, err := q.events.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrEventLogUnavailable, err)
	}
	classes, err := q.assets.ClassesFor(ctx, assetIDsOf(events))
	if err != nil {
		return nil, nil, err
	}
	return events, classes, nil
}

// fillCurrentPrices prices unpriced non-currency positions through the price
// engine, so every valuation path applies the same pricing rules.
func (q *LedgerQuery) fillCurrentPrices(ctx context.Context, positions []domain.Position) ([]domain.Position, error) {
	var unpriced []string
	for _, p := range positions {
		if !p.Class.IsCurrency() && p.LastPrice.IsZero() {
			unpriced = append(unpriced, p.AssetID)
		}
	}
	if len(unpriced) == 0 {
		return positions, nil
	}

	current, err := q.prices.GetBatchPrices(ctx, unpriced)
	if err != nil {
		return positions, err
	}
	for i := range positions {
		if !positions[i].LastPrice.IsZero() {
			continue
		}
		if filled, ok := current[positions[i].AssetID]; ok {
			positions[i].LastPrice = filled
		}
	}
	return positions, nil
}

// valuedRows enriches positions with symbols and prices, pricing unpriced
// non-currency positions through the price engine, sorted by value desc.
func (q *LedgerQuery) valuedRows(ctx context.Context, positions []domain.Position) ([]HoldingRow, error) {
	positions, err := q.fillCurrentPrices(ctx, positions)
	if err != nil {
		logger.Warn(ctx, "price engine lookup failed, leaving positions unpriced", "error", err)
	}

	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.AssetID)
	}
	symbols, err := q.assets.SymbolsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]HoldingRow, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, HoldingRow{
			AssetID:  p.AssetID,
			Symbol:   symbols[p.AssetID],
			Class:    p.Class,
			Quantity: p.Quantity,
			Price:    p.LastPrice,
			Value:    p.Quantity.Mul(p.LastPrice),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Value.Equal(rows[j].Value) {
			return rows[i].Value.GreaterThan(rows[j].Value)
		}
		return rows[i].AssetID < rows[j].AssetID
	})
	return rows, nil
}

func pointFor(day time.Time, positions []domain.Position) SeriesPoint {
	cash := decimal.Zero
	assets := decimal.Zero
	for _, p := range positions {
		if p.Class.IsCurrency() {
			cash = cash.Add(p.Value())
		} else {
			assets = assets.Add(p.Value())
		}
	}
	return SeriesPoint{
		Date:        day,
		TotalValue:  cash.Add(assets),
		CashBalance: cash,
		AssetsValue: assets,
	}
}

func assetIDsOf(events []*domain.Event) []string {
	seen := make(map[string]bool, 8)
	ids := make([]string, 0, 8)
	for _, e := range events {
		if !seen[e.AssetID] {
			seen[e.AssetID] = true
			ids = append(ids, e.AssetID)
		}
	}
	return ids
}
