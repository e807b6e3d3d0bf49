package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/cache"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func newTestMetrics() *metrics.Metrics {
	// Unregistered instruments still count; tests never scrape them.
	return metrics.New("test")
}

// --- event log fake ---

type fakeEventRepo struct {
	mu       sync.Mutex
	events   map[string]*domain.Event
	saveErr  error
	listErr  error
	getCalls int
	listCall int
}

func newFakeEventRepo(events ...*domain.Event) *fakeEventRepo {
	r := &fakeEventRepo{events: make(map[string]*domain.Event)}
	for _, e := range events {
		r.events[e.ID] = e
	}
	return r
}

func (r *fakeEventRepo) Save(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *fakeEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEventRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCall++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Event
	for _, e := range r.events {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	domain.SortEvents(out)
	return out, nil
}

func (r *fakeEventRepo) ListActive(ctx context.Context, userID string, from, to time.Time) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.UserID != userID || e.Deleted {
			continue
		}
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	domain.SortEvents(out)
	return out, nil
}

func (r *fakeEventRepo) MarkDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	e.Deleted = true
	return nil
}

func (r *fakeEventRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, e := range r.events {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- mirror fake ---

type fakeMirrorRepo struct {
	mu         sync.Mutex
	rows       []*domain.MirrorRow
	batches    int
	insertErr  error
	deltas     []domain.MirrorDelta
	deltasErr  error
	holdings   []domain.MirrorHolding
	holdingsEr error
	flows      map[string]decimal.Decimal
	flowsErr   error
	latest     map[string]decimal.Decimal
	latestErr  error
	migrated   map[string]uint64
	deletedBy  []string
}

func newFakeMirrorRepo() *fakeMirrorRepo {
	return &fakeMirrorRepo{migrated: map[string]uint64{}}
}

func (r *fakeMirrorRepo) InsertRow(ctx context.Context, row *domain.MirrorRow) error {
	return r.InsertRows(ctx, []*domain.MirrorRow{row})
}

func (r *fakeMirrorRepo) InsertRows(ctx context.Context, rows []*domain.MirrorRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.rows = append(r.rows, rows...)
	r.batches++
	return nil
}

func (r *fakeMirrorRepo) DeltasByDay(ctx context.Context, userID string, cutoff time.Time) ([]domain.MirrorDelta, error) {
	if r.deltasErr != nil {
		return nil, r.deltasErr
	}
	var out []domain.MirrorDelta
	for _, d := range r.deltas {
		if d.Day.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeMirrorRepo) HoldingsAt(ctx context.Context, userID string, cutoff time.Time) ([]domain.MirrorHolding, error) {
	if r.holdingsEr != nil {
		return nil, r.holdingsEr
	}
	return r.holdings, nil
}

func (r *fakeMirrorRepo) NetFlows(ctx context.Context, userID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	if r.flowsErr != nil {
		return nil, r.flowsErr
	}
	if r.flows == nil {
		return map[string]decimal.Decimal{}, nil
	}
	return r.flows, nil
}

func (r *fakeMirrorRepo) LatestPrice(ctx context.Context, assetID string, since time.Time) (decimal.Decimal, bool, error) {
	if r.latestErr != nil {
		return decimal.Zero, false, r.latestErr
	}
	p, ok := r.latest[assetID]
	return p, ok, nil
}

func (r *fakeMirrorRepo) LatestPrices(ctx context.Context, assetIDs []string, since time.Time) (map[string]decimal.Decimal, error) {
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	out := map[string]decimal.Decimal{}
	for _, id := range assetIDs {
		if p, ok := r.latest[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeMirrorRepo) CountBySource(ctx context.Context, userID string, source domain.Provenance) (uint64, error) {
	return r.migrated[userID+"|"+string(source)], nil
}

func (r *fakeMirrorRepo) DeleteBySource(ctx context.Context, userID string, source domain.Provenance) error {
	r.deletedBy = append(r.deletedBy, userID+"|"+string(source))
	r.migrated[userID+"|"+string(source)] = 0
	return nil
}

// --- sync queue fake ---

type fakeQueueRepo struct {
	mu         sync.Mutex
	nextID     uint
	items      map[uint]*domain.SyncQueueItem
	enqueueErr error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{items: map[uint]*domain.SyncQueueItem{}}
}

func (r *fakeQueueRepo) Enqueue(ctx context.Context, item *domain.SyncQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	r.nextID++
	item.ID = r.nextID
	item.CreatedAt = time.Now()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeQueueRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.SyncQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncQueueItem
	for _, item := range r.items {
		if item.RetryCount < maxAttempts {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeQueueRepo) MarkFailed(ctx context.Context, item *domain.SyncQueueItem, lastError string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok || stored.RetryCount != item.RetryCount {
		return false, nil
	}
	now := time.Now()
	stored.RetryCount++
	stored.LastError = lastError
	stored.LastRetryAt = &now
	item.RetryCount = stored.RetryCount
	item.LastError = lastError
	return true, nil
}

func (r *fakeQueueRepo) CountRetryable(ctx context.Context, maxAttempts int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.RetryCount < maxAttempts {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) List(ctx context.Context, limit int) ([]*domain.SyncQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncQueueItem
	for _, item := range r.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- asset / price fakes ---

type fakeAssetRepo struct {
	assets map[string]*domain.Asset
	calls  int
}

func (r *fakeAssetRepo) Save(ctx context.Context, asset *domain.Asset) error {
	r.assets[asset.ID] = asset
	return nil
}

func (r *fakeAssetRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Asset, error) {
	r.calls++
	out := map[string]*domain.Asset{}
	for _, id := range ids {
		if a, ok := r.assets[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func newTestAssetService(assets ...*domain.Asset) (*AssetService, *fakeAssetRepo) {
	repo := &fakeAssetRepo{assets: map[string]*domain.Asset{}}
	for _, a := range assets {
		repo.assets[a.ID] = a
	}
	svc := NewAssetService(repo, cache.NewTTL[*domain.Asset](time.Minute, cache.SystemClock()))
	return svc, repo
}

type fakePriceRecordRepo struct {
	records map[string]*domain.PriceRecord
	saved   []*domain.PriceRecord
}

func newFakePriceRecordRepo() *fakePriceRecordRepo {
	return &fakePriceRecordRepo{records: map[string]*domain.PriceRecord{}}
}

func (r *fakePriceRecordRepo) Save(ctx context.Context, record *domain.PriceRecord) error {
	r.saved = append(r.saved, record)
	r.records[record.AssetID] = record
	return nil
}

func (r *fakePriceRecordRepo) LatestByAsset(ctx context.Context, assetID string) (*domain.PriceRecord, error) {
	return r.records[assetID], nil
}

func (r *fakePriceRecordRepo) LatestByAssets(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, id := range assetIDs {
		if rec, ok := r.records[id]; ok {
			out[id] = rec.Price
		}
	}
	return out, nil
}

// --- boundaries ---

type fakeEntitlements struct {
	entitled map[string]bool
	err      error
	calls    int
}

func (f *fakeEntitlements) IsEntitled(ctx context.Context, userID string) (bool, error) {
	f.calls++
	return f.entitled[userID], f.err
}

type fakeBenchmark struct {
	points []domain.BenchmarkPoint
	err    error
}

func (f *fakeBenchmark) GetBenchmark(ctx context.Context, symbol string, from, to time.Time) ([]domain.BenchmarkPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

type fakePublisher struct {
	published []*domain.Event
	err       error
}

func (f *fakePublisher) PublishEventRecorded(ctx context.Context, event *domain.Event) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}
