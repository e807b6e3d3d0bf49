package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

func newCommandFixture() (*LedgerCommand, *fakeEventRepo, *fakeMirrorRepo, *fakeQueueRepo, *SnapshotCache) {
	events := newFakeEventRepo()
	mirror := newFakeMirrorRepo()
	queue := newFakeQueueRepo()
	snapshots := NewSnapshotCache(16, time.UTC)
	cmd := NewLedgerCommand(events, mirror, queue, nil, snapshots, newTestMetrics(), 0)
	return cmd, events, mirror, queue, snapshots
}

func depositEvent() *domain.Event {
	return &domain.Event{
		UserID:     "u1",
		AssetID:    "usd",
		Kind:       domain.KindDeposit,
		OccurredAt: day(1),
		UnitsDelta: nd("10000"),
	}
}

func TestWriteEventMirrorsAndReturnsID(t *testing.T) {
	cmd, events, mirror, queue, _ := newCommandFixture()

	id, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := events.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceManual, stored.Source, "source defaults to manual")

	require.Len(t, mirror.rows, 1)
	assert.Equal(t, id, mirror.rows[0].EventID)
	items, _ := queue.List(context.Background(), 10)
	assert.Empty(t, items)
}

func TestWriteEventRejectsInvalidBeforeDurability(t *testing.T) {
	cmd, events, mirror, _, _ := newCommandFixture()

	bad := depositEvent()
	bad.UnitsDelta.Valid = false
	_, err := cmd.WriteEvent(context.Background(), bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, events.events, "invalid events never reach the log")
	assert.Empty(t, mirror.rows)
}

func TestWriteEventFailsWhenEventLogDown(t *testing.T) {
	cmd, events, mirror, queue, _ := newCommandFixture()
	events.saveErr = errors.New("connection refused")

	_, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.ErrorIs(t, err, domain.ErrEventLogUnavailable)

	assert.Empty(t, mirror.rows, "nothing mirrors without a durable event")
	items, _ := queue.List(context.Background(), 10)
	assert.Empty(t, items)
}

func TestWriteEventMirrorFailureQueuesRetry(t *testing.T) {
	cmd, _, mirror, queue, _ := newCommandFixture()
	mirror.insertErr = errors.New("mirror down")

	id, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.NoError(t, err, "a degraded mirror never fails a write")

	items, _ := queue.List(context.Background(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, domain.OpMirrorInsert, items[0].Operation)
	assert.Equal(t, id, items[0].EventID)
	assert.Equal(t, 0, items[0].RetryCount)
	assert.Contains(t, items[0].LastError, "mirror down")
}

func TestWriteEventInvalidatesForwardSnapshots(t *testing.T) {
	cmd, _, _, _, snapshots := newCommandFixture()
	snap := &domain.Snapshot{UserID: "u1"}
	snapshots.Set("u1", day(1).AddDate(0, 0, -5), snap)
	snapshots.Set("u1", day(1), snap)
	snapshots.Set("u1", day(1).AddDate(0, 0, 5), snap)

	_, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.NoError(t, err)

	_, ok := snapshots.Get("u1", day(1).AddDate(0, 0, -5))
	assert.True(t, ok, "snapshots before the event date stay valid")
	_, ok = snapshots.Get("u1", day(1))
	assert.False(t, ok)
	_, ok = snapshots.Get("u1", day(1).AddDate(0, 0, 5))
	assert.False(t, ok)
}

func TestWriteEventInvalidatesSnapshotAcrossTimezones(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	snapshots := NewSnapshotCache(16, ny)
	cmd := NewLedgerCommand(newFakeEventRepo(), newFakeMirrorRepo(), newFakeQueueRepo(), nil, snapshots, newTestMetrics(), 0)

	dayOne := time.Date(2024, 3, 1, 0, 0, 0, 0, ny)
	snapshots.Set("u1", dayOne, &domain.Snapshot{UserID: "u1", Date: dayOne})

	// 02:00 UTC on Mar 2 lands on Mar 1 in New York.
	event := depositEvent()
	event.OccurredAt = time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	_, err = cmd.WriteEvent(context.Background(), event)
	require.NoError(t, err)

	_, ok := snapshots.Get("u1", dayOne)
	assert.False(t, ok, "snapshot for the event's reference day must be invalidated")
}

func TestWriteEventPublishFailureIsInvisible(t *testing.T) {
	events := newFakeEventRepo()
	mirror := newFakeMirrorRepo()
	queue := newFakeQueueRepo()
	pub := &fakePublisher{err: errors.New("broker down")}
	cmd := NewLedgerCommand(events, mirror, queue, pub, NewSnapshotCache(16, time.UTC), newTestMetrics(), 0)

	_, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.NoError(t, err)
	require.Len(t, mirror.rows, 1, "publish failure does not stop the mirror write")
}

func TestDeleteEventEmitsReversal(t *testing.T) {
	cmd, events, mirror, _, _ := newCommandFixture()
	buy := &domain.Event{
		UserID: "u1", AssetID: "acme", Kind: domain.KindBuy,
		OccurredAt: day(2), UnitsDelta: nd("100"), PriceClose: nd("30"),
	}
	id, err := cmd.WriteEvent(context.Background(), buy)
	require.NoError(t, err)

	require.NoError(t, cmd.DeleteEvent(context.Background(), id))

	stored, err := events.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.Deleted, "deletion is logical in the event log")

	require.Len(t, mirror.rows, 2)
	rev := mirror.rows[1]
	assert.Equal(t, id, rev.ReversalOf)
	assert.True(t, rev.UnitsDelta.Equal(dec("-100")))
	assert.Equal(t, buy.OccurredAt, rev.Timestamp)
}

func TestDeleteEventUnknownID(t *testing.T) {
	cmd, _, _, _, _ := newCommandFixture()
	err := cmd.DeleteEvent(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestDeleteEventMirrorFailureQueuesReversal(t *testing.T) {
	cmd, _, mirror, queue, _ := newCommandFixture()
	id, err := cmd.WriteEvent(context.Background(), depositEvent())
	require.NoError(t, err)

	mirror.insertErr = errors.New("mirror down")
	require.NoError(t, cmd.DeleteEvent(context.Background(), id))

	items, _ := queue.List(context.Background(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, domain.OpMirrorReversal, items[0].Operation)
}

func TestBackfillChunksAndTagsMigration(t *testing.T) {
	events := newFakeEventRepo(
		&domain.Event{ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(1), UnitsDelta: nd("100")},
		&domain.Event{ID: "e2", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(2), UnitsDelta: nd("100")},
		&domain.Event{ID: "e3", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(3), UnitsDelta: nd("100")},
		&domain.Event{ID: "e4", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(4), UnitsDelta: nd("100"), Deleted: true},
	)
	mirror := newFakeMirrorRepo()
	cmd := NewLedgerCommand(events, mirror, newFakeQueueRepo(), nil, NewSnapshotCache(16, time.UTC), newTestMetrics(), 2)

	n, err := cmd.Backfill(context.Background(), "u1", day(1).AddDate(0, 0, -1), day(10), false)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "deleted events are skipped")
	assert.Equal(t, 2, mirror.batches, "chunk size 2 over 3 events")
	for _, row := range mirror.rows {
		assert.Equal(t, domain.ProvenanceMigration, row.Source)
	}
}

func TestBackfillRefusesOverExistingMigrationRows(t *testing.T) {
	events := newFakeEventRepo(
		&domain.Event{ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(1), UnitsDelta: nd("100")},
	)
	mirror := newFakeMirrorRepo()
	mirror.migrated["u1|migration"] = 3
	cmd := NewLedgerCommand(events, mirror, newFakeQueueRepo(), nil, NewSnapshotCache(16, time.UTC), newTestMetrics(), 0)

	_, err := cmd.Backfill(context.Background(), "u1", day(1), day(10), false)
	require.ErrorIs(t, err, domain.ErrBackfillConflict)
	assert.Empty(t, mirror.rows)

	n, err := cmd.Backfill(context.Background(), "u1", day(1).AddDate(0, 0, -1), day(10), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"u1|migration"}, mirror.deletedBy, "replace purges old migration rows first")
}

func TestBackfillAllUsers(t *testing.T) {
	events := newFakeEventRepo(
		&domain.Event{ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(1), UnitsDelta: nd("100")},
		&domain.Event{ID: "e2", UserID: "u2", AssetID: "usd", Kind: domain.KindDeposit, OccurredAt: day(2), UnitsDelta: nd("200")},
	)
	mirror := newFakeMirrorRepo()
	cmd := NewLedgerCommand(events, mirror, newFakeQueueRepo(), nil, NewSnapshotCache(16, time.UTC), newTestMetrics(), 0)

	n, err := cmd.Backfill(context.Background(), "", day(1).AddDate(0, 0, -1), day(10), false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
