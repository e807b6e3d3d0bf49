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

func newSweeperFixture(maxAttempts int) (*RetrySweeper, *fakeEventRepo, *fakeMirrorRepo, *fakeQueueRepo) {
	events := newFakeEventRepo()
	mirror := newFakeMirrorRepo()
	queue := newFakeQueueRepo()
	s := NewRetrySweeper(events, mirror, queue, newTestMetrics(), time.Minute, maxAttempts, 10)
	return s, events, mirror, queue
}

func queuedInsert(t *testing.T, queue *fakeQueueRepo, eventID string) *domain.SyncQueueItem {
	t.Helper()
	item := &domain.SyncQueueItem{Operation: domain.OpMirrorInsert, EventID: eventID, LastError: "initial failure"}
	require.NoError(t, queue.Enqueue(context.Background(), item))
	return item
}

func TestSweepRetriesAndDeletesOnSuccess(t *testing.T) {
	s, events, mirror, queue := newSweeperFixture(3)
	require.NoError(t, events.Save(context.Background(), &domain.Event{
		ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit,
		OccurredAt: time.Now(), UnitsDelta: nd("100"),
	}))
	queuedInsert(t, queue, "e1")

	require.NoError(t, s.Sweep(context.Background()))

	require.Len(t, mirror.rows, 1)
	assert.Equal(t, domain.ProvenanceRetry, mirror.rows[0].Source, "retries re-read the canonical event and tag provenance")
	items, _ := queue.List(context.Background(), 10)
	assert.Empty(t, items, "completed items leave the queue")
}

func TestSweepReplaysReversalForDeletedEvents(t *testing.T) {
	s, events, mirror, queue := newSweeperFixture(3)
	require.NoError(t, events.Save(context.Background(), &domain.Event{
		ID: "e1", UserID: "u1", AssetID: "acme", Kind: domain.KindBuy,
		OccurredAt: time.Now(), UnitsDelta: nd("100"), PriceClose: nd("30"),
	}))
	item := &domain.SyncQueueItem{Operation: domain.OpMirrorReversal, EventID: "e1"}
	require.NoError(t, queue.Enqueue(context.Background(), item))

	require.NoError(t, s.Sweep(context.Background()))

	require.Len(t, mirror.rows, 1)
	assert.Equal(t, "e1", mirror.rows[0].ReversalOf)
	assert.True(t, mirror.rows[0].UnitsDelta.Equal(dec("-100")))
}

func TestSweepFailureIncrementsUpToMax(t *testing.T) {
	s, events, mirror, queue := newSweeperFixture(3)
	require.NoError(t, events.Save(context.Background(), &domain.Event{
		ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit,
		OccurredAt: time.Now(), UnitsDelta: nd("100"),
	}))
	queuedInsert(t, queue, "e1")
	mirror.insertErr = errors.New("still down")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Sweep(context.Background()))
	}

	items, _ := queue.List(context.Background(), 10)
	require.Len(t, items, 1, "exhausted items are never silently dropped")
	assert.Equal(t, 3, items[0].RetryCount, "retry count never exceeds max attempts")
	assert.Contains(t, items[0].LastError, "still down")

	retryable, _ := queue.ListRetryable(context.Background(), 3, 10)
	assert.Empty(t, retryable, "exhausted items leave the sweep's working set")
}

func TestSweepExhaustedItemRecoversAfterMirrorHeals(t *testing.T) {
	s, events, mirror, queue := newSweeperFixture(3)
	require.NoError(t, events.Save(context.Background(), &domain.Event{
		ID: "e1", UserID: "u1", AssetID: "usd", Kind: domain.KindDeposit,
		OccurredAt: time.Now(), UnitsDelta: nd("100"),
	}))
	queuedInsert(t, queue, "e1")
	mirror.insertErr = errors.New("down")
	require.NoError(t, s.Sweep(context.Background()))

	mirror.insertErr = nil
	require.NoError(t, s.Sweep(context.Background()))

	items, _ := queue.List(context.Background(), 10)
	assert.Empty(t, items)
	assert.Len(t, mirror.rows, 1)
}

func TestSweepDropsItemsForVanishedEvents(t *testing.T) {
	s, _, mirror, queue := newSweeperFixture(3)
	queuedInsert(t, queue, "ghost")

	require.NoError(t, s.Sweep(context.Background()))

	items, _ := queue.List(context.Background(), 10)
	assert.Empty(t, items)
	assert.Empty(t, mirror.rows)
}
