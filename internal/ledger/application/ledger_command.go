package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
)

// LedgerCommand handles the write path: durable event-log writes, best-effort
// mirror synchronisation, and the retry queue that absorbs mirror failures.
// A degraded mirror never degrades a user write.
type LedgerCommand struct {
	events    domain.EventRepository
	mirror    domain.MirrorRepository
	queue     domain.SyncQueueRepository
	publisher domain.EventPublisher
	snapshots *SnapshotCache
	metrics   *metrics.Metrics
	chunkSize int
}

// NewLedgerCommand builds the command service. publisher may be nil.
func NewLedgerCommand(
	events domain.EventRepository,
	mirror domain.MirrorRepository,
	queue domain.SyncQueueRepository,
	publisher domain.EventPublisher,
	snapshots *SnapshotCache,
	m *metrics.Metrics,
	chunkSize int,
) *LedgerCommand {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &LedgerCommand{
		events:    events,
		mirror:    mirror,
		queue:     queue,
		publisher: publisher,
		snapshots: snapshots,
		metrics:   m,
		chunkSize: chunkSize,
	}
}

// WriteEvent validates and durably records one event, then mirrors it. The
// event-log write is the durability point: failure there fails the call.
// A mirror failure is converted into a queued retry and stays invisible to
// the caller.
func (c *LedgerCommand) WriteEvent(ctx context.Context, event *domain.Event) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = domain.ProvenanceManual
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	if err := c.events.Save(ctx, event); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEventLogUnavailable, err)
	}

	// The new event changes every snapshot at or after its date.
	c.snapshots.InvalidateFrom(event.UserID, event.OccurredAt)

	if c.publisher != nil {
		if err := c.publisher.PublishEventRecorded(ctx, event); err != nil {
			logger.Warn(ctx, "event feed publish failed", "event_id", event.ID, "error", err)
		}
	}

	c.mirrorOrEnqueue(ctx, event)
	return event.ID, nil
}

// DeleteEvent flips the soft-delete flag and emits a compensating reversal
// row to the mirror, which cannot delete rows in place.
func (c *LedgerCommand) DeleteEvent(ctx context.Context, id string) error {
	event, err := c.events.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := c.events.MarkDeleted(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEventLogUnavailable, err)
	}

	c.snapshots.InvalidateFrom(event.UserID, event.OccurredAt)

	if err := c.mirror.InsertRow(ctx, domain.NewReversalRow(event)); err != nil {
		c.enqueue(ctx, domain.OpMirrorReversal, event.ID, err)
		return nil
	}
	c.metrics.MirrorWritesTotal.Inc()
	return nil
}

// Backfill re-inserts all non-deleted events into the mirror in chunks tagged
// with migration provenance, for disaster recovery. Because mirror reads
// aggregate by summation, re-running a backfill over existing migration rows
// would double-count; without replace the call refuses, with replace the
// previous migration rows are removed first.
func (c *LedgerCommand) Backfill(ctx context.Context, userID string, from, to time.Time, replace bool) (int, error) {
	userIDs := []string{userID}
	if userID == "" {
		all, err := c.events.ListUserIDs(ctx)
		if err != nil {
			return 0, err
		}
		userIDs = all
	}

	total := 0
	for _, uid := range userIDs {
		n, err := c.backfillUser(ctx, uid, from, to, replace)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *LedgerCommand) backfillUser(ctx context.Context, userID string, from, to time.Time, replace bool) (int, error) {
	existing, err := c.mirror.CountBySource(ctx, userID, domain.ProvenanceMigration)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMirrorUnavailable, err)
	}
	if existing > 0 {
		if !replace {
			return 0, fmt.Errorf("%w: user %s has %d migration rows", domain.ErrBackfillConflict, userID, existing)
		}
		if err := c.mirror.DeleteBySource(ctx, userID, domain.ProvenanceMigration); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrMirrorUnavailable, err)
		}
		logger.Info(ctx, "replaced migration rows before backfill", "user_id", userID, "rows", existing)
	}

	events, err := c.events.ListActive(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for start := 0; start < len(events); start += c.chunkSize {
		end := min(start+c.chunkSize, len(events))
		rows := make([]*domain.MirrorRow, 0, end-start)
		for _, e := range events[start:end] {
			rows = append(rows, domain.NewMirrorRow(e, domain.ProvenanceMigration))
		}
		if err := c.mirror.InsertRows(ctx, rows); err != nil {
			return inserted, fmt.Errorf("%w: chunk at %d: %v", domain.ErrMirrorUnavailable, start, err)
		}
		inserted += len(rows)
	}

	logger.Info(ctx, "backfill complete", "user_id", userID, "rows", inserted)
	return inserted, nil
}

func (c *LedgerCommand) mirrorOrEnqueue(ctx context.Context, event *domain.Event) {
	row := domain.NewMirrorRow(event, event.Source)
	if err := c.mirror.InsertRow(ctx, row); err != nil {
		c.enqueue(ctx, domain.OpMirrorInsert, event.ID, err)
		return
	}
	c.metrics.MirrorWritesTotal.Inc()
}

func (c *LedgerCommand) enqueue(ctx context.Context, op domain.SyncOperation, eventID string, cause error) {
	item := &domain.SyncQueueItem{
		Operation: op,
		EventID:   eventID,
		LastError: cause.Error(),
	}
	if err := c.queue.Enqueue(ctx, item); err != nil {
		// Both stores down at once: the event is durable, the mirror will be
		// healed by the next full resync, but this gap deserves a loud log.
		logger.Error(ctx, "failed to enqueue mirror retry", "event_id", eventID, "op", op, "error", err)
		return
	}
	c.metrics.MirrorWriteFailures.Inc()
	logger.Warn(ctx, "mirror write queued for retry", "event_id", eventID, "op", op, "error", cause)
}
