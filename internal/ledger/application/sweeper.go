package application

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
)

// RetrySweeper periodically replays failed mirror writes from the sync
// queue. It runs on its own goroutine and timer, never sharing a request
// thread. Each retry re-reads the canonical event from the event log rather
// than replaying the originally failed payload, so concurrent edits are
// picked up.
type RetrySweeper struct {
	events      domain.EventRepository
	mirror      domain.MirrorRepository
	queue       domain.SyncQueueRepository
	metrics     *metrics.Metrics
	interval    time.Duration
	maxAttempts int
	batch       int
}

// NewRetrySweeper builds a sweeper.
func NewRetrySweeper(
	events domain.EventRepository,
	mirror domain.MirrorRepository,
	queue domain.SyncQueueRepository,
	m *metrics.Metrics,
	interval time.Duration,
	maxAttempts, batch int,
) *RetrySweeper {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if batch <= 0 {
		batch = 100
	}
	return &RetrySweeper{
		events:      events,
		mirror:      mirror,
		queue:       queue,
		metrics:     m,
		interval:    interval,
		maxAttempts: maxAttempts,
		batch:       batch,
	}
}

// Run loops until the context is cancelled.
func (s *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info(ctx, "retry sweeper started", "interval", s.interval, "max_attempts", s.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "retry sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Error(ctx, "retry sweep failed", "error", err)
			}
		}
	}
}

// Sweep replays every retryable queue item once. Items at max attempts are
// never touched and never deleted; they stay queryable for operators.
func (s *RetrySweeper) Sweep(ctx context.Context) error {
	items, err := s.queue.ListRetryable(ctx, s.maxAttempts, s.batch)
	if err != nil {
		return err
	}

	for _, item := range items {
		s.retryItem(ctx, item)
	}

	if depth, err := s.queue.CountRetryable(ctx, s.maxAttempts); err == nil {
		s.metrics.SyncQueueDepth.Set(float64(depth))
	}
	return nil
}

func (s *RetrySweeper) retryItem(ctx context.Context, item *domain.SyncQueueItem) {
	s.metrics.SweepRetriesTotal.Inc()

	event, err := s.events.GetByID(ctx, item.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			// The canonical event vanished; nothing remains to mirror.
			logger.Warn(ctx, "queue item references missing event, dropping", "event_id", item.EventID)
			_ = s.queue.Delete(ctx, item.ID)
			return
		}
		s.markFailed(ctx, item, err)
		return
	}

	switch item.Operation {
	case domain.OpMirrorReversal:
		err = s.mirror.InsertRow(ctx, domain.NewReversalRow(event))
	default:
		err = s.mirror.InsertRow(ctx, domain.NewMirrorRow(event, domain.ProvenanceRetry))
	}
	if err != nil {
		s.markFailed(ctx, item, err)
		return
	}

	s.metrics.MirrorWritesTotal.Inc()
	if err := s.queue.Delete(ctx, item.ID); err != nil {
		logger.Error(ctx, "failed to delete completed queue item", "item_id", item.ID, "error", err)
	}
}

func (s *RetrySweeper) markFailed(ctx context.Context, item *domain.SyncQueueItem, cause error) {
	// The conditional update at the store level is the only mutual exclusion
	// the queue needs: concurrent sweep workers racing on one item produce a
	// single increment.
	won, err := s.queue.MarkFailed(ctx, item, cause.Error())
	if err != nil {
		logger.Error(ctx, "failed to record retry failure", "item_id", item.ID, "error", err)
		return
	}
	if !won {
		return
	}
	if item.RetryCount+1 >= s.maxAttempts {
		s.metrics.SweepExhaustedTotal.Inc()
		logger.Error(ctx, "sync queue item exhausted retries, leaving for operator",
			"item_id", item.ID, "event_id", item.EventID, "error", cause)
	}
}
