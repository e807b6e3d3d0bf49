package application

import (
	"context"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

// LedgerService bundles the write side, the read side, and the supporting
// engines behind one entry point for the transport layer.
type LedgerService struct {
	Commands *LedgerCommand
	Queries  *LedgerQuery
	Prices   *PriceService
	Assets   *AssetService

	queue domain.SyncQueueRepository
}

func NewLedgerService(
	commands *LedgerCommand,
	queries *LedgerQuery,
	prices *PriceService,
	assets *AssetService,
	queue domain.SyncQueueRepository,
) *LedgerService {
	return &LedgerService{
		Commands: commands,
		Queries:  queries,
		Prices:   prices,
		Assets:   assets,
		queue:    queue,
	}
}

// SyncQueueStatus lists pending mirror retries for the operator endpoint.
func (s *LedgerService) SyncQueueStatus(ctx context.Context, limit int) ([]*domain.SyncQueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queue.List(ctx, limit)
}
