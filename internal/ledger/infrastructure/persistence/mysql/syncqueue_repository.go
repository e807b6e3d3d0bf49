package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type syncQueueRepository struct {
	db *gorm.DB
}

func NewSyncQueueRepository(db *gorm.DB) domain.SyncQueueRepository {
	return &syncQueueRepository{db: db}
}

func (r *syncQueueRepository) Enqueue(ctx context.Context, item *domain.SyncQueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *syncQueueRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.SyncQueueItem, error) {
	var items []*domain.SyncQueueItem
	err := r.db.WithContext(ctx).
		Where("retry_count < ?", maxAttempts).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *syncQueueRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.SyncQueueItem{}, id).Error
}

// MarkFailed bumps the retry count only when it still matches the value the
// sweep read, so concurrent sweeps cannot double-count an attempt.
func (r *syncQueueRepository) MarkFailed(ctx context.Context, item *domain.SyncQueueItem, lastError string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&domain.SyncQueueItem{}).
		Where("id = ? AND retry_count = ?", item.ID, item.RetryCount).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    lastError,
			"last_retry_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	item.RetryCount++
	item.LastError = lastError
	item.LastRetryAt = &now
	return true, nil
}

func (r *syncQueueRepository) CountRetryable(ctx context.Context, maxAttempts int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SyncQueueItem{}).
		Where("retry_count < ?", maxAttempts).
		Count(&count).Error
	return count, err
}

func (r *syncQueueRepository) List(ctx context.Context, limit int) ([]*domain.SyncQueueItem, error) {
	var items []*domain.SyncQueueItem
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
