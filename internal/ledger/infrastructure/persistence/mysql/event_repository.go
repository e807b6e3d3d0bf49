// Package mysql implements the system-of-record repositories on GORM.
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) domain.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Save(ctx context.Context, event *domain.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at ASC, created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) ListActive(ctx context.Context, userID string, from, to time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ? AND occurred_at >= ? AND occurred_at < ?", userID, false, from, to).
		Order("occurred_at ASC, created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) MarkDeleted(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ? AND deleted = ?", id, false).
		Update("deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *eventRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
