package domain

import "time"

// SyncOperation names the mirror write a queue item must replay.
type SyncOperation string

const (
	// OpMirrorInsert replays a single-row event insert.
	OpMirrorInsert SyncOperation = "mirror_insert"
	// OpMirrorReversal replays the compensating row for a logical delete.
	OpMirrorReversal SyncOperation = "mirror_reversal"
)

// SyncQueueItem is the durable record of a failed mirror write. Created only
// on failure, deleted on successful retry, and left in place for operator
// inspection once RetryCount reaches the configured maximum.
type SyncQueueItem struct {
	ID          uint          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Operation   SyncOperation `gorm:"column:operation;type:varchar(32);not null" json:"operation"`
	EventID     string        `gorm:"column:event_id;type:varchar(36);index;not null" json:"event_id"`
	LastError   string        `gorm:"column:last_error;type:text" json:"last_error"`
	RetryCount  int           `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	CreatedAt   time.Time     `gorm:"column:created_at" json:"created_at"`
	LastRetryAt *time.Time    `gorm:"column:last_retry_at" json:"last_retry_at,omitempty"`
}

func (SyncQueueItem) TableName() string { return "sync_queue_items" }
