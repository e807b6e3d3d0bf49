// Package messaging feeds accepted ledger events to downstream consumers.
package messaging

import (
	"context"
	"time"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/mq"
)

const topicEventRecorded = "ledger.event.recorded"

// eventRecordedMessage is the wire shape of the downstream feed. Deltas and
// prices travel as strings to keep decimal precision.
type eventRecordedMessage struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	AssetID    string    `json:"asset_id"`
	Kind       string    `json:"kind"`
	UnitsDelta string    `json:"units_delta,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

type kafkaEventPublisher struct {
	producer *mq.KafkaProducer
}

func NewKafkaEventPublisher(producer *mq.KafkaProducer) domain.EventPublisher {
	return &kafkaEventPublisher{producer: producer}
}

// PublishEventRecorded keys by user id so one user's events stay ordered
// within a partition.
func (p *kafkaEventPublisher) PublishEventRecorded(ctx context.Context, event *domain.Event) error {
	msg := eventRecordedMessage{
		EventID:    event.ID,
		UserID:     event.UserID,
		AssetID:    event.AssetID,
		Kind:       string(event.Kind),
		OccurredAt: event.OccurredAt,
		Source:     string(event.Source),
		RecordedAt: time.Now(),
	}
	if event.UnitsDelta.Valid {
		msg.UnitsDelta = event.UnitsDelta.Decimal.String()
	}
	return p.producer.SendMessage(ctx, topicEventRecorded, event.UserID, msg)
}
