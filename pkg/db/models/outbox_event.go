package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

// OutboxEvent is appended in the same transaction as the state change it announces.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Parked reports whether the publisher has given up on the row.
func (e OutboxEvent) Parked(terminalAttempts int) bool {
	return e.PublishedAt == nil && terminalAttempts > 0 && e.AttemptCount >= terminalAttempts
}
