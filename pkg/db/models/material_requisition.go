package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

type MaterialRequisition struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	CardID        uuid.UUID               `gorm:"column:card_id;type:uuid;not null;uniqueIndex"`
	Status        enums.RequisitionStatus `gorm:"column:status;not null"`
	Remarks       string                  `gorm:"column:remarks;not null;default:''"`
	SentToStoreAt *time.Time              `gorm:"column:sent_to_store_at"`
	CancelledAt   *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
