package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductionCard struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProjectID          uuid.UUID       `gorm:"column:project_id;type:uuid;not null"`
	AllocationQuantity decimal.Decimal `gorm:"column:allocation_quantity;type:numeric(14,4);not null"`
	AssignedPlant      string          `gorm:"column:assigned_plant;not null;default:''"`
	StartDate          *time.Time      `gorm:"column:start_date"`
	EndDate            *time.Time      `gorm:"column:end_date"`
	Remarks            string          `gorm:"column:remarks;not null;default:''"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt          gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}
