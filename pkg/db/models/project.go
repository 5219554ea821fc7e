package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Project is read-only master data except for the PO-approved order quantity.
type Project struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code          string              `gorm:"column:code;not null"`
	Name          string              `gorm:"column:name;not null"`
	OrderQuantity decimal.NullDecimal `gorm:"column:order_quantity;type:numeric(14,4)"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderQuantityOrZero treats an unapproved order quantity as zero.
func (p Project) OrderQuantityOrZero() decimal.Decimal {
	if !p.OrderQuantity.Valid {
		return decimal.Zero
	}
	return p.OrderQuantity.Decimal
}
