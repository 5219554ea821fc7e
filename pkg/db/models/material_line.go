package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

type MaterialLine struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	RequisitionID      uuid.UUID          `gorm:"column:requisition_id;type:uuid;not null"`
	Category           enums.CostCategory `gorm:"column:category;not null"`
	Position           int                `gorm:"column:position;not null;default:0"`
	ItemID             string             `gorm:"column:item_id;not null"`
	Name               string             `gorm:"column:name;not null;default:''"`
	Specification      string             `gorm:"column:specification;not null;default:''"`
	Department         *string            `gorm:"column:department"`
	ConsumptionPerUnit decimal.Decimal    `gorm:"column:consumption_per_unit;type:numeric(14,4);not null"`
	Requirement        decimal.Decimal    `gorm:"column:requirement;type:numeric(14,4);not null"`
	Available          decimal.Decimal    `gorm:"column:available;type:numeric(14,4);not null"`
	Issued             decimal.Decimal    `gorm:"column:issued;type:numeric(14,4);not null"`
	Balance            decimal.Decimal    `gorm:"column:balance;type:numeric(14,4);not null"`
}
