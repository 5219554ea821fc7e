package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lastline-erp/lastline-backend/pkg/db/types"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

// CostLine is one row of a project's cost sheet. The consumption figure lives
// somewhere inside Attributes and is resolved by the consumption package.
type CostLine struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProjectID     uuid.UUID          `gorm:"column:project_id;type:uuid;not null"`
	Category      enums.CostCategory `gorm:"column:category;not null"`
	Position      int                `gorm:"column:position;not null;default:0"`
	ItemID        string             `gorm:"column:item_id;not null"`
	ItemName      string             `gorm:"column:item_name;not null;default:''"`
	Specification string             `gorm:"column:specification;not null;default:''"`
	Department    *string            `gorm:"column:department"`
	Attributes    dbtypes.RawJSON    `gorm:"column:attributes;type:jsonb;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}
