package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

// CardAllocatedEvent is emitted whenever a card's allocation is created or changed.
type CardAllocatedEvent struct {
	CardID             uuid.UUID       `json:"card_id"`
	ProjectID          uuid.UUID       `json:"project_id"`
	RequisitionID      uuid.UUID       `json:"requisition_id"`
	AllocationQuantity decimal.Decimal `json:"allocation_quantity"`
	PreviousQuantity   decimal.Decimal `json:"previous_quantity"`
	RemainingCapacity  decimal.Decimal `json:"remaining_capacity"`
	AssignedPlant      string          `json:"assigned_plant,omitempty"`
}

// CardDeletedEvent releases the card's allocation back to the project.
type CardDeletedEvent struct {
	CardID           uuid.UUID       `json:"card_id"`
	ProjectID        uuid.UUID       `json:"project_id"`
	ReleasedQuantity decimal.Decimal `json:"released_quantity"`
	RequisitionID    *uuid.UUID      `json:"requisition_id,omitempty"`
	DeletedAt        time.Time       `json:"deleted_at"`
}

// OrderQuantityUpdatedEvent records a PO-approved change to a project's order quantity.
type OrderQuantityUpdatedEvent struct {
	ProjectID        uuid.UUID       `json:"project_id"`
	OrderQuantity    decimal.Decimal `json:"order_quantity"`
	PreviousQuantity decimal.Decimal `json:"previous_quantity"`
	AllocatedTotal   decimal.Decimal `json:"allocated_total"`
}

// RequisitionStatusChangedEvent is the store-facing signal that a requisition moved.
type RequisitionStatusChangedEvent struct {
	RequisitionID uuid.UUID               `json:"requisition_id"`
	CardID        uuid.UUID               `json:"card_id"`
	From          enums.RequisitionStatus `json:"from"`
	To            enums.RequisitionStatus `json:"to"`
	TotalRequired decimal.Decimal         `json:"total_required"`
	TotalIssued   decimal.Decimal         `json:"total_issued"`
}

// IssuedLine is one line touched by an issuance submission.
type IssuedLine struct {
	Category  enums.CostCategory `json:"category"`
	ItemID    string             `json:"item_id"`
	Issued    decimal.Decimal    `json:"issued"`
	Available decimal.Decimal    `json:"available"`
	Balance   decimal.Decimal    `json:"balance"`
	Clamped   bool               `json:"clamped"`
}

// RequisitionIssuanceRecordedEvent lists the lines changed by one issuance submission.
type RequisitionIssuanceRecordedEvent struct {
	RequisitionID uuid.UUID               `json:"requisition_id"`
	CardID        uuid.UUID               `json:"card_id"`
	Status        enums.RequisitionStatus `json:"status"`
	Lines         []IssuedLine            `json:"lines"`
}
