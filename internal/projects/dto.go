package projects

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
)

// Overview is a project with its allocation bookkeeping.
type Overview struct {
	ID            uuid.UUID           `json:"id"`
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	OrderQuantity decimal.NullDecimal `json:"order_quantity"`
	Allocated     decimal.Decimal     `json:"allocated"`
	Remaining     decimal.Decimal     `json:"remaining"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Capacity answers the allocation form: what may still be allocated,
// optionally ignoring the card being edited.
type Capacity struct {
	ProjectID       uuid.UUID          `json:"project_id"`
	ExcludingCardID *uuid.UUID         `json:"excluding_card_id,omitempty"`
	Summary         allocation.Summary `json:"summary"`
}

// CostLineInput is one raw cost-sheet row as imported from the costing tool.
type CostLineInput struct {
	ItemID        string          `json:"item_id" validate:"required"`
	ItemName      string          `json:"item_name"`
	Specification string          `json:"specification"`
	Department    *string         `json:"department"`
	Position      int             `json:"position" validate:"gte=0"`
	Attributes    json.RawMessage `json:"attributes"`
}
