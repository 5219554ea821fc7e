package requisitions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
)

// Requisition is a card's material requisition with its lines in category order.
type Requisition struct {
	ID            uuid.UUID
	CardID        uuid.UUID
	Status        enums.RequisitionStatus
	Remarks       string
	SentToStoreAt *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []requirements.MaterialLine
}

// Totals sums requirement and issued over every line.
func (r Requisition) Totals() (required, issued decimal.Decimal) {
	return requirements.Totals(r.Lines)
}

// IssuedAnything reports whether any material has left the store.
func (r Requisition) IssuedAnything() bool {
	_, issued := r.Totals()
	return issued.IsPositive()
}

func (r Requisition) clone() Requisition {
	out := r
	out.Lines = make([]requirements.MaterialLine, len(r.Lines))
	copy(out.Lines, r.Lines)
	return out
}

func (r Requisition) header() models.MaterialRequisition {
	return models.MaterialRequisition{
		ID:            r.ID,
		CardID:        r.CardID,
		Status:        r.Status,
		Remarks:       r.Remarks,
		SentToStoreAt: r.SentToStoreAt,
		CancelledAt:   r.CancelledAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromModels(header models.MaterialRequisition, rows []models.MaterialLine) Requisition {
	lines := make([]requirements.MaterialLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, requirements.LineFromModel(row))
	}
	requirements.SortLines(lines)
	return Requisition{
		ID:            header.ID,
		CardID:        header.CardID,
		Status:        header.Status,
		Remarks:       header.Remarks,
		SentToStoreAt: header.SentToStoreAt,
		CancelledAt:   header.CancelledAt,
		CreatedAt:     header.CreatedAt,
		UpdatedAt:     header.UpdatedAt,
		Lines:         lines,
	}
}

// View is the API shape: five category sequences plus totals.
type View struct {
	ID            uuid.UUID                                          `json:"id"`
	CardID        uuid.UUID                                          `json:"card_id"`
	Status        enums.RequisitionStatus                            `json:"status"`
	StatusLabel   string                                             `json:"status_label"`
	Remarks       string                                             `json:"remarks"`
	SentToStoreAt *time.Time                                         `json:"sent_to_store_at"`
	CancelledAt   *time.Time                                         `json:"cancelled_at"`
	TotalRequired decimal.Decimal                                    `json:"total_required"`
	TotalIssued   decimal.Decimal                                    `json:"total_issued"`
	Categories    map[enums.CostCategory][]requirements.MaterialLine `json:"categories"`
	CreatedAt     time.Time                                          `json:"created_at"`
	UpdatedAt     time.Time                                          `json:"updated_at"`
}

// ToView renders the requisition for clients.
func ToView(r Requisition) View {
	required, issued := r.Totals()
	return View{
		ID:            r.ID,
		CardID:        r.CardID,
		Status:        r.Status,
		StatusLabel:   r.Status.Label(),
		Remarks:       r.Remarks,
		SentToStoreAt: r.SentToStoreAt,
		CancelledAt:   r.CancelledAt,
		TotalRequired: required,
		TotalIssued:   issued,
		Categories:    requirements.ByCategory(r.Lines),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
