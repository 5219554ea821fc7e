package requisitions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgpagination "github.com/lastline-erp/lastline-backend/pkg/pagination"
)

// ListParams filters the store operator queue.
type ListParams struct {
	Status *enums.RequisitionStatus
	pkgpagination.Params
}

type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID            uuid.UUID               `json:"id"`
	CardID        uuid.UUID               `json:"card_id"`
	Status        enums.RequisitionStatus `json:"status"`
	StatusLabel   string                  `json:"status_label"`
	Remarks       string                  `json:"remarks"`
	TotalRequired decimal.Decimal         `json:"total_required"`
	TotalIssued   decimal.Decimal         `json:"total_issued"`
	SentToStoreAt *time.Time              `json:"sent_to_store_at"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

type listQuery struct {
	status *enums.RequisitionStatus
	limit  int
	cursor *pkgpagination.Cursor
}

func toListItem(m models.MaterialRequisition, lines []models.MaterialLine) ListItem {
	r := fromModels(m, lines)
	required, issued := r.Totals()
	return ListItem{
		ID:            m.ID,
		CardID:        m.CardID,
		Status:        m.Status,
		StatusLabel:   m.Status.Label(),
		Remarks:       m.Remarks,
		TotalRequired: required,
		TotalIssued:   issued,
		SentToStoreAt: m.SentToStoreAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
