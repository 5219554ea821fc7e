package productioncards

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

// Card is the API shape of a production card.
type Card struct {
	ID                 uuid.UUID       `json:"id"`
	ProjectID          uuid.UUID       `json:"project_id"`
	AllocationQuantity decimal.Decimal `json:"allocation_quantity"`
	AssignedPlant      string          `json:"assigned_plant"`
	StartDate          *time.Time      `json:"start_date"`
	EndDate            *time.Time      `json:"end_date"`
	Remarks            string          `json:"remarks"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// FromModel converts a persisted card.
func FromModel(m models.ProductionCard) Card {
	return Card{
		ID:                 m.ID,
		ProjectID:          m.ProjectID,
		AllocationQuantity: quantity.Normalize(m.AllocationQuantity),
		AssignedPlant:      m.AssignedPlant,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		Remarks:            m.Remarks,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// CardList is a project's live cards plus its allocation summary.
type CardList struct {
	Cards   []Card             `json:"cards"`
	Summary allocation.Summary `json:"summary"`
}

// SaveInput is saveProductionCard. A nil ID creates a card.
type SaveInput struct {
	ID                 *uuid.UUID
	ProjectID          uuid.UUID
	AllocationQuantity decimal.Decimal
	AssignedPlant      string
	StartDate          *time.Time
	EndDate            *time.Time
	Remarks            string
	Operator           string
}

// SaveOutcome is the saved card with its requisition and the project's
// allocation after the save.
type SaveOutcome struct {
	Card        Card                      `json:"card"`
	Requisition *requisitions.Requisition `json:"-"`
	Summary     allocation.Summary        `json:"summary"`
	Changed     bool                      `json:"changed"`
	Notice      *types.Notice             `json:"-"`
}

// Projection is a requirement preview for an allocation that has not been saved.
type Projection struct {
	CardID     uuid.UUID                                         `json:"card_id"`
	Allocation string                                            `json:"allocation"`
	Decision   *allocation.Decision                              `json:"decision,omitempty"`
	Categories map[enums.CostCategory][]requirements.MaterialLine `json:"categories"`
	Notice     *types.Notice                                     `json:"-"`
}

func sameCard(current models.ProductionCard, next models.ProductionCard) bool {
	return quantity.Equal(current.AllocationQuantity, next.AllocationQuantity) &&
		strings.TrimSpace(current.AssignedPlant) == strings.TrimSpace(next.AssignedPlant) &&
		strings.TrimSpace(current.Remarks) == strings.TrimSpace(next.Remarks) &&
		sameDate(current.StartDate, next.StartDate) &&
		sameDate(current.EndDate, next.EndDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
