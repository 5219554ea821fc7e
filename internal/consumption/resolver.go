package consumption

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
)

type costLineRepository interface {
	ListByCategory(ctx context.Context, projectID uuid.UUID, category enums.CostCategory) ([]models.CostLine, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.CostLine, error)
}

// CostLine is a cost-sheet row with its consumption resolved to a number.
type CostLine struct {
	ID                 uuid.UUID          `json:"id"`
	ProjectID          uuid.UUID          `json:"project_id"`
	Category           enums.CostCategory `json:"category"`
	Position           int                `json:"position"`
	ItemID             string             `json:"item_id"`
	ItemName           string             `json:"item_name"`
	Specification      string             `json:"specification"`
	Department         *string            `json:"department"`
	ConsumptionPerUnit decimal.Decimal    `json:"consumption_per_unit"`
}

// Sheet groups cost lines by category. Every category is present, possibly empty.
type Sheet map[enums.CostCategory][]CostLine

// Lines flattens the sheet in category order.
func (s Sheet) Lines() []CostLine {
	out := make([]CostLine, 0)
	for _, category := range enums.CostCategories {
		out = append(out, s[category]...)
	}
	return out
}

// Resolver reads a project's cost sheet and exposes per-item consumption.
type Resolver struct {
	repo costLineRepository
}

// NewResolver builds a resolver on top of the cost line repository.
func NewResolver(repo costLineRepository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("cost line repository required")
	}
	return &Resolver{repo: repo}, nil
}

// Resolve returns the cost lines of one category. Unknown categories and
// projects without a sheet resolve to an empty slice.
func (r *Resolver) Resolve(ctx context.Context, projectID uuid.UUID, category enums.CostCategory) ([]CostLine, error) {
	if !category.IsValid() || projectID == uuid.Nil {
		return []CostLine{}, nil
	}
	rows, err := r.repo.ListByCategory(ctx, projectID, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cost lines")
	}
	return FromModels(rows), nil
}

// ResolveAll returns the whole sheet keyed by category.
func (r *Resolver) ResolveAll(ctx context.Context, projectID uuid.UUID) (Sheet, error) {
	sheet := emptySheet()
	if projectID == uuid.Nil {
		return sheet, nil
	}
	rows, err := r.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cost sheet")
	}
	for _, line := range FromModels(rows) {
		if !line.Category.IsValid() {
			continue
		}
		sheet[line.Category] = append(sheet[line.Category], line)
	}
	return sheet, nil
}

// FromModels converts persisted cost rows. Malformed attributes degrade to
// zero consumption and blank text, never an error.
func FromModels(rows []models.CostLine) []CostLine {
	out := make([]CostLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out
}

func fromModel(row models.CostLine) CostLine {
	attrs := row.Attributes.Object()
	line := CostLine{
		ID:                 row.ID,
		ProjectID:          row.ProjectID,
		Category:           row.Category,
		Position:           row.Position,
		ItemID:             strings.TrimSpace(row.ItemID),
		ItemName:           strings.TrimSpace(row.ItemName),
		Specification:      strings.TrimSpace(row.Specification),
		Department:         row.Department,
		ConsumptionPerUnit: ConsumptionOf(attrs),
	}
	if line.ItemName == "" {
		line.ItemName = textOf(attrs, nameFields)
	}
	if line.Specification == "" {
		line.Specification = textOf(attrs, specificationFields)
	}
	if line.Department == nil {
		if dept := textOf(attrs, departmentFields); dept != "" {
			line.Department = &dept
		}
	}
	return line
}

func emptySheet() Sheet {
	sheet := make(Sheet, len(enums.CostCategories))
	for _, category := range enums.CostCategories {
		sheet[category] = []CostLine{}
	}
	return sheet
}
