package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
)

type projectReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

type cardLister interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error)
}

// Ledger answers capacity questions for a project from its current cards.
// Nothing is cached; every call recomputes from persistence.
type Ledger struct {
	projects projectReader
	cards    cardLister
}

// NewLedger builds a ledger over the project and card repositories.
func NewLedger(projects projectReader, cards cardLister) (*Ledger, error) {
	if projects == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if cards == nil {
		return nil, fmt.Errorf("card repository required")
	}
	return &Ledger{projects: projects, cards: cards}, nil
}

// RemainingCapacity returns how much of the project's order quantity is
// still allocatable, ignoring excludingCardID when set.
func (l *Ledger) RemainingCapacity(ctx context.Context, projectID uuid.UUID, excludingCardID *uuid.UUID) (decimal.Decimal, error) {
	summary, err := l.Summary(ctx, projectID, excludingCardID)
	if err != nil {
		return decimal.Zero, err
	}
	return summary.Remaining, nil
}

// Summary reports order, allocated and remaining quantities for a project.
func (l *Ledger) Summary(ctx context.Context, projectID uuid.UUID, excludingCardID *uuid.UUID) (Summary, error) {
	if projectID == uuid.Nil {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	project, err := l.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Summary{}, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	rows, err := l.cards.ListByProject(ctx, projectID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production cards")
	}
	return Summarize(project.OrderQuantityOrZero(), CardsFromModels(rows), excludingCardID), nil
}

// Preview runs Check against the current remaining capacity.
func (l *Ledger) Preview(ctx context.Context, projectID uuid.UUID, excludingCardID *uuid.UUID, requested decimal.Decimal) (Decision, error) {
	capacity, err := l.RemainingCapacity(ctx, projectID, excludingCardID)
	if err != nil {
		return Decision{}, err
	}
	return Check(requested, capacity)
}

// CardsFromModels projects persisted cards onto ledger entries.
func CardsFromModels(rows []models.ProductionCard) []Card {
	out := make([]Card, 0, len(rows))
	for _, row := range rows {
		out = append(out, Card{ID: row.ID, Allocation: row.AllocationQuantity})
	}
	return out
}
