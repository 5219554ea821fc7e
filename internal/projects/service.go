package projects

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	dbtypes "github.com/lastline-erp/lastline-backend/pkg/db/types"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/outbox/payloads"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type capacityLedger interface {
	Summary(ctx context.Context, projectID uuid.UUID, excludingCardID *uuid.UUID) (allocation.Summary, error)
}

type costSheetResolver interface {
	Resolve(ctx context.Context, projectID uuid.UUID, category enums.CostCategory) ([]consumption.CostLine, error)
	ResolveAll(ctx context.Context, projectID uuid.UUID) (consumption.Sheet, error)
}

// Service exposes project reads, the PO order-quantity path and cost-sheet import.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*Overview, error)
	Capacity(ctx context.Context, id uuid.UUID, excludingCardID *uuid.UUID) (*Capacity, error)
	UpdateOrderQuantity(ctx context.Context, id uuid.UUID, orderQuantity decimal.Decimal, operator string) (*OrderQuantityOutcome, error)
	CostLines(ctx context.Context, id uuid.UUID, category enums.CostCategory) ([]consumption.CostLine, error)
	CostSheet(ctx context.Context, id uuid.UUID) (consumption.Sheet, error)
	ImportCostLines(ctx context.Context, id uuid.UUID, category enums.CostCategory, rows []CostLineInput) ([]consumption.CostLine, error)
}

// OrderQuantityOutcome reports an order quantity update.
type OrderQuantityOutcome struct {
	Project Overview
	Changed bool
	Notice  *types.Notice
}

// ServiceParams wires the project service.
type ServiceParams struct {
	Repo      Repository
	CostLines *consumption.Repository
	Resolver  costSheetResolver
	Ledger    capacityLedger
	Tx        txRunner
	Outbox    outboxPublisher
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	costLines *consumption.Repository
	resolver  costSheetResolver
	ledger    capacityLedger
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
}

// NewService builds the project service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if params.CostLines == nil {
		return nil, fmt.Errorf("cost line repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("cost sheet resolver required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("allocation ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      params.Repo,
		costLines: params.CostLines,
		resolver:  params.Resolver,
		ledger:    params.Ledger,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Overview, error) {
	project, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := s.ledger.Summary(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	overview := toOverview(*project, summary)
	return &overview, nil
}

func (s *service) Capacity(ctx context.Context, id uuid.UUID, excludingCardID *uuid.UUID) (*Capacity, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	summary, err := s.ledger.Summary(ctx, id, excludingCardID)
	if err != nil {
		return nil, err
	}
	return &Capacity{ProjectID: id, ExcludingCardID: excludingCardID, Summary: summary}, nil
}

// UpdateOrderQuantity is the PO-approval path. It refuses a quantity below
// what the project's live cards already hold.
func (s *service) UpdateOrderQuantity(ctx context.Context, id uuid.UUID, orderQuantity decimal.Decimal, operator string) (*OrderQuantityOutcome, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	orderQuantity = quantity.Normalize(orderQuantity)
	if orderQuantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order quantity must not be negative")
	}

	var outcome *OrderQuantityOutcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		project, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return mapProjectError(err)
		}
		cards, err := repo.ListCards(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production cards")
		}
		allocated := allocation.Allocated(allocation.CardsFromModels(cards), nil)
		if quantity.Exceeds(allocated, orderQuantity) {
			return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "order quantity is below the quantity already allocated to cards").
				WithDetails(map[string]any{
					"allocated": allocated.String(),
					"requested": orderQuantity.String(),
				})
		}

		previous := project.OrderQuantityOrZero()
		if project.OrderQuantity.Valid && quantity.Equal(previous, orderQuantity) {
			outcome = &OrderQuantityOutcome{
				Project: toOverview(*project, allocation.Summarize(previous, allocation.CardsFromModels(cards), nil)),
				Notice:  types.InfoNotice("no changes to save"),
			}
			return nil
		}

		if err := repo.UpdateOrderQuantity(ctx, id, orderQuantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order quantity")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderQuantityUpdated,
			AggregateType: enums.AggregateProject,
			AggregateID:   id,
			Version:       1,
			Actor:         actorRef(operator),
			Data: payloads.OrderQuantityUpdatedEvent{
				ProjectID:        id,
				OrderQuantity:    orderQuantity,
				PreviousQuantity: previous,
				AllocatedTotal:   allocated,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order quantity event")
		}

		project.OrderQuantity = decimal.NewNullDecimal(orderQuantity)
		outcome = &OrderQuantityOutcome{
			Project: toOverview(*project, allocation.Summarize(orderQuantity, allocation.CardsFromModels(cards), nil)),
			Changed: true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Changed && s.logg != nil {
		logCtx := s.logg.WithProjectID(ctx, id.String())
		s.logg.Info(logCtx, fmt.Sprintf("order quantity set to %s", orderQuantity.String()))
	}
	return outcome, nil
}

func (s *service) CostLines(ctx context.Context, id uuid.UUID, category enums.CostCategory) ([]consumption.CostLine, error) {
	return s.resolver.Resolve(ctx, id, category)
}

func (s *service) CostSheet(ctx context.Context, id uuid.UUID) (consumption.Sheet, error) {
	return s.resolver.ResolveAll(ctx, id)
}

// ImportCostLines replaces one category of the project's cost sheet with
// the supplied raw rows and returns the rows as the resolver sees them.
// Existing requisitions pick the new sheet up on their card's next save.
func (s *service) ImportCostLines(ctx context.Context, id uuid.UUID, category enums.CostCategory, rows []CostLineInput) ([]consumption.CostLine, error) {
	if !category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown cost category").
			WithDetails(map[string]any{"category": category})
	}
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	lines, err := costLineModels(id, category, rows)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.costLines.WithTx(tx).ReplaceCategory(ctx, id, category, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import cost lines")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, id, category)
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapProjectError(err)
	}
	return project, nil
}

func costLineModels(projectID uuid.UUID, category enums.CostCategory, rows []CostLineInput) ([]models.CostLine, error) {
	out := make([]models.CostLine, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		itemID := strings.TrimSpace(row.ItemID)
		if itemID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required").
				WithDetails(map[string]any{"row": i})
		}
		if _, dup := seen[itemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate item id in cost sheet").
				WithDetails(map[string]any{"row": i, "item_id": itemID})
		}
		seen[itemID] = struct{}{}

		attrs := bytes.TrimSpace(row.Attributes)
		if len(attrs) == 0 {
			attrs = []byte("{}")
		}
		if !json.Valid(attrs) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "attributes must be a JSON document").
				WithDetails(map[string]any{"row": i, "item_id": itemID})
		}
		position := row.Position
		if position == 0 {
			position = i
		}
		out = append(out, models.CostLine{
			ID:            uuid.New(),
			ProjectID:     projectID,
			Category:      category,
			Position:      position,
			ItemID:        itemID,
			ItemName:      strings.TrimSpace(row.ItemName),
			Specification: strings.TrimSpace(row.Specification),
			Department:    row.Department,
			Attributes:    dbtypes.RawJSON(attrs),
		})
	}
	return out, nil
}

func toOverview(project models.Project, summary allocation.Summary) Overview {
	return Overview{
		ID:            project.ID,
		Code:          project.Code,
		Name:          project.Name,
		OrderQuantity: project.OrderQuantity,
		Allocated:     summary.Allocated,
		Remaining:     summary.Remaining,
		UpdatedAt:     project.UpdatedAt,
	}
}

func mapProjectError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
}

func actorRef(operator string) *outbox.ActorRef {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil
	}
	return &outbox.ActorRef{Operator: operator}
}
