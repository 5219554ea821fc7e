package productioncards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/internal/locks"
	"github.com/lastline-erp/lastline-backend/internal/projects"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
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

type entityLocker interface {
	Acquire(ctx context.Context, kind string, id uuid.UUID) (func(), error)
}

type sheetResolver interface {
	ResolveAll(ctx context.Context, projectID uuid.UUID) (consumption.Sheet, error)
}

type capacityPreviewer interface {
	Preview(ctx context.Context, projectID uuid.UUID, excludingCardID *uuid.UUID, requested decimal.Decimal) (allocation.Decision, error)
}

// requisitionSync is the part of the requisition service that runs inside a
// card transaction.
type requisitionSync interface {
	SyncForCard(ctx context.Context, tx *gorm.DB, card models.ProductionCard, sheet []consumption.CostLine, operator string) (*requisitions.Requisition, error)
	LoadForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID) (*requisitions.Requisition, error)
	CancelForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, operator string) error
}

// Service saves and removes production cards while holding the project's
// allocation invariant.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*Card, error)
	List(ctx context.Context, projectID uuid.UUID) (*CardList, error)
	Save(ctx context.Context, input SaveInput) (*SaveOutcome, error)
	Delete(ctx context.Context, id uuid.UUID, operator string) error
	Projection(ctx context.Context, cardID uuid.UUID, alloc requirements.Allocation) (*Projection, error)
}

// ServiceParams wires the production card service.
type ServiceParams struct {
	Repo         Repository
	Projects     projects.Repository
	Requisitions requisitionSync
	Sheets       sheetResolver
	Ledger       capacityPreviewer
	Tx           txRunner
	Outbox       outboxPublisher
	Locker       entityLocker
	Metrics      *metrics.ProductionMetrics
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	projects     projects.Repository
	requisitions requisitionSync
	sheets       sheetResolver
	ledger       capacityPreviewer
	tx           txRunner
	outbox       outboxPublisher
	locker       entityLocker
	metrics      *metrics.ProductionMetrics
	logg         *logger.Logger
}

// NewService builds the production card service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("card repository required")
	}
	if params.Projects == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if params.Requisitions == nil {
		return nil, fmt.Errorf("requisition service required")
	}
	if params.Sheets == nil {
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
	if params.Locker == nil {
		return nil, fmt.Errorf("entity locker required")
	}
	return &service{
		repo:         params.Repo,
		projects:     params.Projects,
		requisitions: params.Requisitions,
		sheets:       params.Sheets,
		ledger:       params.Ledger,
		tx:           params.Tx,
		outbox:       params.Outbox,
		locker:       params.Locker,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Card, error) {
	card, err := s.find(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	out := FromModel(*card)
	return &out, nil
}

func (s *service) List(ctx context.Context, projectID uuid.UUID) (*CardList, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, mapProjectError(err)
	}
	rows, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list production cards")
	}
	cards := make([]Card, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, FromModel(row))
	}
	return &CardList{
		Cards:   cards,
		Summary: allocation.Summarize(project.OrderQuantityOrZero(), allocation.CardsFromModels(rows), nil),
	}, nil
}

// Save creates or updates a card. The capacity check runs under the
// project's row lock against the persisted cards, so two cards saved at once
// can never together exceed the order quantity. Over-capacity saves are
// refused, not clamped.
func (s *service) Save(ctx context.Context, input SaveInput) (*SaveOutcome, error) {
	if err := validateSave(input); err != nil {
		return nil, err
	}

	var existing *models.ProductionCard
	cardID := uuid.New()
	if input.ID != nil {
		cardID = *input.ID
		release, err := s.locker.Acquire(ctx, locks.KindCard, cardID)
		if err != nil {
			return nil, err
		}
		defer release()
		existing, err = s.find(ctx, s.repo, cardID)
		if err != nil {
			return nil, err
		}
		if input.ProjectID != uuid.Nil && input.ProjectID != existing.ProjectID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a card cannot move to another project")
		}
		input.ProjectID = existing.ProjectID
	}
	start := time.Now()

	sheet, err := s.sheets.ResolveAll(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}

	next := models.ProductionCard{
		ID:                 cardID,
		ProjectID:          input.ProjectID,
		AllocationQuantity: quantity.Normalize(input.AllocationQuantity),
		AssignedPlant:      strings.TrimSpace(input.AssignedPlant),
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
		Remarks:            strings.TrimSpace(input.Remarks),
	}

	var outcome *SaveOutcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		project, err := s.projects.WithTx(tx).FindForUpdate(ctx, input.ProjectID)
		if err != nil {
			return mapProjectError(err)
		}
		rows, err := repo.ListByProject(ctx, input.ProjectID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production cards")
		}
		cards := allocation.CardsFromModels(rows)

		var excluding *uuid.UUID
		if existing != nil {
			excluding = &cardID
		}
		capacity := allocation.Capacity(project.OrderQuantityOrZero(), cards, excluding)
		if err := allocation.Enforce(next.AllocationQuantity, capacity); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded) {
				s.metrics.IncAllocation(metrics.AllocationRejected)
			}
			return err
		}

		if existing != nil && sameCard(*existing, next) {
			req, err := s.requisitions.LoadForCard(ctx, tx, cardID)
			if err != nil {
				return err
			}
			if req != nil {
				outcome = &SaveOutcome{
					Card:        FromModel(*existing),
					Requisition: req,
					Summary:     allocation.Summarize(project.OrderQuantityOrZero(), cards, nil),
					Notice:      types.InfoNotice("no changes to save"),
				}
				return nil
			}
		}

		previous := decimal.Zero
		if existing == nil {
			if err := repo.Create(ctx, &next); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create production card")
			}
		} else {
			previous = existing.AllocationQuantity
			if err := repo.Update(ctx, &next); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update production card")
			}
		}

		req, err := s.requisitions.SyncForCard(ctx, tx, next, sheet.Lines(), input.Operator)
		if err != nil {
			return err
		}
		saved, err := repo.FindByID(ctx, cardID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload production card")
		}

		remaining := quantity.Normalize(capacity.Sub(next.AllocationQuantity))
		event := outbox.DomainEvent{
			EventType:     enums.EventCardAllocated,
			AggregateType: enums.AggregateProductionCard,
			AggregateID:   cardID,
			Version:       1,
			Actor:         actorRef(input.Operator),
			Data: payloads.CardAllocatedEvent{
				CardID:             cardID,
				ProjectID:          input.ProjectID,
				RequisitionID:      req.ID,
				AllocationQuantity: next.AllocationQuantity,
				PreviousQuantity:   previous,
				RemainingCapacity:  remaining,
				AssignedPlant:      next.AssignedPlant,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue card event")
		}

		outcome = &SaveOutcome{
			Card:        FromModel(*saved),
			Requisition: req,
			Summary:     allocation.Summarize(project.OrderQuantityOrZero(), withCard(cards, cardID, next.AllocationQuantity), nil),
			Changed:     true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Changed {
		s.metrics.IncAllocation(metrics.AllocationAccepted)
		if s.logg != nil {
			logCtx := s.logg.WithProjectID(ctx, input.ProjectID.String())
			logCtx = s.logg.WithCardID(logCtx, cardID.String())
			s.logg.Info(logCtx, fmt.Sprintf("card allocation saved: %s", outcome.Card.AllocationQuantity.String()))
		}
	}
	s.metrics.ObserveSubmission("card_save", time.Since(start))
	return outcome, nil
}

// Delete soft-deletes a card and cancels its requisition. Cards whose
// materials have started leaving the store stay.
func (s *service) Delete(ctx context.Context, id uuid.UUID, operator string) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	release, err := s.locker.Acquire(ctx, locks.KindCard, id)
	if err != nil {
		return err
	}
	defer release()

	var card *models.ProductionCard
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		card, err = s.find(ctx, repo, id)
		if err != nil {
			return err
		}
		req, err := s.requisitions.LoadForCard(ctx, tx, id)
		if err != nil {
			return err
		}
		if req != nil && req.IssuedAnything() {
			_, issued := req.Totals()
			return pkgerrors.New(pkgerrors.CodeStateConflict, "materials have been issued against this card").
				WithDetails(map[string]any{"requisition_id": req.ID, "issued": issued.String()})
		}

		deletedAt, err := repo.Delete(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "production card not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete production card")
		}
		if err := s.requisitions.CancelForCard(ctx, tx, id, operator); err != nil {
			return err
		}

		var requisitionID *uuid.UUID
		if req != nil {
			requisitionID = &req.ID
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventCardDeleted,
			AggregateType: enums.AggregateProductionCard,
			AggregateID:   id,
			Version:       1,
			Actor:         actorRef(operator),
			Data: payloads.CardDeletedEvent{
				CardID:           id,
				ProjectID:        card.ProjectID,
				ReleasedQuantity: quantity.Normalize(card.AllocationQuantity),
				RequisitionID:    requisitionID,
				DeletedAt:        deletedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue card event")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithCardID(ctx, id.String())
		s.logg.Info(logCtx, "card deleted")
	}
	return nil
}

// Projection previews the card's requirements for an unsaved allocation.
// Nothing is written. A set allocation above capacity is previewed at the
// clamped value and carries the clamp warning.
func (s *service) Projection(ctx context.Context, cardID uuid.UUID, alloc requirements.Allocation) (*Projection, error) {
	card, err := s.find(ctx, s.repo, cardID)
	if err != nil {
		return nil, err
	}
	sheet, err := s.sheets.ResolveAll(ctx, card.ProjectID)
	if err != nil {
		return nil, err
	}

	out := &Projection{CardID: cardID, Allocation: alloc.String()}
	if value, ok := alloc.Value(); ok {
		decision, err := s.ledger.Preview(ctx, card.ProjectID, &cardID, value)
		if err != nil {
			return nil, err
		}
		out.Decision = &decision
		if decision.Clamped {
			alloc = requirements.AllocationOf(decision.Accepted)
			out.Allocation = alloc.String()
			out.Notice = types.WarningNotice(decision.Warning)
		}
	}
	out.Categories = requirements.ByCategory(requirements.Project(alloc, sheet.Lines()))
	return out, nil
}

func (s *service) find(ctx context.Context, repo Repository, id uuid.UUID) (*models.ProductionCard, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	card, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production card")
	}
	return card, nil
}

func validateSave(input SaveInput) error {
	if input.ID == nil && input.ProjectID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	if input.ID != nil && *input.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id is invalid")
	}
	if quantity.Normalize(input.AllocationQuantity).IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "allocation quantity must not be negative")
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must not be before start date")
	}
	return nil
}

func withCard(cards []allocation.Card, id uuid.UUID, qty decimal.Decimal) []allocation.Card {
	out := make([]allocation.Card, 0, len(cards)+1)
	for _, card := range cards {
		if card.ID != id {
			out = append(out, card)
		}
	}
	return append(out, allocation.Card{ID: id, Allocation: qty})
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
