package requisitions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/internal/issuance"
	"github.com/lastline-erp/lastline-backend/internal/locks"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	pkgdb "github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/outbox/payloads"
	pkgpagination "github.com/lastline-erp/lastline-backend/pkg/pagination"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

const noChangesMessage = "no changes to save"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type entityLocker interface {
	Acquire(ctx context.Context, kind string, id uuid.UUID) (func(), error)
}

type cardReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionCard, error)
}

type sheetResolver interface {
	ResolveAll(ctx context.Context, projectID uuid.UUID) (consumption.Sheet, error)
}

// Service exposes requisition reads, store-side edits and lifecycle actions.
// The *ForCard methods run inside a caller-owned transaction.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*Requisition, error)
	GetByCard(ctx context.Context, cardID uuid.UUID) (*Requisition, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Upsert(ctx context.Context, cardID uuid.UUID, input UpsertInput) (*Outcome, error)
	RecordIssuance(ctx context.Context, id uuid.UUID, input IssuanceInput) (*Outcome, error)
	SendToStore(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error)
	Cancel(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error)
	Reactivate(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error)
	SyncForCard(ctx context.Context, tx *gorm.DB, card models.ProductionCard, sheet []consumption.CostLine, operator string) (*Requisition, error)
	LoadForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID) (*Requisition, error)
	CancelForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, operator string) error
}

// UpsertInput is createOrUpdateRequisition: remarks plus line edits.
type UpsertInput struct {
	Remarks  *string
	Lines    []issuance.Edit
	Operator string
}

// IssuanceInput carries a store operator's line edits.
type IssuanceInput struct {
	Lines    []issuance.Edit
	Operator string
}

// Outcome is the result of a requisition write. Changed is false when the
// request matched the stored state and nothing was written.
type Outcome struct {
	Requisition Requisition
	Changed     bool
	Issuance    *issuance.Batch
	Notice      *types.Notice
}

// ServiceParams wires the requisition service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Locker  entityLocker
	Cards   cardReader
	Sheets  sheetResolver
	Metrics *metrics.ProductionMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	locker  entityLocker
	cards   cardReader
	sheets  sheetResolver
	metrics *metrics.ProductionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// change is what a mutation wants persisted.
type change struct {
	next         Requisition
	changed      bool
	linesChanged bool
	batch        *issuance.Batch
	notice       *types.Notice
}

// NewService builds the requisition service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("requisition repository required")
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
	if params.Cards == nil {
		return nil, fmt.Errorf("card repository required")
	}
	if params.Sheets == nil {
		return nil, fmt.Errorf("cost sheet resolver required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		locker:  params.Locker,
		cards:   params.Cards,
		sheets:  params.Sheets,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Requisition, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requisition id is required")
	}
	header, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return s.load(ctx, s.repo, header)
}

func (s *service) GetByCard(ctx context.Context, cardID uuid.UUID) (*Requisition, error) {
	if cardID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	header, err := s.repo.FindByCardID(ctx, cardID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return s.load(ctx, s.repo, header)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid requisition status")
	}
	query := listQuery{
		status: params.Status,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list requisitions")
	}

	rows, nextCursor := pkgpagination.Trim(rows, params.Limit, func(m models.MaterialRequisition) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	lines, err := s.repo.ListLines(ctx, ids...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition lines")
	}
	byRequisition := make(map[uuid.UUID][]models.MaterialLine, len(rows))
	for _, line := range lines {
		byRequisition[line.RequisitionID] = append(byRequisition[line.RequisitionID], line)
	}

	items := make([]ListItem, len(rows))
	for i, row := range rows {
		items[i] = toListItem(row, byRequisition[row.ID])
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

func (s *service) Upsert(ctx context.Context, cardID uuid.UUID, input UpsertInput) (*Outcome, error) {
	if cardID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	release, err := s.locker.Acquire(ctx, locks.KindCard, cardID)
	if err != nil {
		return nil, err
	}
	defer release()
	start := time.Now()

	// a card saved before requisitions existed gets one on first edit
	var (
		card  *models.ProductionCard
		sheet consumption.Sheet
	)
	existing, err := s.repo.FindByCardID(ctx, cardID)
	if err == nil {
		// issuance and status actions lock by requisition id
		releaseReq, err := s.locker.Acquire(ctx, locks.KindRequisition, existing.ID)
		if err != nil {
			return nil, err
		}
		defer releaseReq()
	} else {
		if !pkgdb.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition")
		}
		card, err = s.cards.FindByID(ctx, cardID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production card not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load production card")
		}
		sheet, err = s.sheets.ResolveAll(ctx, card.ProjectID)
		if err != nil {
			return nil, err
		}
	}

	var outcome *Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if card != nil {
			if _, err := s.SyncForCard(ctx, tx, *card, sheet.Lines(), input.Operator); err != nil {
				return err
			}
		}
		header, err := s.repo.WithTx(tx).LockByCardID(ctx, cardID)
		if err != nil {
			return mapLoadError(err)
		}
		outcome, err = s.applyLocked(ctx, tx, header, input.Operator, func(current Requisition) (change, error) {
			return applyEdits(current, input.Remarks, input.Lines)
		})
		if err == nil && card != nil {
			outcome.Changed = true
			if outcome.Notice != nil && outcome.Notice.Kind == types.NoticeInfo {
				outcome.Notice = nil
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSubmission("requisition_upsert", time.Since(start))
	return outcome, nil
}

func (s *service) RecordIssuance(ctx context.Context, id uuid.UUID, input IssuanceInput) (*Outcome, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line edit is required")
	}
	return s.mutate(ctx, id, "requisition_issuance", input.Operator, func(current Requisition) (change, error) {
		return applyEdits(current, nil, input.Lines)
	})
}

func (s *service) SendToStore(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error) {
	return s.mutate(ctx, id, "requisition_send_to_store", operator, func(current Requisition) (change, error) {
		status, err := SendToStore(current.Status, current.Lines)
		if err != nil {
			return change{}, err
		}
		if current.SentToStoreAt != nil {
			return change{next: current, notice: types.InfoNotice("requisition already sent to store")}, nil
		}
		next := current.clone()
		now := s.now()
		next.Status = status
		next.SentToStoreAt = &now
		return change{next: next, changed: true}, nil
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error) {
	return s.mutate(ctx, id, "requisition_cancel", operator, func(current Requisition) (change, error) {
		status, err := Cancel(current.Status)
		if err != nil {
			return change{}, err
		}
		next := current.clone()
		now := s.now()
		next.Status = status
		next.CancelledAt = &now
		return change{next: next, changed: true}, nil
	})
}

func (s *service) Reactivate(ctx context.Context, id uuid.UUID, operator string) (*Outcome, error) {
	return s.mutate(ctx, id, "requisition_reactivate", operator, func(current Requisition) (change, error) {
		status, err := Reactivate(current.Status, current.SentToStoreAt != nil, current.Lines)
		if err != nil {
			return change{}, err
		}
		next := current.clone()
		next.Status = status
		next.CancelledAt = nil
		return change{next: next, changed: true}, nil
	})
}

// SyncForCard creates the card's requisition on first save, or re-projects
// its lines after an allocation or cost sheet change.
func (s *service) SyncForCard(ctx context.Context, tx *gorm.DB, card models.ProductionCard, sheet []consumption.CostLine, operator string) (*Requisition, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	allocation := requirements.AllocationOf(card.AllocationQuantity)

	header, err := repo.LockByCardID(ctx, card.ID)
	if err != nil {
		if !pkgdb.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition")
		}
		created := Requisition{
			ID:     uuid.New(),
			CardID: card.ID,
			Status: enums.RequisitionStatusPendingAvailabilityCheck,
			Lines:  requirements.Project(allocation, sheet),
		}
		rows, err := lineModels(created.ID, created.Lines)
		if err != nil {
			return nil, err
		}
		head := created.header()
		if err := repo.Create(ctx, &head, rows); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a requisition for this card was created concurrently; reload and retry")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create requisition")
		}
		return s.load(ctx, repo, &head)
	}

	current, err := s.load(ctx, repo, header)
	if err != nil {
		return nil, err
	}
	next := current.clone()
	next.Lines = requirements.Sync(allocation, sheet, current.Lines)
	next.Status = Recompute(current.Status, next.Lines)
	if err := s.persist(ctx, tx, *current, change{next: next, changed: true, linesChanged: true}, operator); err != nil {
		return nil, err
	}
	return s.reload(ctx, repo, current.ID)
}

// LoadForCard returns the card's requisition, or nil when it has none.
func (s *service) LoadForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID) (*Requisition, error) {
	repo := s.repo.WithTx(tx)
	header, err := repo.LockByCardID(ctx, cardID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition")
	}
	return s.load(ctx, repo, header)
}

// CancelForCard cancels the card's requisition when the card goes away.
func (s *service) CancelForCard(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, operator string) error {
	current, err := s.LoadForCard(ctx, tx, cardID)
	if err != nil || current == nil {
		return err
	}
	if current.Status == enums.RequisitionStatusCancelled {
		return nil
	}
	next := current.clone()
	now := s.now()
	next.Status = enums.RequisitionStatusCancelled
	next.CancelledAt = &now
	return s.persist(ctx, tx, *current, change{next: next, changed: true}, operator)
}

// mutate locks the requisition, applies fn to a copy and persists the copy
// only when fn reports a change. A failed write leaves nothing behind.
func (s *service) mutate(ctx context.Context, id uuid.UUID, operation, operator string, fn func(Requisition) (change, error)) (*Outcome, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requisition id is required")
	}
	release, err := s.locker.Acquire(ctx, locks.KindRequisition, id)
	if err != nil {
		return nil, err
	}
	defer release()
	start := time.Now()

	var outcome *Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		header, err := s.repo.WithTx(tx).LockByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}
		outcome, err = s.applyLocked(ctx, tx, header, operator, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSubmission(operation, time.Since(start))
	return outcome, nil
}

func (s *service) applyLocked(ctx context.Context, tx *gorm.DB, header *models.MaterialRequisition, operator string, fn func(Requisition) (change, error)) (*Outcome, error) {
	current, err := s.load(ctx, s.repo.WithTx(tx), header)
	if err != nil {
		return nil, err
	}
	ch, err := fn(current.clone())
	if err != nil {
		return nil, err
	}
	if !ch.changed {
		notice := ch.notice
		if notice == nil {
			notice = types.InfoNotice(noChangesMessage)
		}
		return &Outcome{Requisition: *current, Issuance: ch.batch, Notice: notice}, nil
	}
	if err := s.persist(ctx, tx, *current, ch, operator); err != nil {
		return nil, err
	}
	saved, err := s.reload(ctx, s.repo.WithTx(tx), current.ID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Requisition: *saved, Changed: true, Issuance: ch.batch, Notice: ch.notice}, nil
}

// persist writes header and lines and queues the matching outbox events.
func (s *service) persist(ctx context.Context, tx *gorm.DB, current Requisition, ch change, operator string) error {
	repo := s.repo.WithTx(tx)
	next := ch.next
	if ch.linesChanged {
		rows, err := lineModels(next.ID, next.Lines)
		if err != nil {
			return err
		}
		if err := repo.ReplaceLines(ctx, next.ID, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save requisition lines")
		}
	}
	head := next.header()
	if err := repo.UpdateHeader(ctx, &head); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update requisition")
	}

	actor := actorRef(operator)
	if current.Status != next.Status {
		required, issued := next.Totals()
		event := outbox.DomainEvent{
			EventType:     enums.EventRequisitionStatusChanged,
			AggregateType: enums.AggregateMaterialRequisition,
			AggregateID:   next.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.RequisitionStatusChangedEvent{
				RequisitionID: next.ID,
				CardID:        next.CardID,
				From:          current.Status,
				To:            next.Status,
				TotalRequired: required,
				TotalIssued:   issued,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue status event")
		}
		s.metrics.IncTransition(current.Status.String(), next.Status.String())
		if s.logg != nil {
			logCtx := s.logg.WithRequisitionID(ctx, next.ID.String())
			s.logg.Info(logCtx, fmt.Sprintf("requisition %s -> %s", current.Status, next.Status))
		}
	}
	if ch.batch != nil && ch.batch.Changed {
		issued := make([]payloads.IssuedLine, 0, len(ch.batch.Results))
		for _, res := range ch.batch.Results {
			issued = append(issued, payloads.IssuedLine{
				Category:  res.Category,
				ItemID:    res.ItemID,
				Issued:    res.Issued,
				Available: res.Available,
				Balance:   res.Balance,
				Clamped:   res.Clamped,
			})
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventRequisitionIssuanceRecorded,
			AggregateType: enums.AggregateMaterialRequisition,
			AggregateID:   next.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.RequisitionIssuanceRecordedEvent{
				RequisitionID: next.ID,
				CardID:        next.CardID,
				Status:        next.Status,
				Lines:         issued,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue issuance event")
		}
		s.metrics.IncIssuanceClamped(ch.batch.Clamped)
	}
	return nil
}

func (s *service) reload(ctx context.Context, repo Repository, id uuid.UUID) (*Requisition, error) {
	header, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return s.load(ctx, repo, header)
}

func (s *service) load(ctx context.Context, repo Repository, header *models.MaterialRequisition) (*Requisition, error) {
	rows, err := repo.ListLines(ctx, header.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition lines")
	}
	r := fromModels(*header, rows)
	return &r, nil
}

// applyEdits is createOrUpdateRequisition on an in-memory copy. Remarks
// compare trimmed and quantities within tolerance, so a resend of the stored
// state is not a change.
func applyEdits(current Requisition, remarks *string, edits []issuance.Edit) (change, error) {
	next := current.clone()
	remarksChanged := false
	if remarks != nil {
		trimmed := strings.TrimSpace(*remarks)
		if trimmed != strings.TrimSpace(current.Remarks) {
			next.Remarks = trimmed
			remarksChanged = true
		}
	}

	lines, batch, err := issuance.ApplyBatch(current.Lines, edits)
	if err != nil {
		return change{}, err
	}
	if !remarksChanged && !batch.Changed {
		notice := types.InfoNotice(noChangesMessage)
		if warning := batchNotice(batch); warning != nil {
			notice = types.WarningNotice(noChangesMessage + "; " + warning.Message)
		}
		return change{next: current, batch: &batch, notice: notice}, nil
	}
	if current.Status == enums.RequisitionStatusCancelled {
		return change{}, transitionError(current.Status, "edit")
	}
	if issuedChanged(current.Lines, lines) && !CanIssue(current.Status) {
		return change{}, pkgerrors.New(pkgerrors.CodeStateConflict, "requisition has not been sent to store").
			WithDetails(map[string]any{"status": current.Status, "action": "issue"})
	}

	next.Lines = lines
	next.Status = Recompute(current.Status, lines)
	return change{
		next:         next,
		changed:      true,
		linesChanged: batch.Changed,
		batch:        &batch,
		notice:       batchNotice(batch),
	}, nil
}

func issuedChanged(before, after []requirements.MaterialLine) bool {
	for i := range before {
		if !before[i].Issued.Equal(after[i].Issued) {
			return true
		}
	}
	return false
}

func batchNotice(batch issuance.Batch) *types.Notice {
	messages := []string{}
	if batch.Clamped > 0 {
		messages = append(messages, issuance.ClampWarning(batch.Clamped))
	}
	if n := len(batch.Unknown); n > 0 {
		messages = append(messages, fmt.Sprintf("%d line edit(s) did not match any material line", n))
	}
	if len(messages) == 0 {
		return nil
	}
	return types.WarningNotice(strings.Join(messages, "; "))
}

func lineModels(requisitionID uuid.UUID, lines []requirements.MaterialLine) ([]models.MaterialLine, error) {
	rows := make([]models.MaterialLine, 0, len(lines))
	for _, line := range lines {
		row, ok := line.ToModel(requisitionID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "material line has no requirement").
				WithDetails(map[string]any{"category": line.Category, "item_id": line.ItemID})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func mapLoadError(err error) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "requisition not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load requisition")
}

func actorRef(operator string) *outbox.ActorRef {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil
	}
	return &outbox.ActorRef{Operator: operator}
}
