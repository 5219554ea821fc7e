package productioncards

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/internal/issuance"
	"github.com/lastline-erp/lastline-backend/internal/locks"
	"github.com/lastline-erp/lastline-backend/internal/projects"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/internal/requisitions"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/db/dbtest"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	dbtypes "github.com/lastline-erp/lastline-backend/pkg/db/types"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type harness struct {
	conn         *gorm.DB
	svc          Service
	ledger       *allocation.Ledger
	requisitions requisitions.Service
	projectID    uuid.UUID
}

func newHarness(t *testing.T, orderQuantity string) *harness {
	t.Helper()
	ctx := context.Background()
	conn := dbtest.Open(t)

	projectRepo := projects.NewRepository(conn)
	project := &models.Project{Code: "P-100", Name: "Derby", OrderQuantity: decimal.NewNullDecimal(dec(orderQuantity))}
	require.NoError(t, projectRepo.Create(ctx, project))

	costRepo := consumption.NewRepository(conn)
	require.NoError(t, costRepo.ReplaceCategory(ctx, project.ID, enums.CostCategoryUpper, []models.CostLine{
		{ID: uuid.New(), ProjectID: project.ID, Category: enums.CostCategoryUpper, ItemID: "LEA-1", ItemName: "calf leather", Attributes: dbtypes.RawJSON(`{"consumption":"0.5"}`)},
	}))
	require.NoError(t, costRepo.ReplaceCategory(ctx, project.ID, enums.CostCategoryPackaging, []models.CostLine{
		{ID: uuid.New(), ProjectID: project.ID, Category: enums.CostCategoryPackaging, ItemID: "BOX-1", ItemName: "shoe box", Attributes: dbtypes.RawJSON(`{"qty":1}`)},
	}))
	resolver, err := consumption.NewResolver(costRepo)
	require.NoError(t, err)

	cardRepo := NewRepository(conn)
	txRunner := db.NewFromConn(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	locker := locks.NewMemoryLocker(nil)

	reqSvc, err := requisitions.NewService(requisitions.ServiceParams{
		Repo:   requisitions.NewRepository(conn),
		Tx:     txRunner,
		Outbox: emitter,
		Locker: locker,
		Cards:  cardRepo,
		Sheets: resolver,
	})
	require.NoError(t, err)

	ledger, err := allocation.NewLedger(projectRepo, cardRepo)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:         cardRepo,
		Projects:     projectRepo,
		Requisitions: reqSvc,
		Sheets:       resolver,
		Ledger:       ledger,
		Tx:           txRunner,
		Outbox:       emitter,
		Locker:       locker,
	})
	require.NoError(t, err)

	return &harness{conn: conn, svc: svc, ledger: ledger, requisitions: reqSvc, projectID: project.ID}
}

func (h *harness) save(t *testing.T, id *uuid.UUID, qty string) (*SaveOutcome, error) {
	t.Helper()
	return h.svc.Save(context.Background(), SaveInput{
		ID:                 id,
		ProjectID:          h.projectID,
		AllocationQuantity: dec(qty),
		AssignedPlant:      "Plant 2",
		Operator:           "planner",
	})
}

func (h *harness) events(t *testing.T, eventType enums.OutboxEventType) int {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return int(count)
}

func TestPartialCardAllocation(t *testing.T) {
	h := newHarness(t, "1000")
	ctx := context.Background()

	a, err := h.save(t, nil, "600")
	require.NoError(t, err)
	assert.True(t, a.Changed)
	assert.True(t, a.Summary.Remaining.Equal(dec("400")))

	_, err = h.save(t, nil, "500")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "400", details["remaining_capacity"])

	b, err := h.save(t, nil, "400")
	require.NoError(t, err)
	assert.True(t, b.Summary.Remaining.IsZero())

	_, err = h.save(t, &a.Card.ID, "400")
	require.NoError(t, err)
	remaining, err := h.ledger.RemainingCapacity(ctx, h.projectID, &b.Card.ID)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(dec("600")))

	list, err := h.svc.List(ctx, h.projectID)
	require.NoError(t, err)
	assert.Len(t, list.Cards, 2)
	assert.True(t, list.Summary.Allocated.Equal(dec("800")))
	assert.Equal(t, 3, h.events(t, enums.EventCardAllocated))
}

func TestSaveRefusesOneUnitOverCapacity(t *testing.T) {
	h := newHarness(t, "1000")

	_, err := h.save(t, nil, "600")
	require.NoError(t, err)

	_, err = h.save(t, nil, "400.0001")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))

	list, err := h.svc.List(context.Background(), h.projectID)
	require.NoError(t, err)
	assert.Len(t, list.Cards, 1)
	assert.True(t, list.Summary.Allocated.LessThanOrEqual(dec("1000")))
}

func TestSaveProjectsRequisition(t *testing.T) {
	h := newHarness(t, "1000")

	out, err := h.save(t, nil, "200")
	require.NoError(t, err)
	require.NotNil(t, out.Requisition)
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, out.Requisition.Status)
	require.Len(t, out.Requisition.Lines, 2)
	assert.Equal(t, "LEA-1", out.Requisition.Lines[0].ItemID)
	assert.True(t, out.Requisition.Lines[0].Requirement.Decimal.Equal(dec("100")))
	assert.True(t, out.Requisition.Lines[1].Requirement.Decimal.Equal(dec("200")))

	edited, err := h.save(t, &out.Card.ID, "150")
	require.NoError(t, err)
	assert.Equal(t, out.Requisition.ID, edited.Requisition.ID)
	assert.True(t, edited.Requisition.Lines[0].Requirement.Decimal.Equal(dec("75")))
}

func TestSaveWithoutChangesWritesNothing(t *testing.T) {
	h := newHarness(t, "1000")
	out, err := h.save(t, nil, "100")
	require.NoError(t, err)
	before := h.events(t, enums.EventCardAllocated)

	again, err := h.svc.Save(context.Background(), SaveInput{
		ID:                 &out.Card.ID,
		AllocationQuantity: dec("100.00004"),
		AssignedPlant:      " Plant 2 ",
	})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	require.NotNil(t, again.Notice)
	assert.Equal(t, types.NoticeInfo, again.Notice.Kind)
	assert.Equal(t, before, h.events(t, enums.EventCardAllocated))
}

func TestSaveValidation(t *testing.T) {
	h := newHarness(t, "1000")

	_, err := h.save(t, nil, "-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = h.svc.Save(context.Background(), SaveInput{ProjectID: h.projectID, AllocationQuantity: dec("1"), StartDate: &start, EndDate: &end})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Save(context.Background(), SaveInput{ProjectID: uuid.New(), AllocationQuantity: dec("1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	missing := uuid.New()
	_, err = h.save(t, &missing, "1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUnapprovedOrderHasNoCapacity(t *testing.T) {
	h := newHarness(t, "0")
	_, err := h.save(t, nil, "1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))

	out, err := h.save(t, nil, "0")
	require.NoError(t, err)
	assert.True(t, out.Changed)
}

func TestDeleteReleasesCapacity(t *testing.T) {
	h := newHarness(t, "1000")
	ctx := context.Background()
	out, err := h.save(t, nil, "700")
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, out.Card.ID, "planner"))

	remaining, err := h.ledger.RemainingCapacity(ctx, h.projectID, nil)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(dec("1000")))

	req, err := h.requisitions.Get(ctx, out.Requisition.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusCancelled, req.Status)
	assert.Equal(t, 1, h.events(t, enums.EventCardDeleted))

	_, err = h.svc.Get(ctx, out.Card.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = h.svc.Delete(ctx, out.Card.ID, "planner")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteRefusedAfterIssuance(t *testing.T) {
	h := newHarness(t, "1000")
	ctx := context.Background()
	out, err := h.save(t, nil, "100")
	require.NoError(t, err)

	_, err = h.requisitions.SendToStore(ctx, out.Requisition.ID, "planner")
	require.NoError(t, err)
	_, err = h.requisitions.RecordIssuance(ctx, out.Requisition.ID, requisitions.IssuanceInput{Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "LEA-1", Issued: decPtr("10")},
	}})
	require.NoError(t, err)

	err = h.svc.Delete(ctx, out.Card.ID, "planner")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	card, err := h.svc.Get(ctx, out.Card.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Card.ID, card.ID)
}

func TestProjectionPreview(t *testing.T) {
	h := newHarness(t, "1000")
	ctx := context.Background()
	a, err := h.save(t, nil, "600")
	require.NoError(t, err)
	b, err := h.save(t, nil, "100")
	require.NoError(t, err)

	preview, err := h.svc.Projection(ctx, b.Card.ID, requirements.AllocationOf(dec("500")))
	require.NoError(t, err)
	require.NotNil(t, preview.Decision)
	assert.True(t, preview.Decision.Clamped)
	assert.Equal(t, types.NoticeWarning, preview.Notice.Kind)
	assert.Equal(t, "allocation exceeds remaining capacity; clamped to 400", preview.Notice.Message)
	upper := preview.Categories[enums.CostCategoryUpper]
	require.Len(t, upper, 1)
	assert.True(t, upper[0].Requirement.Decimal.Equal(dec("200")))

	unset, err := h.svc.Projection(ctx, a.Card.ID, requirements.Unset())
	require.NoError(t, err)
	assert.Nil(t, unset.Decision)
	line := unset.Categories[enums.CostCategoryUpper][0]
	assert.False(t, line.Requirement.Valid)
	assert.True(t, line.DisplayRequirement().Equal(dec("0.5")))

	// previews never write
	stored, err := h.svc.Get(ctx, b.Card.ID)
	require.NoError(t, err)
	assert.True(t, stored.AllocationQuantity.Equal(dec("100")))
}

func TestInFlightCardSave(t *testing.T) {
	h := newHarness(t, "1000")
	out, err := h.save(t, nil, "10")
	require.NoError(t, err)

	locker := locks.NewMemoryLocker(nil)
	release, err := locker.Acquire(context.Background(), locks.KindCard, out.Card.ID)
	require.NoError(t, err)
	defer release()

	svc := h.svc.(*service)
	svc.locker = locker
	_, err = h.save(t, &out.Card.ID, "20")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInFlight))
}
