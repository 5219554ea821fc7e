package requisitions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/internal/issuance"
	"github.com/lastline-erp/lastline-backend/internal/locks"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/db/dbtest"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/metrics"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	pkgpagination "github.com/lastline-erp/lastline-backend/pkg/pagination"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

type stubCards struct {
	cards map[uuid.UUID]models.ProductionCard
}

func (s *stubCards) FindByID(_ context.Context, id uuid.UUID) (*models.ProductionCard, error) {
	card, ok := s.cards[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &card, nil
}

type stubSheets struct {
	lines []consumption.CostLine
}

func (s *stubSheets) ResolveAll(_ context.Context, _ uuid.UUID) (consumption.Sheet, error) {
	sheet := consumption.Sheet{}
	for _, category := range enums.CostCategories {
		sheet[category] = []consumption.CostLine{}
	}
	for _, line := range s.lines {
		sheet[line.Category] = append(sheet[line.Category], line)
	}
	return sheet, nil
}

// countingRepo records writes so tests can assert a save made none.
type countingRepo struct {
	Repository
	writes *int
}

func (c countingRepo) WithTx(tx *gorm.DB) Repository {
	return countingRepo{Repository: c.Repository.WithTx(tx), writes: c.writes}
}

func (c countingRepo) UpdateHeader(ctx context.Context, header *models.MaterialRequisition) error {
	*c.writes++
	return c.Repository.UpdateHeader(ctx, header)
}

func (c countingRepo) ReplaceLines(ctx context.Context, id uuid.UUID, lines []models.MaterialLine) error {
	*c.writes++
	return c.Repository.ReplaceLines(ctx, id, lines)
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	cards    *stubCards
	sheets   *stubSheets
	writes   *int
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	writes := 0
	f := &fixture{
		conn:     conn,
		cards:    &stubCards{cards: map[uuid.UUID]models.ProductionCard{}},
		writes:   &writes,
		registry: prometheus.NewRegistry(),
		sheets: &stubSheets{lines: []consumption.CostLine{
			{Category: enums.CostCategoryUpper, ItemID: "A", ItemName: "leather", ConsumptionPerUnit: dec("0.5")},
			{Category: enums.CostCategoryMaterial, ItemID: "B", ItemName: "lining", ConsumptionPerUnit: dec("0.5")},
		}},
	}
	svc, err := NewService(ServiceParams{
		Repo:    countingRepo{Repository: NewRepository(conn), writes: &writes},
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Locker:  locks.NewMemoryLocker(nil),
		Cards:   f.cards,
		Sheets:  f.sheets,
		Metrics: metrics.NewProductionMetrics(f.registry),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedCard creates a card with allocation 100, so each line requires 50.
func (f *fixture) seedCard(t *testing.T) (models.ProductionCard, *Requisition) {
	t.Helper()
	card := models.ProductionCard{ID: uuid.New(), ProjectID: uuid.New(), AllocationQuantity: dec("100")}
	f.cards.cards[card.ID] = card
	var req *Requisition
	err := f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = f.svc.SyncForCard(context.Background(), tx, card, f.sheets.lines, "planner")
		return err
	})
	require.NoError(t, err)
	return card, req
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return int(count)
}

func TestSyncForCardCreatesPendingRequisition(t *testing.T) {
	f := newFixture(t)
	card, req := f.seedCard(t)

	assert.Equal(t, card.ID, req.CardID)
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, req.Status)
	require.Len(t, req.Lines, 2)
	assert.Equal(t, enums.CostCategoryUpper, req.Lines[0].Category)
	assert.True(t, req.Lines[0].Requirement.Decimal.Equal(dec("50")))
	assert.True(t, req.Lines[0].Balance.Equal(dec("50")))

	loaded, err := f.svc.GetByCard(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, loaded.ID)
}

func TestIssuanceRollupPersists(t *testing.T) {
	f := newFixture(t)
	_, req := f.seedCard(t)
	ctx := context.Background()

	_, err := f.svc.RecordIssuance(ctx, req.ID, IssuanceInput{Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Issued: decPtr("30")},
	}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "issuance waits for send to store")

	outcome, err := f.svc.SendToStore(ctx, req.ID, "planner")
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPendingToStore, outcome.Requisition.Status)
	require.NotNil(t, outcome.Requisition.SentToStoreAt)

	outcome, err = f.svc.RecordIssuance(ctx, req.ID, IssuanceInput{Operator: "store-1", Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Issued: decPtr("30")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Issued: decPtr("0")},
	}})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, outcome.Requisition.Status)
	required, issued := outcome.Requisition.Totals()
	assert.True(t, issued.Equal(dec("30")))
	assert.True(t, required.Equal(dec("100")))

	outcome, err = f.svc.RecordIssuance(ctx, req.ID, IssuanceInput{Operator: "store-1", Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Issued: decPtr("50")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Issued: decPtr("50")},
	}})
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusIssued, outcome.Requisition.Status)

	reloaded, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusIssued, reloaded.Status)
	assert.True(t, reloaded.Lines[1].Issued.Equal(dec("50")))

	assert.Equal(t, 3, f.events(t, enums.EventRequisitionStatusChanged))
	assert.Equal(t, 2, f.events(t, enums.EventRequisitionIssuanceRecorded))
	assert.Equal(t, float64(3), counterTotal(t, f.registry, "requisition_status_transitions_total"))
}

func TestIssuanceWithOnlyUnknownLinesWarns(t *testing.T) {
	f := newFixture(t)
	_, req := f.seedCard(t)
	ctx := context.Background()
	_, err := f.svc.SendToStore(ctx, req.ID, "planner")
	require.NoError(t, err)
	writes := *f.writes

	outcome, err := f.svc.RecordIssuance(ctx, req.ID, IssuanceInput{Operator: "store-1", Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "GHOST", Issued: decPtr("5")},
	}})
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	require.NotNil(t, outcome.Notice)
	assert.Equal(t, types.NoticeWarning, outcome.Notice.Kind)
	assert.Equal(t, "no changes to save; 1 line edit(s) did not match any material line", outcome.Notice.Message)
	assert.Equal(t, writes, *f.writes, "nothing persisted")
}

func counterTotal(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestClampedIssuanceWarns(t *testing.T) {
	f := newFixture(t)
	_, req := f.seedCard(t)
	ctx := context.Background()
	_, err := f.svc.SendToStore(ctx, req.ID, "")
	require.NoError(t, err)

	outcome, err := f.svc.RecordIssuance(ctx, req.ID, IssuanceInput{Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("20"), Issued: decPtr("45")},
	}})
	require.NoError(t, err)
	require.NotNil(t, outcome.Notice)
	assert.Equal(t, types.NoticeWarning, outcome.Notice.Kind)
	assert.True(t, outcome.Requisition.Lines[0].Issued.Equal(dec("30")))
	assert.True(t, outcome.Issuance.Results[0].Clamped)
}

func TestUpsertNoOpMakesNoWrite(t *testing.T) {
	f := newFixture(t)
	card, _ := f.seedCard(t)
	ctx := context.Background()

	remarks := "ok"
	outcome, err := f.svc.Upsert(ctx, card.ID, UpsertInput{Remarks: &remarks})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, "ok", outcome.Requisition.Remarks)

	before := *f.writes
	statusEvents := f.events(t, enums.EventRequisitionStatusChanged)

	padded := "ok "
	outcome, err = f.svc.Upsert(ctx, card.ID, UpsertInput{Remarks: &padded, Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("0.00004")},
	}})
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	require.NotNil(t, outcome.Notice)
	assert.Equal(t, types.NoticeInfo, outcome.Notice.Kind)
	assert.Equal(t, "no changes to save", outcome.Notice.Message)
	assert.Equal(t, before, *f.writes, "no persistence call")
	assert.Equal(t, statusEvents, f.events(t, enums.EventRequisitionStatusChanged))
}

func TestUpsertCreatesMissingRequisition(t *testing.T) {
	f := newFixture(t)
	card := models.ProductionCard{ID: uuid.New(), ProjectID: uuid.New(), AllocationQuantity: dec("10")}
	f.cards.cards[card.ID] = card

	outcome, err := f.svc.Upsert(context.Background(), card.ID, UpsertInput{Lines: []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("2")},
	}})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, outcome.Requisition.Status)
	assert.True(t, outcome.Requisition.Lines[0].Requirement.Decimal.Equal(dec("5")))
	assert.True(t, outcome.Requisition.Lines[0].Balance.Equal(dec("3")))

	_, err = f.svc.Upsert(context.Background(), uuid.New(), UpsertInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelIsSticky(t *testing.T) {
	f := newFixture(t)
	card, req := f.seedCard(t)
	ctx := context.Background()

	outcome, err := f.svc.Cancel(ctx, req.ID, "planner")
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusCancelled, outcome.Requisition.Status)
	assert.NotNil(t, outcome.Requisition.CancelledAt)

	// re-projection after a card edit keeps it cancelled
	card.AllocationQuantity = dec("40")
	err = f.conn.Transaction(func(tx *gorm.DB) error {
		synced, err := f.svc.SyncForCard(ctx, tx, card, f.sheets.lines, "planner")
		if err == nil {
			assert.Equal(t, enums.RequisitionStatusCancelled, synced.Status)
			assert.True(t, synced.Lines[0].Requirement.Decimal.Equal(dec("20")))
		}
		return err
	})
	require.NoError(t, err)

	remarks := "changed"
	_, err = f.svc.Upsert(ctx, card.ID, UpsertInput{Remarks: &remarks})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.Cancel(ctx, req.ID, "planner")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	outcome, err = f.svc.Reactivate(ctx, req.ID, "planner")
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, outcome.Requisition.Status)
	assert.Nil(t, outcome.Requisition.CancelledAt)
}

func TestSendToStoreTwiceIsInformational(t *testing.T) {
	f := newFixture(t)
	_, req := f.seedCard(t)
	ctx := context.Background()

	_, err := f.svc.SendToStore(ctx, req.ID, "planner")
	require.NoError(t, err)
	outcome, err := f.svc.SendToStore(ctx, req.ID, "planner")
	require.NoError(t, err)
	assert.False(t, outcome.Changed)
	assert.Equal(t, types.NoticeInfo, outcome.Notice.Kind)
}

func TestCancelForCard(t *testing.T) {
	f := newFixture(t)
	card, req := f.seedCard(t)

	err := f.conn.Transaction(func(tx *gorm.DB) error {
		return f.svc.CancelForCard(context.Background(), tx, card.ID, "planner")
	})
	require.NoError(t, err)
	loaded, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusCancelled, loaded.Status)

	err = f.conn.Transaction(func(tx *gorm.DB) error {
		return f.svc.CancelForCard(context.Background(), tx, uuid.New(), "planner")
	})
	require.NoError(t, err, "cards without a requisition are fine")
}

func TestListByStatusPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var sent []uuid.UUID
	for i := 0; i < 3; i++ {
		_, req := f.seedCard(t)
		_, err := f.svc.SendToStore(ctx, req.ID, "planner")
		require.NoError(t, err)
		sent = append(sent, req.ID)
		time.Sleep(2 * time.Millisecond)
	}
	f.seedCard(t)

	status := enums.RequisitionStatusPendingToStore
	page, err := f.svc.List(ctx, ListParams{Status: &status, Params: pkgpagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.Cursor)
	assert.True(t, page.Items[0].TotalRequired.Equal(dec("100")))

	next, err := f.svc.List(ctx, ListParams{Status: &status, Params: pkgpagination.Params{Limit: 2, Cursor: page.Cursor}})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.Cursor)

	seen := []uuid.UUID{page.Items[0].ID, page.Items[1].ID, next.Items[0].ID}
	assert.ElementsMatch(t, sent, seen)

	_, err = f.svc.List(ctx, ListParams{Params: pkgpagination.Params{Limit: 2, Cursor: "%%%"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCountByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, first := f.seedCard(t)
	f.seedCard(t)
	_, err := f.svc.SendToStore(ctx, first.ID, "planner")
	require.NoError(t, err)

	counts, err := NewRepository(f.conn).CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[enums.RequisitionStatusPendingToStore])
	assert.EqualValues(t, 1, counts[enums.RequisitionStatusPendingAvailabilityCheck])
	assert.Zero(t, counts[enums.RequisitionStatusIssued])
}

func TestGetErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestInFlightSubmissionRejected(t *testing.T) {
	f := newFixture(t)
	_, req := f.seedCard(t)
	locker := locks.NewMemoryLocker(nil)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(f.conn),
		Tx:     db.NewFromConn(f.conn),
		Outbox: outbox.NewService(outbox.NewRepository(f.conn), nil),
		Locker: locker,
		Cards:  f.cards,
		Sheets: f.sheets,
	})
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), locks.KindRequisition, req.ID)
	require.NoError(t, err)
	_, err = svc.SendToStore(context.Background(), req.ID, "planner")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInFlight))
	release()

	_, err = svc.SendToStore(context.Background(), req.ID, "planner")
	require.NoError(t, err)
}

func TestUpsertWaitsForIssuanceOnSameRequisition(t *testing.T) {
	f := newFixture(t)
	card, req := f.seedCard(t)
	locker := locks.NewMemoryLocker(nil)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(f.conn),
		Tx:     db.NewFromConn(f.conn),
		Outbox: outbox.NewService(outbox.NewRepository(f.conn), nil),
		Locker: locker,
		Cards:  f.cards,
		Sheets: f.sheets,
	})
	require.NoError(t, err)

	remarks := "rush order"
	release, err := locker.Acquire(context.Background(), locks.KindRequisition, req.ID)
	require.NoError(t, err)
	_, err = svc.Upsert(context.Background(), card.ID, UpsertInput{Remarks: &remarks})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInFlight))
	release()

	// the card lock is released on the failed attempt
	_, err = svc.Upsert(context.Background(), card.ID, UpsertInput{Remarks: &remarks})
	require.NoError(t, err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.EqualError(t, err, "requisition repository required")
}
