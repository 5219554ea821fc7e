package projects

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lastline-erp/lastline-backend/internal/allocation"
	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/pkg/db"
	"github.com/lastline-erp/lastline-backend/pkg/db/dbtest"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// cardRows satisfies the ledger's card lister straight from the table.
type cardRows struct {
	conn *gorm.DB
}

func (c cardRows) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProductionCard, error) {
	var rows []models.ProductionCard
	err := c.conn.WithContext(ctx).Where("project_id = ?", projectID).Find(&rows).Error
	return rows, err
}

func setup(t *testing.T, order *decimal.Decimal, allocations ...string) (Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	project := &models.Project{Code: "P-7", Name: "Oxford"}
	if order != nil {
		project.OrderQuantity = decimal.NewNullDecimal(*order)
	}
	require.NoError(t, repo.Create(ctx, project))
	for _, qty := range allocations {
		require.NoError(t, conn.Create(&models.ProductionCard{ID: uuid.New(), ProjectID: project.ID, AllocationQuantity: dec(qty)}).Error)
	}

	costRepo := consumption.NewRepository(conn)
	resolver, err := consumption.NewResolver(costRepo)
	require.NoError(t, err)
	ledger, err := allocation.NewLedger(repo, cardRows{conn: conn})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		CostLines: costRepo,
		Resolver:  resolver,
		Ledger:    ledger,
		Tx:        db.NewFromConn(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return svc, conn, project.ID
}

func TestGetReportsAllocation(t *testing.T) {
	order := dec("1000")
	svc, _, id := setup(t, &order, "600", "150")

	overview, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "P-7", overview.Code)
	assert.True(t, overview.Allocated.Equal(dec("750")))
	assert.True(t, overview.Remaining.Equal(dec("250")))

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUnapprovedOrderReadsAsZero(t *testing.T) {
	svc, conn, id := setup(t, nil)
	overview, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, overview.OrderQuantity.Valid)
	assert.True(t, overview.Remaining.IsZero())

	qty, err := NewRepository(conn).OrderQuantity(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, qty.IsZero())
}

func TestCapacityExcludesEditedCard(t *testing.T) {
	order := dec("1000")
	svc, conn, id := setup(t, &order, "600")
	var card models.ProductionCard
	require.NoError(t, conn.Where("project_id = ?", id).First(&card).Error)

	capacity, err := svc.Capacity(context.Background(), id, &card.ID)
	require.NoError(t, err)
	assert.True(t, capacity.Summary.Remaining.Equal(dec("1000")))

	capacity, err = svc.Capacity(context.Background(), id, nil)
	require.NoError(t, err)
	assert.True(t, capacity.Summary.Remaining.Equal(dec("400")))
}

func TestUpdateOrderQuantity(t *testing.T) {
	order := dec("1000")
	svc, conn, id := setup(t, &order, "600")
	ctx := context.Background()

	_, err := svc.UpdateOrderQuantity(ctx, id, dec("500"), "buyer")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))

	_, err = svc.UpdateOrderQuantity(ctx, id, dec("-1"), "buyer")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	outcome, err := svc.UpdateOrderQuantity(ctx, id, dec("1200"), "buyer")
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.True(t, outcome.Project.Remaining.Equal(dec("600")))

	same, err := svc.UpdateOrderQuantity(ctx, id, dec("1200.00001"), "buyer")
	require.NoError(t, err)
	assert.False(t, same.Changed)
	assert.Equal(t, types.NoticeInfo, same.Notice.Kind)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventOrderQuantityUpdated).Find(&events).Error)
	require.Len(t, events, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	data, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1200", data["order_quantity"])
	assert.Equal(t, "1000", data["previous_quantity"])
}

func TestImportCostLines(t *testing.T) {
	svc, _, id := setup(t, nil)
	ctx := context.Background()

	lines, err := svc.ImportCostLines(ctx, id, enums.CostCategoryComponent, []CostLineInput{
		{ItemID: "SOLE-1", Attributes: json.RawMessage(`{"itemName":"rubber sole","consumptionPerUnit":" 2 "}`)},
		{ItemID: "LACE-1", ItemName: "laces", Attributes: json.RawMessage(`{"rate":"n/a"}`)},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "rubber sole", lines[0].ItemName)
	assert.True(t, lines[0].ConsumptionPerUnit.Equal(dec("2")))
	assert.True(t, lines[1].ConsumptionPerUnit.IsZero())

	sheet, err := svc.CostSheet(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sheet[enums.CostCategoryComponent], 2)
	assert.Empty(t, sheet[enums.CostCategoryUpper])

	_, err = svc.ImportCostLines(ctx, id, enums.CostCategory("laces"), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.ImportCostLines(ctx, id, enums.CostCategoryUpper, []CostLineInput{{ItemID: "A"}, {ItemID: "A"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.ImportCostLines(ctx, id, enums.CostCategoryUpper, []CostLineInput{{ItemID: "A", Attributes: json.RawMessage(`{oops`)}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	none, err := svc.CostLines(ctx, id, enums.CostCategory("unknown"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
