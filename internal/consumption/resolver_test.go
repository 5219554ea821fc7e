package consumption

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastline-erp/lastline-backend/pkg/db/dbtest"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	dbtypes "github.com/lastline-erp/lastline-backend/pkg/db/types"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
)

type failingRepo struct{}

func (failingRepo) ListByCategory(context.Context, uuid.UUID, enums.CostCategory) ([]models.CostLine, error) {
	return nil, errors.New("connection refused")
}

func (failingRepo) ListByProject(context.Context, uuid.UUID) ([]models.CostLine, error) {
	return nil, errors.New("connection refused")
}

func seedCostLine(t *testing.T, repo *Repository, projectID uuid.UUID, category enums.CostCategory, itemID string, position int, attrs string) {
	t.Helper()
	row := models.CostLine{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Category:   category,
		Position:   position,
		ItemID:     itemID,
		ItemName:   "item " + itemID,
		Attributes: dbtypes.RawJSON(attrs),
	}
	require.NoError(t, repo.db.Create(&row).Error)
}

func TestResolveReturnsCategoryInSheetOrder(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	resolver, err := NewResolver(repo)
	require.NoError(t, err)

	projectID := uuid.New()
	seedCostLine(t, repo, projectID, enums.CostCategoryUpper, "U-2", 2, `{"consumption":"0.25"}`)
	seedCostLine(t, repo, projectID, enums.CostCategoryUpper, "U-1", 1, `{"rate":0.5,"department":"cutting"}`)
	seedCostLine(t, repo, projectID, enums.CostCategoryPackaging, "P-1", 1, `{"qty":1}`)

	lines, err := resolver.Resolve(context.Background(), projectID, enums.CostCategoryUpper)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "U-1", lines[0].ItemID)
	assert.True(t, lines[0].ConsumptionPerUnit.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, lines[0].Department)
	assert.Equal(t, "cutting", *lines[0].Department)
	assert.Equal(t, "U-2", lines[1].ItemID)
	assert.Nil(t, lines[1].Department)
}

func TestResolveToleratesAbsentData(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	resolver, err := NewResolver(repo)
	require.NoError(t, err)

	projectID := uuid.New()
	seedCostLine(t, repo, projectID, enums.CostCategoryComponent, "C-1", 0, `[1,2,3]`)

	lines, err := resolver.Resolve(context.Background(), projectID, enums.CostCategoryMaterial)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)

	lines, err = resolver.Resolve(context.Background(), projectID, enums.CostCategory("laces"))
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = resolver.Resolve(context.Background(), uuid.New(), enums.CostCategoryUpper)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestResolveAllCoversEveryCategory(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	resolver, err := NewResolver(repo)
	require.NoError(t, err)

	projectID := uuid.New()
	seedCostLine(t, repo, projectID, enums.CostCategoryMiscellaneous, "M-1", 0, `{"consumption":"2"}`)
	seedCostLine(t, repo, projectID, enums.CostCategoryUpper, "U-1", 0, `{"consumption":"1"}`)

	sheet, err := resolver.ResolveAll(context.Background(), projectID)
	require.NoError(t, err)
	assert.Len(t, sheet, len(enums.CostCategories))
	assert.Len(t, sheet[enums.CostCategoryUpper], 1)
	assert.Len(t, sheet[enums.CostCategoryMiscellaneous], 1)
	assert.Empty(t, sheet[enums.CostCategoryPackaging])

	flat := sheet.Lines()
	require.Len(t, flat, 2)
	assert.Equal(t, "U-1", flat[0].ItemID)
	assert.Equal(t, "M-1", flat[1].ItemID)
}

func TestResolveWrapsRepositoryFailure(t *testing.T) {
	resolver, err := NewResolver(failingRepo{})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), uuid.New(), enums.CostCategoryUpper)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = resolver.ResolveAll(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestReplaceCategory(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	projectID := uuid.New()
	seedCostLine(t, repo, projectID, enums.CostCategoryUpper, "OLD", 0, `{}`)
	seedCostLine(t, repo, projectID, enums.CostCategoryMaterial, "KEEP", 0, `{}`)

	err := repo.ReplaceCategory(context.Background(), projectID, enums.CostCategoryUpper, []models.CostLine{
		{ID: uuid.New(), ProjectID: projectID, Category: enums.CostCategoryUpper, ItemID: "NEW", Attributes: dbtypes.RawJSON(`{"consumption":1}`)},
	})
	require.NoError(t, err)

	rows, err := repo.ListByProject(context.Background(), projectID)
	require.NoError(t, err)
	ids := []string{}
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	assert.ElementsMatch(t, []string{"NEW", "KEEP"}, ids)
}

func TestNewResolverRequiresRepository(t *testing.T) {
	_, err := NewResolver(nil)
	require.Error(t, err)
}
