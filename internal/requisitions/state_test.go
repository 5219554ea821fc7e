package requisitions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastline-erp/lastline-backend/internal/issuance"
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func twoLines() []requirements.MaterialLine {
	lines := []requirements.MaterialLine{
		{Category: enums.CostCategoryUpper, ItemID: "A", Requirement: decimal.NewNullDecimal(dec("50"))},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Requirement: decimal.NewNullDecimal(dec("50"))},
	}
	for i := range lines {
		lines[i].Rebalance()
	}
	return lines
}

func TestIssuanceRollupScenario(t *testing.T) {
	lines := twoLines()
	status := enums.RequisitionStatusPendingToStore

	lines, _, err := issuance.ApplyBatch(lines, []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Issued: decPtr("30")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Issued: decPtr("0")},
	})
	require.NoError(t, err)
	status = Recompute(status, lines)
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, status)
	required, issued := requirements.Totals(lines)
	assert.True(t, issued.Equal(dec("30")))
	assert.True(t, required.Equal(dec("100")))

	lines, _, err = issuance.ApplyBatch(lines, []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Issued: decPtr("50")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Issued: decPtr("50")},
	})
	require.NoError(t, err)
	status = Recompute(status, lines)
	assert.Equal(t, enums.RequisitionStatusIssued, status)
}

func TestIssuedSurvivesAvailableReduction(t *testing.T) {
	lines := twoLines()
	lines, _, err := issuance.ApplyBatch(lines, []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("10"), Issued: decPtr("40")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Issued: decPtr("50")},
	})
	require.NoError(t, err)
	// 40 of 50 on A: not yet fully issued
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, Derive(lines))

	lines, _, err = issuance.ApplyBatch(lines, []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("0"), Issued: decPtr("50")},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusIssued, Derive(lines))

	lines, _, err = issuance.ApplyBatch(lines, []issuance.Edit{
		{Category: enums.CostCategoryUpper, ItemID: "A", Available: decPtr("0")},
		{Category: enums.CostCategoryMaterial, ItemID: "B", Available: decPtr("0")},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusIssued, Recompute(enums.RequisitionStatusIssued, lines))
}

func TestDeriveTolerance(t *testing.T) {
	lines := twoLines()
	lines[0].Issued = dec("50")
	lines[1].Issued = dec("49.9999")
	assert.Equal(t, enums.RequisitionStatusIssued, Derive(lines))

	lines[1].Issued = dec("49.9998")
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, Derive(lines))
}

func TestDeriveWithoutRequirements(t *testing.T) {
	assert.Equal(t, enums.RequisitionStatusIssued, Derive(nil))

	l := twoLines()[0]
	l.Requirement = decimal.NewNullDecimal(decimal.Zero)
	l.Available = decimal.Zero
	l.Issued = decimal.Zero
	l.Rebalance()
	assert.Equal(t, enums.RequisitionStatusIssued, Derive([]requirements.MaterialLine{l}))
}

func TestRecomputeKeepsStickyStates(t *testing.T) {
	lines := twoLines()
	lines[0].Issued = dec("50")
	lines[1].Issued = dec("50")
	assert.Equal(t, enums.RequisitionStatusCancelled, Recompute(enums.RequisitionStatusCancelled, lines))
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, Recompute(enums.RequisitionStatusPendingAvailabilityCheck, lines))
}

func TestSendToStore(t *testing.T) {
	status, err := SendToStore(enums.RequisitionStatusPendingAvailabilityCheck, twoLines())
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPendingToStore, status)

	status, err = SendToStore(enums.RequisitionStatusPartiallyIssued, twoLines())
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, status)

	_, err = SendToStore(enums.RequisitionStatusCancelled, twoLines())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelAndReactivate(t *testing.T) {
	for _, from := range []enums.RequisitionStatus{
		enums.RequisitionStatusPendingAvailabilityCheck,
		enums.RequisitionStatusPendingToStore,
		enums.RequisitionStatusPartiallyIssued,
		enums.RequisitionStatusIssued,
	} {
		status, err := Cancel(from)
		require.NoError(t, err)
		assert.Equal(t, enums.RequisitionStatusCancelled, status)
	}
	_, err := Cancel(enums.RequisitionStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	status, err := Reactivate(enums.RequisitionStatusCancelled, false, twoLines())
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPendingAvailabilityCheck, status)

	lines := twoLines()
	lines[0].Issued = dec("5")
	status, err = Reactivate(enums.RequisitionStatusCancelled, true, lines)
	require.NoError(t, err)
	assert.Equal(t, enums.RequisitionStatusPartiallyIssued, status)

	_, err = Reactivate(enums.RequisitionStatusIssued, true, lines)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCanIssue(t *testing.T) {
	assert.False(t, CanIssue(enums.RequisitionStatusPendingAvailabilityCheck))
	assert.False(t, CanIssue(enums.RequisitionStatusCancelled))
	assert.True(t, CanIssue(enums.RequisitionStatusPendingToStore))
	assert.True(t, CanIssue(enums.RequisitionStatusIssued))
}
