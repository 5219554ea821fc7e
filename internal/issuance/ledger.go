package issuance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Result reports the outcome of one line edit.
type Result struct {
	Category    enums.CostCategory  `json:"category"`
	ItemID      string              `json:"item_id"`
	Available   decimal.Decimal     `json:"available"`
	Issued      decimal.Decimal     `json:"issued"`
	NewlyIssued decimal.Decimal     `json:"newly_issued"`
	Balance     decimal.Decimal     `json:"balance"`
	Accepted    bool                `json:"accepted"`
	Clamped     bool                `json:"clamped"`
	ClampedTo   decimal.NullDecimal `json:"clamped_to"`
}

// MaxIssuable is the most that may be issued cumulatively against a line:
// max(0, requirement - available).
func MaxIssuable(line requirements.MaterialLine) decimal.Decimal {
	return quantity.Normalize(quantity.ClampZero(line.RequirementOrZero().Sub(line.Available)))
}

// SetIssued records a new cumulative issued quantity. Negative input is
// rejected and leaves the line untouched. Input above MaxIssuable is accepted
// at MaxIssuable and flagged as clamped.
func SetIssued(line *requirements.MaterialLine, newCumulative decimal.Decimal) (Result, error) {
	if line == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "material line required")
	}
	newCumulative = quantity.Normalize(newCumulative)
	if newCumulative.IsNegative() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "issued quantity must not be negative").
			WithDetails(lineDetails(*line))
	}
	if _, ok := line.PersistableRequirement(); !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "requirement is not set for this line").
			WithDetails(lineDetails(*line))
	}

	previous := line.Issued
	result := Result{Accepted: true}
	maxIssuable := MaxIssuable(*line)
	if newCumulative.GreaterThan(maxIssuable) {
		// excess within tolerance is stored at the maximum without a flag
		if quantity.Exceeds(newCumulative, maxIssuable) {
			result.Clamped = true
			result.ClampedTo = decimal.NewNullDecimal(maxIssuable)
		}
		newCumulative = maxIssuable
	}
	line.Issued = newCumulative
	line.Rebalance()
	return fill(result, *line, previous), nil
}

// SetAvailable records store-reported stock. Issued is never touched; a
// previously accepted issuance stays even if it now exceeds MaxIssuable.
func SetAvailable(line *requirements.MaterialLine, available decimal.Decimal) (Result, error) {
	if line == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "material line required")
	}
	available = quantity.Normalize(available)
	if available.IsNegative() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "available quantity must not be negative").
			WithDetails(lineDetails(*line))
	}
	line.Available = available
	line.Rebalance()
	return fill(Result{Accepted: true}, *line, line.Issued), nil
}

// ClampWarning is the user-facing message for a clamped issuance.
func ClampWarning(clamped int) string {
	if clamped == 1 {
		return "1 issued quantity exceeded the issuable maximum and was clamped"
	}
	return fmt.Sprintf("%d issued quantities exceeded the issuable maximum and were clamped", clamped)
}

func fill(result Result, line requirements.MaterialLine, previous decimal.Decimal) Result {
	result.Category = line.Category
	result.ItemID = line.ItemID
	result.Available = line.Available
	result.Issued = line.Issued
	result.NewlyIssued = quantity.Normalize(line.Issued.Sub(previous))
	result.Balance = line.Balance
	return result
}

func lineDetails(line requirements.MaterialLine) map[string]any {
	return map[string]any{
		"category": line.Category,
		"item_id":  line.ItemID,
	}
}
