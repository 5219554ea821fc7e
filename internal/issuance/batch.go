package issuance

import (
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Edit is a store operator's change to one line. Issued sets the cumulative
// quantity; Issue adds to it. Supplying both is invalid.
type Edit struct {
	Category  enums.CostCategory `json:"category" validate:"required,cost_category"`
	ItemID    string             `json:"item_id" validate:"required"`
	Available *decimal.Decimal   `json:"available,omitempty"`
	Issued    *decimal.Decimal   `json:"issued,omitempty"`
	Issue     *decimal.Decimal   `json:"issue,omitempty"`
}

// Batch summarizes ApplyBatch.
type Batch struct {
	Results []Result           `json:"results"`
	Unknown []requirements.Key `json:"unknown,omitempty"`
	Clamped int                `json:"clamped"`
	Changed bool               `json:"changed"`
}

// ApplyBatch applies edits to a copy of lines. Available is applied before
// issued so the bound reflects the new stock. Resending the current issued
// value is not a new issuance and is never re-clamped. Any invalid edit
// rejects the whole batch; the input slice is never modified.
func ApplyBatch(lines []requirements.MaterialLine, edits []Edit) ([]requirements.MaterialLine, Batch, error) {
	out := make([]requirements.MaterialLine, len(lines))
	copy(out, lines)

	index := make(map[requirements.Key]int, len(out))
	for i, line := range out {
		index[line.Key()] = i
	}

	batch := Batch{Results: make([]Result, 0, len(edits))}
	for _, edit := range edits {
		key := requirements.Key{Category: edit.Category, ItemID: edit.ItemID}
		i, ok := index[key]
		if !ok {
			batch.Unknown = append(batch.Unknown, key)
			continue
		}
		if edit.Issued != nil && edit.Issue != nil {
			return nil, Batch{}, pkgerrors.New(pkgerrors.CodeValidation, "issued and issue are mutually exclusive").
				WithDetails(lineDetails(out[i]))
		}

		line := &out[i]
		before := *line
		result := Result{Accepted: true}
		if edit.Available != nil {
			res, err := SetAvailable(line, *edit.Available)
			if err != nil {
				return nil, Batch{}, err
			}
			result = res
		}

		target, hasTarget := issuedTarget(*line, edit)
		if hasTarget && !quantity.Equal(target, line.Issued) {
			res, err := SetIssued(line, target)
			if err != nil {
				return nil, Batch{}, err
			}
			result = res
			if res.Clamped {
				batch.Clamped++
			}
		}
		result = fill(result, *line, before.Issued)
		if !sameQuantities(before, *line) {
			batch.Changed = true
		}
		batch.Results = append(batch.Results, result)
	}
	return out, batch, nil
}

func issuedTarget(line requirements.MaterialLine, edit Edit) (decimal.Decimal, bool) {
	switch {
	case edit.Issued != nil:
		return *edit.Issued, true
	case edit.Issue != nil:
		if edit.Issue.IsNegative() {
			return *edit.Issue, true
		}
		return line.Issued.Add(*edit.Issue), true
	default:
		return decimal.Zero, false
	}
}

func sameQuantities(a, b requirements.MaterialLine) bool {
	return quantity.Equal(a.Available, b.Available) && quantity.Equal(a.Issued, b.Issued)
}
