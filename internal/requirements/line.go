package requirements

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// MaterialLine is one material item of a requisition. Requirement is invalid
// while the card's allocation is unset.
type MaterialLine struct {
	ID                 uuid.UUID           `json:"id"`
	Category           enums.CostCategory  `json:"category"`
	Position           int                 `json:"position"`
	ItemID             string              `json:"item_id"`
	Name               string              `json:"name"`
	Specification      string              `json:"specification"`
	Department         *string             `json:"department"`
	ConsumptionPerUnit decimal.Decimal     `json:"consumption_per_unit"`
	Requirement        decimal.NullDecimal `json:"requirement"`
	Available          decimal.Decimal     `json:"available"`
	Issued             decimal.Decimal     `json:"issued"`
	Balance            decimal.Decimal     `json:"balance"`
}

// Key identifies a line inside its requisition.
type Key struct {
	Category enums.CostCategory
	ItemID   string
}

func (l MaterialLine) Key() Key {
	return Key{Category: l.Category, ItemID: l.ItemID}
}

// DisplayRequirement is what the planner sees: the requirement when known,
// else the per-unit rate so an unset allocation is not read as "nothing".
func (l MaterialLine) DisplayRequirement() decimal.Decimal {
	if l.Requirement.Valid {
		return l.Requirement.Decimal
	}
	return l.ConsumptionPerUnit
}

// PersistableRequirement returns the requirement only when it is known.
func (l MaterialLine) PersistableRequirement() (decimal.Decimal, bool) {
	if !l.Requirement.Valid {
		return decimal.Zero, false
	}
	return l.Requirement.Decimal, true
}

// RequirementOrZero is used for aggregates, where an unset requirement counts as nothing.
func (l MaterialLine) RequirementOrZero() decimal.Decimal {
	value, _ := l.PersistableRequirement()
	return value
}

// Rebalance recomputes the derived balance.
func (l *MaterialLine) Rebalance() {
	l.Balance = Balance(l.RequirementOrZero(), l.Available, l.Issued)
}

// Balance is the unmet part of a requirement: max(0, requirement - available - issued).
func Balance(requirement, available, issued decimal.Decimal) decimal.Decimal {
	return quantity.Normalize(quantity.ClampZero(requirement.Sub(available).Sub(issued)))
}

// LineFromModel converts a persisted line.
func LineFromModel(row models.MaterialLine) MaterialLine {
	return MaterialLine{
		ID:                 row.ID,
		Category:           row.Category,
		Position:           row.Position,
		ItemID:             row.ItemID,
		Name:               row.Name,
		Specification:      row.Specification,
		Department:         row.Department,
		ConsumptionPerUnit: quantity.Normalize(row.ConsumptionPerUnit),
		Requirement:        decimal.NewNullDecimal(quantity.Normalize(row.Requirement)),
		Available:          quantity.Normalize(row.Available),
		Issued:             quantity.Normalize(row.Issued),
		Balance:            quantity.Normalize(row.Balance),
	}
}

// ToModel converts a line for persistence. It reports false when the
// requirement is unset and the line must not be written.
func (l MaterialLine) ToModel(requisitionID uuid.UUID) (models.MaterialLine, bool) {
	requirement, ok := l.PersistableRequirement()
	if !ok {
		return models.MaterialLine{}, false
	}
	return models.MaterialLine{
		ID:                 l.ID,
		RequisitionID:      requisitionID,
		Category:           l.Category,
		Position:           l.Position,
		ItemID:             l.ItemID,
		Name:               l.Name,
		Specification:      l.Specification,
		Department:         l.Department,
		ConsumptionPerUnit: l.ConsumptionPerUnit,
		Requirement:        requirement,
		Available:          l.Available,
		Issued:             l.Issued,
		Balance:            Balance(requirement, l.Available, l.Issued),
	}, true
}

// Totals sums requirement and issued quantities over lines.
func Totals(lines []MaterialLine) (required, issued decimal.Decimal) {
	required, issued = decimal.Zero, decimal.Zero
	for _, line := range lines {
		required = required.Add(line.RequirementOrZero())
		issued = issued.Add(line.Issued)
	}
	return quantity.Normalize(required), quantity.Normalize(issued)
}

// ByCategory groups lines into the five category sequences, keeping order.
func ByCategory(lines []MaterialLine) map[enums.CostCategory][]MaterialLine {
	out := make(map[enums.CostCategory][]MaterialLine, len(enums.CostCategories))
	for _, category := range enums.CostCategories {
		out[category] = []MaterialLine{}
	}
	for _, line := range lines {
		out[line.Category] = append(out[line.Category], line)
	}
	return out
}
