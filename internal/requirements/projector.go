package requirements

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lastline-erp/lastline-backend/internal/consumption"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Project turns cost lines into material lines for the given allocation.
// New lines start with nothing available or issued.
func Project(allocation Allocation, costLines []consumption.CostLine) []MaterialLine {
	out := make([]MaterialLine, 0, len(costLines))
	for _, cost := range costLines {
		line := MaterialLine{
			Category:           cost.Category,
			Position:           cost.Position,
			ItemID:             cost.ItemID,
			Name:               cost.ItemName,
			Specification:      cost.Specification,
			Department:         cost.Department,
			ConsumptionPerUnit: quantity.Normalize(cost.ConsumptionPerUnit),
			Available:          decimal.Zero,
			Issued:             decimal.Zero,
		}
		line.Requirement = requirementFor(allocation, line.ConsumptionPerUnit)
		line.Rebalance()
		out = append(out, line)
	}
	SortLines(out)
	return out
}

// Reproject recomputes requirement and balance for existing lines after an
// allocation change. Available and issued are carried over untouched.
func Reproject(allocation Allocation, existing []MaterialLine) []MaterialLine {
	out := make([]MaterialLine, len(existing))
	for i, line := range existing {
		line.Requirement = requirementFor(allocation, line.ConsumptionPerUnit)
		line.Rebalance()
		out[i] = line
	}
	return out
}

// Sync rebuilds a requisition's lines from the current cost sheet. Lines that
// still exist keep their id and store quantities; lines dropped from the sheet
// survive only if something was already issued against them.
func Sync(allocation Allocation, costLines []consumption.CostLine, existing []MaterialLine) []MaterialLine {
	previous := make(map[Key]MaterialLine, len(existing))
	for _, line := range existing {
		previous[line.Key()] = line
	}

	projected := Project(allocation, costLines)
	seen := make(map[Key]struct{}, len(projected))
	out := make([]MaterialLine, 0, len(projected))
	for _, line := range projected {
		key := line.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if prior, ok := previous[key]; ok {
			line.ID = prior.ID
			line.Available = prior.Available
			line.Issued = prior.Issued
			line.Rebalance()
		}
		out = append(out, line)
	}
	for _, line := range existing {
		if _, ok := seen[line.Key()]; ok {
			continue
		}
		if line.Issued.IsPositive() {
			kept := Reproject(allocation, []MaterialLine{line})
			out = append(out, kept[0])
		}
	}
	SortLines(out)
	return out
}

func requirementFor(allocation Allocation, perUnit decimal.Decimal) decimal.NullDecimal {
	value, ok := allocation.Value()
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(quantity.Normalize(perUnit.Mul(value)))
}

// SortLines orders lines by category, then sheet position, then item id.
func SortLines(lines []MaterialLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		ci, cj := lines[i].Category.Position(), lines[j].Category.Position()
		if ci != cj {
			return ci < cj
		}
		if lines[i].Position != lines[j].Position {
			return lines[i].Position < lines[j].Position
		}
		return lines[i].ItemID < lines[j].ItemID
	})
}
