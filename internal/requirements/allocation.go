package requirements

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Allocation is a card's allocation quantity with an explicit unset state.
// An unset allocation never turns into a zero requirement.
type Allocation struct {
	value decimal.Decimal
	set   bool
}

// Unset returns the allocation of a card whose quantity has not been entered.
func Unset() Allocation {
	return Allocation{}
}

// AllocationOf wraps a known quantity.
func AllocationOf(d decimal.Decimal) Allocation {
	return Allocation{value: quantity.Normalize(d), set: true}
}

// ParseAllocation reads user input. Blank text is unset; anything else must be
// a non-negative number.
func ParseAllocation(text string) (Allocation, error) {
	if strings.TrimSpace(text) == "" {
		return Unset(), nil
	}
	d, ok := quantity.Parse(text)
	if !ok {
		return Unset(), pkgerrors.New(pkgerrors.CodeValidation, "allocation must be a number")
	}
	if d.IsNegative() {
		return Unset(), pkgerrors.New(pkgerrors.CodeValidation, "allocation must not be negative")
	}
	return AllocationOf(d), nil
}

// IsSet reports whether a quantity was supplied.
func (a Allocation) IsSet() bool {
	return a.set
}

// Value returns the quantity and whether it is set.
func (a Allocation) Value() (decimal.Decimal, bool) {
	return a.value, a.set
}

func (a Allocation) String() string {
	if !a.set {
		return "unset"
	}
	return a.value.String()
}
