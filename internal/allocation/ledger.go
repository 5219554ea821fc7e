package allocation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Card is the slice of a production card the ledger needs for bookkeeping.
type Card struct {
	ID         uuid.UUID
	Allocation decimal.Decimal
}

// Summary describes how much of a project's order quantity is spoken for.
type Summary struct {
	OrderQuantity decimal.Decimal `json:"order_quantity"`
	Allocated     decimal.Decimal `json:"allocated"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// Decision is the outcome of checking a requested allocation against capacity.
type Decision struct {
	Requested decimal.Decimal `json:"requested"`
	Accepted  decimal.Decimal `json:"accepted"`
	Capacity  decimal.Decimal `json:"capacity"`
	Clamped   bool            `json:"clamped"`
	Warning   string          `json:"warning,omitempty"`
}

// Allocated sums the allocations of every card except excluding.
func Allocated(cards []Card, excluding *uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, card := range cards {
		if excluding != nil && card.ID == *excluding {
			continue
		}
		total = total.Add(card.Allocation)
	}
	return quantity.Normalize(total)
}

// Capacity is the quantity still allocatable: order quantity minus the other
// cards' allocations, never below zero. Excluding a card gives the room
// available when editing it.
func Capacity(orderQuantity decimal.Decimal, cards []Card, excluding *uuid.UUID) decimal.Decimal {
	return Summarize(orderQuantity, cards, excluding).Remaining
}

// Summarize computes order, allocated and remaining quantities in one pass.
func Summarize(orderQuantity decimal.Decimal, cards []Card, excluding *uuid.UUID) Summary {
	order := quantity.ClampZero(quantity.Normalize(orderQuantity))
	allocated := Allocated(cards, excluding)
	return Summary{
		OrderQuantity: order,
		Allocated:     allocated,
		Remaining:     quantity.Normalize(quantity.ClampZero(order.Sub(allocated))),
	}
}

// Check validates a requested allocation against capacity. Negative requests
// are rejected. Requests above capacity are clamped to it and carry a warning.
func Check(requested, capacity decimal.Decimal) (Decision, error) {
	requested = quantity.Normalize(requested)
	capacity = quantity.ClampZero(quantity.Normalize(capacity))
	if requested.IsNegative() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "allocation quantity must not be negative").
			WithDetails(map[string]any{"requested": requested.StringFixed(quantity.Scale)})
	}
	decision := Decision{
		Requested: requested,
		Accepted:  requested,
		Capacity:  capacity,
	}
	if requested.GreaterThan(capacity) {
		// noise within tolerance snaps to capacity without a warning
		decision.Accepted = capacity
		if quantity.Exceeds(requested, capacity) {
			decision.Clamped = true
			decision.Warning = ClampWarning(capacity)
		}
	}
	return decision, nil
}

// ClampWarning is the user-facing message for a clamped allocation.
func ClampWarning(capacity decimal.Decimal) string {
	return fmt.Sprintf("allocation exceeds remaining capacity; clamped to %s", format(capacity))
}

// Enforce is the write-time check: unlike Check it never clamps, it refuses
// anything above capacity, however small the excess.
func Enforce(requested, capacity decimal.Decimal) error {
	requested = quantity.Normalize(requested)
	capacity = quantity.ClampZero(quantity.Normalize(capacity))
	if requested.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "allocation quantity must not be negative")
	}
	if requested.GreaterThan(capacity) {
		return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "allocation exceeds remaining capacity").
			WithDetails(map[string]any{
				"remaining_capacity": format(capacity),
				"requested":          format(requested),
			})
	}
	return nil
}

func format(d decimal.Decimal) string {
	return quantity.Normalize(d).String()
}
