package requisitions

import (
	"github.com/lastline-erp/lastline-backend/internal/requirements"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/quantity"
)

// Derive computes the issuance status from line totals. Full issuance is
// checked first, so a requisition that requires nothing is issued.
func Derive(lines []requirements.MaterialLine) enums.RequisitionStatus {
	required, issued := requirements.Totals(lines)
	switch {
	case quantity.AtLeast(issued, required):
		return enums.RequisitionStatusIssued
	case issued.IsPositive():
		return enums.RequisitionStatusPartiallyIssued
	default:
		return enums.RequisitionStatusPendingToStore
	}
}

// Recompute is run after every line edit. Cancelled and not-yet-sent
// requisitions keep their status; only explicit actions move them.
func Recompute(current enums.RequisitionStatus, lines []requirements.MaterialLine) enums.RequisitionStatus {
	switch current {
	case enums.RequisitionStatusCancelled, enums.RequisitionStatusPendingAvailabilityCheck:
		return current
	default:
		return Derive(lines)
	}
}

// SendToStore leaves the availability check. Requisitions already with the
// store are returned unchanged.
func SendToStore(current enums.RequisitionStatus, lines []requirements.MaterialLine) (enums.RequisitionStatus, error) {
	switch current {
	case enums.RequisitionStatusCancelled:
		return current, transitionError(current, "send to store")
	case enums.RequisitionStatusPendingAvailabilityCheck:
		return Derive(lines), nil
	default:
		return current, nil
	}
}

// Cancel is allowed from every state except cancelled.
func Cancel(current enums.RequisitionStatus) (enums.RequisitionStatus, error) {
	if current == enums.RequisitionStatusCancelled {
		return current, transitionError(current, "cancel")
	}
	return enums.RequisitionStatusCancelled, nil
}

// Reactivate is the only way out of cancelled. A requisition that never
// reached the store goes back to the availability check.
func Reactivate(current enums.RequisitionStatus, sentToStore bool, lines []requirements.MaterialLine) (enums.RequisitionStatus, error) {
	if current != enums.RequisitionStatusCancelled {
		return current, transitionError(current, "reactivate")
	}
	if !sentToStore {
		return enums.RequisitionStatusPendingAvailabilityCheck, nil
	}
	return Derive(lines), nil
}

// CanIssue reports whether issued quantities may change in this status.
func CanIssue(current enums.RequisitionStatus) bool {
	switch current {
	case enums.RequisitionStatusPendingToStore, enums.RequisitionStatusPartiallyIssued, enums.RequisitionStatusIssued:
		return true
	default:
		return false
	}
}

func transitionError(current enums.RequisitionStatus, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot "+action+" a requisition that is "+current.Label()).
		WithDetails(map[string]any{"status": current, "action": action})
}
