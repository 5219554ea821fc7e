package enums

import "fmt"

// RequisitionStatus tracks the lifecycle of a material requisition.
type RequisitionStatus string

const (
	RequisitionStatusPendingAvailabilityCheck RequisitionStatus = "pending_availability_check"
	RequisitionStatusPendingToStore           RequisitionStatus = "pending_to_store"
	RequisitionStatusPartiallyIssued          RequisitionStatus = "partially_issued"
	RequisitionStatusIssued                   RequisitionStatus = "issued"
	RequisitionStatusCancelled                RequisitionStatus = "cancelled"
)

// RequisitionStatuses lists every status in lifecycle order.
var RequisitionStatuses = []RequisitionStatus{
	RequisitionStatusPendingAvailabilityCheck,
	RequisitionStatusPendingToStore,
	RequisitionStatusPartiallyIssued,
	RequisitionStatusIssued,
	RequisitionStatusCancelled,
}

// String implements fmt.Stringer.
func (s RequisitionStatus) String() string {
	return string(s)
}

// Label returns the human readable status shown to store operators.
func (s RequisitionStatus) Label() string {
	switch s {
	case RequisitionStatusPendingAvailabilityCheck:
		return "Pending Availability Check"
	case RequisitionStatusPendingToStore:
		return "Pending to Store"
	case RequisitionStatusPartiallyIssued:
		return "Partially Issued"
	case RequisitionStatusIssued:
		return "Issued"
	case RequisitionStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// IsValid reports whether the value is a known RequisitionStatus.
func (s RequisitionStatus) IsValid() bool {
	for _, candidate := range RequisitionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRequisitionStatus converts raw input into a RequisitionStatus.
func ParseRequisitionStatus(value string) (RequisitionStatus, error) {
	for _, candidate := range RequisitionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid requisition status %q", value)
}
