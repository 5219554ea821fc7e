package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateProductionCard      OutboxAggregateType = "production_card"
	AggregateMaterialRequisition OutboxAggregateType = "material_requisition"
	AggregateProject             OutboxAggregateType = "project"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProductionCard,
	AggregateMaterialRequisition,
	AggregateProject,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCardAllocated               OutboxEventType = "card_allocated"
	EventCardDeleted                 OutboxEventType = "card_deleted"
	EventOrderQuantityUpdated        OutboxEventType = "order_quantity_updated"
	EventRequisitionStatusChanged    OutboxEventType = "requisition_status_changed"
	EventRequisitionIssuanceRecorded OutboxEventType = "requisition_issuance_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCardAllocated,
	EventCardDeleted,
	EventOrderQuantityUpdated,
	EventRequisitionStatusChanged,
	EventRequisitionIssuanceRecorded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
