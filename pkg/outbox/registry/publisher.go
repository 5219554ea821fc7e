package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lastline-erp/lastline-backend/pkg/config"
	"github.com/lastline-erp/lastline-backend/pkg/db/models"
	"github.com/lastline-erp/lastline-backend/pkg/enums"
	"github.com/lastline-erp/lastline-backend/pkg/outbox"
	"github.com/lastline-erp/lastline-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
// Allocation events fall back to the requisition topic when no dedicated topic is set.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RequisitionTopic == "" {
		return nil, fmt.Errorf("requisition topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	requisitionTopic := cfg.RequisitionTopic
	allocationTopic := cfg.AllocationTopic
	if allocationTopic == "" {
		allocationTopic = requisitionTopic
	}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventCardAllocated,
			AggregateType:  enums.AggregateProductionCard,
			Topic:          allocationTopic,
			PayloadFactory: func() interface{} { return &payloads.CardAllocatedEvent{} },
		},
		{
			EventType:      enums.EventCardDeleted,
			AggregateType:  enums.AggregateProductionCard,
			Topic:          allocationTopic,
			PayloadFactory: func() interface{} { return &payloads.CardDeletedEvent{} },
		},
		{
			EventType:      enums.EventOrderQuantityUpdated,
			AggregateType:  enums.AggregateProject,
			Topic:          allocationTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderQuantityUpdatedEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventRequisitionStatusChanged,
			AggregateType:  enums.AggregateMaterialRequisition,
			Topic:          requisitionTopic,
			PayloadFactory: func() interface{} { return &payloads.RequisitionStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventRequisitionIssuanceRecorded,
			AggregateType:  enums.AggregateMaterialRequisition,
			Topic:          requisitionTopic,
			PayloadFactory: func() interface{} { return &payloads.RequisitionIssuanceRecordedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	if !envelope.HasData() {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := envelope.DecodeData(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
