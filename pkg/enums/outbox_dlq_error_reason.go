package enums

import (
	"fmt"
	"slices"
	"strings"
)

// OutboxDLQErrorReason explains why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: the broker kept failing until attempts ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row itself is unusable (bad envelope or payload).
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnroutable: no topic publisher exists for the event.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

var OutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonUnroutable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(OutboxDLQErrorReasons, r)
}

// Transient reports whether replaying without changing the row can succeed.
// Non-retryable rows need their payload or the registry fixed first.
func (r OutboxDLQErrorReason) Transient() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonUnroutable
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(strings.ToLower(strings.TrimSpace(value)))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid dead-letter reason %q", value)
	}
	return r, nil
}
