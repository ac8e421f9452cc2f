package entity

import "time"

const (
	DeliveryStatusPending   = "PENDING"
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusFailed    = "FAILED"
	DeliveryStatusRetrying  = "RETRYING"
)

// EventDelivery is one ledger row per delivery attempt. Rows are append-only:
// the only permitted mutation is finalizing the in-flight PENDING row.
type EventDelivery struct {
	ID uint64

	EventID    uint64
	EndpointID uint64

	// AttemptNumber is 1-based and gapless per (event, endpoint) pair,
	// enforced by a unique key on (event_id, endpoint_id, attempt_number).
	AttemptNumber int32

	Status         string
	HTTPStatusCode *int32
	ErrorMessage   *string
	ResponseBody   *string

	NextAttemptAt *time.Time

	CreatedAt   time.Time
	DeliveredAt *time.Time
}
