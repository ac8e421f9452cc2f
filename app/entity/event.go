package entity

import "time"

const (
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypePaymentPending   = "PAYMENT_PENDING"
)

// Event is the immutable record of a domain occurrence. PaymentID and
// TokenID are weak references: deleting the referenced row keeps the event.
type Event struct {
	ID uint64

	UUID      string
	ProjectID uint64
	Type      string
	SessionID string

	PaymentID *uint64
	TokenID   *uint64

	Metadata map[string]string

	// OccurredAt is domain time, CreatedAt is recording time. Recording
	// can lag occurrence, so both are kept.
	OccurredAt time.Time
	CreatedAt  time.Time
}
