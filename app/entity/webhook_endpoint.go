package entity

import "time"

const (
	EndpointStatusActive   = "ACTIVE"
	EndpointStatusInactive = "INACTIVE"
	EndpointStatusRevoked  = "REVOKED"
)

type WebhookEndpoint struct {
	ID uint64

	ProjectID uint64
	URL       string

	// Secret signs outgoing payloads. It is never logged and never
	// included in delivery ledger rows.
	Secret string

	Status     string
	EventTypes []string

	LastTimeHit *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscribedTo reports whether the endpoint subscribes to the event type.
func (e *WebhookEndpoint) SubscribedTo(eventType string) bool {
	for _, t := range e.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
