package types

// WebhookPayload is the canonical body POSTed to subscriber endpoints. The
// HMAC signature covers the exact serialized bytes of this structure.
type WebhookPayload struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	OccurredAt string             `json:"occurredAt"`
	Data       WebhookPayloadData `json:"data"`
}

type WebhookPayloadData struct {
	PaymentID uint64            `json:"payment_id,omitempty"`
	SessionID string            `json:"session_id"`
	ProjectID uint64            `json:"project_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
