package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type Payment struct {
	ID                  uint64            `json:"id"`
	ProjectID           uint64            `json:"project_id"`
	TokenID             uint64            `json:"token_id,omitempty"`
	AmountUnits         int64             `json:"amount_units"`
	Currency            string            `json:"currency"`
	RecipientAddress    string            `json:"recipient_address"`
	TxHash              string            `json:"tx_hash,omitempty"`
	BlockNumber         uint64            `json:"block_number,omitempty"`
	Status              string            `json:"status"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	SessionID           string            `json:"session_id"`
	IdempotencyKey      string            `json:"idempotency_key,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	MonitoringStartedAt string            `json:"monitoring_started_at"`
	ConfirmedAt         string            `json:"confirmed_at,omitempty"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type WebhookEndpoint struct {
	ID          uint64   `json:"id"`
	ProjectID   uint64   `json:"project_id"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret,omitempty"`
	Status      string   `json:"status"`
	EventTypes  []string `json:"event_types"`
	LastTimeHit string   `json:"last_time_hit,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type WebhookEndpointEnvelopeResponse struct {
	Endpoint *WebhookEndpoint `json:"endpoint"`
}

type ListWebhookEndpointsResponse struct {
	Endpoints []*WebhookEndpoint `json:"endpoints"`
}

type Event struct {
	ID         uint64            `json:"id"`
	UUID       string            `json:"uuid"`
	ProjectID  uint64            `json:"project_id"`
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	PaymentID  uint64            `json:"payment_id,omitempty"`
	TokenID    uint64            `json:"token_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt string            `json:"occurred_at"`
	CreatedAt  string            `json:"created_at"`
}

type EventEnvelopeResponse struct {
	Event *Event `json:"event"`
}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
}

type EventDelivery struct {
	ID             uint64 `json:"id"`
	EventID        uint64 `json:"event_id"`
	EndpointID     uint64 `json:"endpoint_id"`
	AttemptNumber  int32  `json:"attempt_number"`
	Status         string `json:"status"`
	HTTPStatusCode int32  `json:"http_status_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	ResponseBody   string `json:"response_body,omitempty"`
	NextAttemptAt  string `json:"next_attempt_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

type ListDeliveriesResponse struct {
	Deliveries []*EventDelivery `json:"deliveries"`
}
