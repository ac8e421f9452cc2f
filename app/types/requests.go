package types

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

// HeaderIdempotencyKey lets callers pass the idempotency key out of band.
const HeaderIdempotencyKey = "X-Idempotency-Key"

type CreatePaymentRequest struct {
	ProjectID        uint64            `json:"project_id"`
	TokenID          *uint64           `json:"token_id,omitempty"`
	AmountUnits      int64             `json:"amount_units"`
	Currency         string            `json:"currency"`
	RecipientAddress string            `json:"recipient_address"`
	TxHash           string            `json:"tx_hash,omitempty"`
	SessionID        string            `json:"session_id"`
	IdempotencyKey   string            `json:"idempotency_key,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.RecipientAddress = strings.TrimSpace(body.RecipientAddress)
	body.TxHash = strings.TrimSpace(body.TxHash)
	body.SessionID = strings.TrimSpace(body.SessionID)
	body.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = strings.TrimSpace(ctx.Request().Header.Get(HeaderIdempotencyKey))
	}

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if r.ProjectID == 0 {
		return errors.New("project_id is required")
	}
	if r.AmountUnits <= 0 {
		return errors.New("amount_units must be > 0")
	}
	if r.Currency != entity.CurrencyUSDC && r.Currency != entity.CurrencyUSDT {
		return errors.New("currency must be USDC or USDT")
	}
	if !common.IsHexAddress(r.RecipientAddress) {
		return errors.New("recipient_address must be a hex address")
	}
	if r.TxHash != "" && (!strings.HasPrefix(r.TxHash, "0x") || len(r.TxHash) != 66) {
		return errors.New("tx_hash must be a 32-byte hex hash")
	}
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

type ListPaymentsRequest struct {
	ProjectID uint64
	SessionID string
	Status    string
	Currency  string
	Limit     int32
	Offset    int32
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	projectID, err := optionalUintQuery(ctx, "project_id")
	if err != nil {
		return nil, err
	}
	limit, offset, err := paginationQuery(ctx)
	if err != nil {
		return nil, err
	}

	return &ListPaymentsRequest{
		ProjectID: projectID,
		SessionID: strings.TrimSpace(ctx.QueryParam("session_id")),
		Status:    strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
		Currency:  strings.ToUpper(strings.TrimSpace(ctx.QueryParam("currency"))),
		Limit:     limit,
		Offset:    offset,
	}, nil
}

func (r *ListPaymentsRequest) Validate() error {
	switch r.Status {
	case "", entity.PaymentStatusPending, entity.PaymentStatusConfirmed, entity.PaymentStatusFailed:
	default:
		return errors.New("status must be PENDING, CONFIRMED, or FAILED")
	}
	switch r.Currency {
	case "", entity.CurrencyUSDC, entity.CurrencyUSDT:
	default:
		return errors.New("currency must be USDC or USDT")
	}
	return nil
}

type CreateWebhookEndpointRequest struct {
	ProjectID  uint64   `json:"project_id"`
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
}

func NewCreateWebhookEndpointRequestFromContext(ctx echo.Context) (*CreateWebhookEndpointRequest, error) {
	var body CreateWebhookEndpointRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.URL = strings.TrimSpace(body.URL)
	body.Secret = strings.TrimSpace(body.Secret)
	for i, t := range body.EventTypes {
		body.EventTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	return &body, nil
}

func (r *CreateWebhookEndpointRequest) Validate() error {
	if r.ProjectID == 0 {
		return errors.New("project_id is required")
	}
	if err := validateEndpointURL(r.URL); err != nil {
		return err
	}
	return validateEventTypes(r.EventTypes)
}

type UpdateWebhookEndpointRequest struct {
	ID         uint64   `json:"-"`
	URL        string   `json:"url"`
	Status     string   `json:"status"`
	EventTypes []string `json:"event_types"`
}

func NewUpdateWebhookEndpointRequestFromContext(ctx echo.Context) (*UpdateWebhookEndpointRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, errors.New("id must be a positive integer")
	}

	var body UpdateWebhookEndpointRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.ID = id
	body.URL = strings.TrimSpace(body.URL)
	body.Status = strings.ToUpper(strings.TrimSpace(body.Status))
	for i, t := range body.EventTypes {
		body.EventTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	return &body, nil
}

func (r *UpdateWebhookEndpointRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("id is required")
	}
	if err := validateEndpointURL(r.URL); err != nil {
		return err
	}
	// REVOKED is reachable only through the revoke action; it is one-way.
	if r.Status != entity.EndpointStatusActive && r.Status != entity.EndpointStatusInactive {
		return errors.New("status must be ACTIVE or INACTIVE")
	}
	return validateEventTypes(r.EventTypes)
}

type ListWebhookEndpointsRequest struct {
	ProjectID uint64
	Limit     int32
	Offset    int32
}

func NewListWebhookEndpointsRequestFromContext(ctx echo.Context) (*ListWebhookEndpointsRequest, error) {
	projectID, err := optionalUintQuery(ctx, "project_id")
	if err != nil {
		return nil, err
	}
	limit, offset, err := paginationQuery(ctx)
	if err != nil {
		return nil, err
	}

	return &ListWebhookEndpointsRequest{ProjectID: projectID, Limit: limit, Offset: offset}, nil
}

func (r *ListWebhookEndpointsRequest) Validate() error {
	if r.ProjectID == 0 {
		return errors.New("project_id is required")
	}
	return nil
}

type ListEventsRequest struct {
	ProjectID uint64
	SessionID string
	Type      string
	Limit     int32
	Offset    int32
}

func NewListEventsRequestFromContext(ctx echo.Context) (*ListEventsRequest, error) {
	projectID, err := optionalUintQuery(ctx, "project_id")
	if err != nil {
		return nil, err
	}
	limit, offset, err := paginationQuery(ctx)
	if err != nil {
		return nil, err
	}

	return &ListEventsRequest{
		ProjectID: projectID,
		SessionID: strings.TrimSpace(ctx.QueryParam("session_id")),
		Type:      strings.ToUpper(strings.TrimSpace(ctx.QueryParam("type"))),
		Limit:     limit,
		Offset:    offset,
	}, nil
}

func (r *ListEventsRequest) Validate() error {
	if r.Type == "" {
		return nil
	}
	return validateEventTypes([]string{r.Type})
}

type ListDeliveriesRequest struct {
	EventID    uint64
	EndpointID uint64
	Status     string
	Limit      int32
	Offset     int32
}

func NewListDeliveriesRequestFromContext(ctx echo.Context) (*ListDeliveriesRequest, error) {
	eventID, err := optionalUintQuery(ctx, "event_id")
	if err != nil {
		return nil, err
	}
	endpointID, err := optionalUintQuery(ctx, "endpoint_id")
	if err != nil {
		return nil, err
	}
	limit, offset, err := paginationQuery(ctx)
	if err != nil {
		return nil, err
	}

	return &ListDeliveriesRequest{
		EventID:    eventID,
		EndpointID: endpointID,
		Status:     strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func (r *ListDeliveriesRequest) Validate() error {
	switch r.Status {
	case "", entity.DeliveryStatusPending, entity.DeliveryStatusDelivered,
		entity.DeliveryStatusFailed, entity.DeliveryStatusRetrying:
		return nil
	default:
		return errors.New("status must be PENDING, DELIVERED, FAILED, or RETRYING")
	}
}

// IDFromContext parses the :id path parameter.
func IDFromContext(ctx echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func validateEndpointURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.New("url must be a valid http(s) URL")
	}
	return nil
}

func validateEventTypes(eventTypes []string) error {
	if len(eventTypes) == 0 {
		return errors.New("event_types must not be empty")
	}
	for _, t := range eventTypes {
		switch t {
		case entity.EventTypePaymentCompleted, entity.EventTypePaymentFailed, entity.EventTypePaymentPending:
		default:
			return errors.New("event_types contains an unknown type: " + t)
		}
	}
	return nil
}

func optionalUintQuery(ctx echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be a positive integer")
	}
	return value, nil
}

func paginationQuery(ctx echo.Context) (int32, int32, error) {
	limit := int32(0)
	offset := int32(0)

	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || value < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
		limit = int32(value)
	}
	if raw := strings.TrimSpace(ctx.QueryParam("offset")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || value < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = int32(value)
	}

	return limit, offset, nil
}
