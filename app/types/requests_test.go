package types

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

func paymentBody() string {
	return `{
		"project_id": 10,
		"amount_units": 5000000,
		"currency": "usdc",
		"recipient_address": "0xAABBCCDDEEFF00112233445566778899AABBCCDD",
		"session_id": "sess-1"
	}`
}

func jsonContext(t *testing.T, body string, headers map[string]string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("POST", "/payments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestCreatePaymentRequestNormalizes(t *testing.T) {
	ctx := jsonContext(t, paymentBody(), nil)

	req, err := NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parsing request: %v", err)
	}
	if req.Currency != entity.CurrencyUSDC {
		t.Fatalf("expected uppercased currency, got %s", req.Currency)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreatePaymentRequestIdempotencyHeaderFallback(t *testing.T) {
	ctx := jsonContext(t, paymentBody(), map[string]string{HeaderIdempotencyKey: "idem-7"})

	req, err := NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parsing request: %v", err)
	}
	if req.IdempotencyKey != "idem-7" {
		t.Fatalf("expected header idempotency key, got %q", req.IdempotencyKey)
	}
}

func TestCreatePaymentRequestValidation(t *testing.T) {
	base := func() *CreatePaymentRequest {
		return &CreatePaymentRequest{
			ProjectID:        10,
			AmountUnits:      5_000_000,
			Currency:         entity.CurrencyUSDC,
			RecipientAddress: "0xaabbccddeeff00112233445566778899aabbccdd",
			SessionID:        "sess-1",
		}
	}

	tests := []struct {
		name   string
		mutate func(r *CreatePaymentRequest)
	}{
		{"missing project", func(r *CreatePaymentRequest) { r.ProjectID = 0 }},
		{"zero amount", func(r *CreatePaymentRequest) { r.AmountUnits = 0 }},
		{"negative amount", func(r *CreatePaymentRequest) { r.AmountUnits = -1 }},
		{"unknown currency", func(r *CreatePaymentRequest) { r.Currency = "DOGE" }},
		{"bad recipient", func(r *CreatePaymentRequest) { r.RecipientAddress = "not-an-address" }},
		{"short tx hash", func(r *CreatePaymentRequest) { r.TxHash = "0x1234" }},
		{"missing session", func(r *CreatePaymentRequest) { r.SessionID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(req)
			if err := req.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected the base request valid, got %v", err)
	}
}

func TestCreateWebhookEndpointRequestValidation(t *testing.T) {
	req := &CreateWebhookEndpointRequest{
		ProjectID:  10,
		URL:        "https://merchant.example.com/hooks",
		EventTypes: []string{entity.EventTypePaymentCompleted},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.URL = "ftp://merchant.example.com"
	if err := req.Validate(); err == nil {
		t.Fatal("expected rejection of a non-http scheme")
	}

	req.URL = "https://merchant.example.com/hooks"
	req.EventTypes = []string{"PAYMENT_UNKNOWN"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected rejection of an unknown event type")
	}

	req.EventTypes = nil
	if err := req.Validate(); err == nil {
		t.Fatal("expected rejection of empty subscriptions")
	}
}

func TestUpdateWebhookEndpointRequestRejectsRevokedStatus(t *testing.T) {
	req := &UpdateWebhookEndpointRequest{
		ID:         1,
		URL:        "https://merchant.example.com/hooks",
		Status:     entity.EndpointStatusRevoked,
		EventTypes: []string{entity.EventTypePaymentCompleted},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected REVOKED rejected outside the revoke action")
	}
}

func TestListDeliveriesRequestValidation(t *testing.T) {
	req := &ListDeliveriesRequest{Status: "SOMETIMES"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected rejection of an unknown delivery status")
	}

	req.Status = entity.DeliveryStatusRetrying
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid status, got %v", err)
	}
}
