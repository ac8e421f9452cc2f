package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/config"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		RequiredConfirmations: 6,
		Timeout:               time.Hour,
		BatchSize:             50,
	}
}

func seedPendingPayment(t *testing.T, fix *fixture) *entity.Payment {
	t.Helper()
	now := time.Now().UTC()
	payment := &entity.Payment{
		ProjectID:           10,
		AmountUnits:         5_000_000,
		Currency:            entity.CurrencyUSDC,
		RecipientAddress:    "0xaabbccddeeff00112233445566778899aabbccdd",
		Status:              entity.PaymentStatusPending,
		SessionID:           "sess-1",
		MonitoringStartedAt: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := fix.payments.Create(context.Background(), payment); err != nil {
		t.Fatalf("seeding payment: %v", err)
	}
	return payment
}

func TestRunMonitorBatchConfirmsPayment(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fix := newFixture(testMonitoringConfig(), fastWebhooksConfig(8))
	payment := seedPendingPayment(t, fix)
	seedEndpoint(t, fix, server.URL)

	fix.source.observations[payment.ID] = &chain.Observation{
		TxHash:        "0x1122334455667788990011223344556677889900112233445566778899001122",
		BlockNumber:   500,
		Confirmations: 8,
		AmountUnits:   payment.AmountUnits,
		Recipient:     payment.RecipientAddress,
		Currency:      payment.Currency,
	}

	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch: %v", err)
	}

	stored, _ := fix.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", stored.Status)
	}
	if stored.TxHash == nil || stored.BlockNumber == nil || stored.ConfirmedAt == nil {
		t.Fatal("expected chain details recorded on the confirmed payment")
	}

	event, _ := fix.events.FindByPaymentAndType(context.Background(), payment.ID, entity.EventTypePaymentCompleted)
	if event == nil {
		t.Fatal("expected a PAYMENT_COMPLETED event recorded")
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("expected one webhook delivery, got %d", hits)
	}

	// Re-running is a no-op: the payment is terminal.
	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch second pass: %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("expected no second delivery, got %d", hits)
	}
}

func TestRunMonitorBatchFailsOnAmountMismatch(t *testing.T) {
	fix := newFixture(testMonitoringConfig(), fastWebhooksConfig(8))
	payment := seedPendingPayment(t, fix)

	fix.source.observations[payment.ID] = &chain.Observation{
		TxHash:        "0x1122334455667788990011223344556677889900112233445566778899001122",
		BlockNumber:   500,
		Confirmations: 8,
		AmountUnits:   payment.AmountUnits - 1,
		Recipient:     payment.RecipientAddress,
		Currency:      payment.Currency,
	}

	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch: %v", err)
	}

	stored, _ := fix.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != FailureReasonAmountMismatch {
		t.Fatalf("expected amount_mismatch, got %v", stored.FailureReason)
	}

	event, _ := fix.events.FindByPaymentAndType(context.Background(), payment.ID, entity.EventTypePaymentFailed)
	if event == nil {
		t.Fatal("expected a PAYMENT_FAILED event recorded")
	}
	if event.Metadata["failure_reason"] != FailureReasonAmountMismatch {
		t.Fatalf("expected failure reason in event metadata, got %v", event.Metadata)
	}
}

func TestRunMonitorBatchTimesOut(t *testing.T) {
	fix := newFixture(testMonitoringConfig(), fastWebhooksConfig(8))
	payment := seedPendingPayment(t, fix)

	stored := fix.payments.payments[payment.ID]
	stored.MonitoringStartedAt = time.Now().UTC().Add(-2 * time.Hour)

	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch: %v", err)
	}

	after, _ := fix.payments.FindByID(context.Background(), payment.ID)
	if after.Status != entity.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", after.Status)
	}
	if after.FailureReason == nil || *after.FailureReason != FailureReasonTimeout {
		t.Fatalf("expected timeout, got %v", after.FailureReason)
	}
}

func TestRunMonitorBatchFailsOnRevokedToken(t *testing.T) {
	fix := newFixture(testMonitoringConfig(), fastWebhooksConfig(8))
	payment := seedPendingPayment(t, fix)

	tokenID := uint64(7)
	fix.tokens.tokens[tokenID] = &entity.ApiToken{
		ID:        tokenID,
		ProjectID: payment.ProjectID,
		Status:    entity.TokenStatusRevoked,
	}
	stored := fix.payments.payments[payment.ID]
	stored.TokenID = &tokenID

	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch: %v", err)
	}

	after, _ := fix.payments.FindByID(context.Background(), payment.ID)
	if after.Status != entity.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", after.Status)
	}
	if after.FailureReason == nil || *after.FailureReason != FailureReasonTokenRevoked {
		t.Fatalf("expected token_revoked, got %v", after.FailureReason)
	}
}

func TestRunMonitorBatchLeavesUnobservedPaymentsPending(t *testing.T) {
	fix := newFixture(testMonitoringConfig(), fastWebhooksConfig(8))
	payment := seedPendingPayment(t, fix)

	if err := fix.svc.RunMonitorBatch(context.Background()); err != nil {
		t.Fatalf("RunMonitorBatch: %v", err)
	}

	stored, _ := fix.payments.FindByID(context.Background(), payment.ID)
	if stored.Status != entity.PaymentStatusPending {
		t.Fatalf("expected PENDING while nothing is observed, got %s", stored.Status)
	}
}
