package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

// CreatePayment registers a payment intent and starts monitoring it. A
// repeated submission with the same idempotency key returns the original
// payment; a duplicate tx hash is rejected. The PAYMENT_PENDING event is
// recorded and fanned out before returning.
func (s *NotifyService) CreatePayment(ctx context.Context, req *types.CreatePaymentRequest) (*entity.Payment, error) {
	if req == nil || req.ProjectID == 0 || req.AmountUnits <= 0 {
		return nil, ErrInvalidRequest
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.paymentRepo.FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := time.Now().UTC()
	payment := &entity.Payment{
		ProjectID:           req.ProjectID,
		TokenID:             req.TokenID,
		AmountUnits:         req.AmountUnits,
		Currency:            req.Currency,
		RecipientAddress:    strings.ToLower(strings.TrimSpace(req.RecipientAddress)),
		TxHash:              normalizeOptionalString(strings.ToLower(req.TxHash)),
		Status:              entity.PaymentStatusPending,
		SessionID:           req.SessionID,
		IdempotencyKey:      normalizeOptionalString(idempotencyKey),
		Metadata:            cloneMetadata(req.Metadata),
		MonitoringStartedAt: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			// A concurrent submission with the same idempotency key
			// won the insert; hand back its row instead of a new one.
			if idempotencyKey != "" {
				existing, findErr := s.paymentRepo.FindByIdempotencyKey(ctx, idempotencyKey)
				if findErr != nil {
					return nil, findErr
				}
				if existing != nil {
					return existing, nil
				}
			}
			return nil, ErrPaymentAlreadyExists
		}
		return nil, err
	}

	event, err := s.RecordOnce(ctx, payment, entity.EventTypePaymentPending, pendingEventMetadata(payment))
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("recording pending event failed")
		return payment, nil
	}

	if err := s.DispatchEvent(ctx, event); err != nil {
		// Delivery failures are retried by the scheduler, never surfaced
		// to the intent caller.
		s.logger.WithError(err).WithField("event_id", event.ID).Warn("initial dispatch incomplete")
	}

	return payment, nil
}

func (s *NotifyService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *NotifyService) ListPayments(ctx context.Context, req *types.ListPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.paymentRepo.List(ctx, repository.PaymentFilter{
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Status:    req.Status,
		Currency:  req.Currency,
		Limit:     limit,
		Offset:    req.Offset,
	})
}

func pendingEventMetadata(payment *entity.Payment) map[string]string {
	metadata := cloneMetadata(payment.Metadata)
	metadata["currency"] = payment.Currency
	return metadata
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
