package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
)

// RunMonitorBatch evaluates a batch of pending payments against fresh chain
// data, applies any resulting transition atomically with its event, and fans
// the event out to subscribed endpoints.
func (s *NotifyService) RunMonitorBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.paymentRepo.ListMonitoring(ctx, s.monitorBatchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || payment.Terminal() {
			continue
		}

		transition, err := s.evaluateOne(ctx, payment, now)
		if err != nil {
			// Chain or storage hiccup: leave the payment pending, the
			// next tick re-evaluates it.
			s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("monitor evaluation failed")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if transition == nil {
			continue
		}

		event, err := s.applyTransition(ctx, payment, transition, now)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentStateConflict) {
				// Another worker finalized this payment first.
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if err := s.DispatchEvent(ctx, event); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *NotifyService) evaluateOne(ctx context.Context, payment *entity.Payment, now time.Time) (*Transition, error) {
	if payment.TokenID != nil {
		token, err := s.tokenRepo.FindByID(ctx, *payment.TokenID)
		if err != nil {
			return nil, err
		}
		if token != nil && token.Status == entity.TokenStatusRevoked {
			reason := FailureReasonTokenRevoked
			return &Transition{
				NewStatus:     entity.PaymentStatusFailed,
				FailureReason: &reason,
			}, nil
		}
	}

	var obs *chain.Observation
	if s.source != nil {
		var err error
		obs, err = s.source.Observe(ctx, payment)
		if err != nil {
			return nil, err
		}
	}

	policy := TrackerPolicy{
		RequiredConfirmations: s.monitoringCfg.RequiredConfirmations,
		MonitoringTimeout:     s.monitoringCfg.Timeout,
	}
	return EvaluatePayment(payment, obs, now, policy), nil
}

// applyTransition finalizes the payment and records its event in one
// transaction, then returns the recorded event for dispatch.
func (s *NotifyService) applyTransition(ctx context.Context, payment *entity.Payment, transition *Transition, now time.Time) (*entity.Event, error) {
	if transition.TxHash != nil {
		payment.TxHash = transition.TxHash
	}
	if transition.BlockNumber != nil {
		payment.BlockNumber = transition.BlockNumber
	}
	payment.Status = transition.NewStatus
	payment.FailureReason = transition.FailureReason
	payment.ConfirmedAt = transition.ConfirmedAt
	payment.UpdatedAt = now

	paymentID := payment.ID
	event := &entity.Event{
		UUID:       uuid.NewString(),
		ProjectID:  payment.ProjectID,
		Type:       transition.eventType(),
		SessionID:  payment.SessionID,
		PaymentID:  &paymentID,
		TokenID:    payment.TokenID,
		Metadata:   transitionEventMetadata(payment),
		OccurredAt: now,
		CreatedAt:  now,
	}

	if err := s.paymentRepo.ApplyTransitionWithEvent(ctx, payment, event); err != nil {
		return nil, err
	}

	s.logger.WithField("payment_id", payment.ID).
		WithField("status", payment.Status).
		Info("payment transitioned")

	return event, nil
}

func transitionEventMetadata(payment *entity.Payment) map[string]string {
	metadata := map[string]string{
		"amount_units": strconv.FormatInt(payment.AmountUnits, 10),
		"currency":     payment.Currency,
		"recipient":    payment.RecipientAddress,
	}
	if payment.TxHash != nil {
		metadata["tx_hash"] = *payment.TxHash
	}
	if payment.BlockNumber != nil {
		metadata["block_number"] = strconv.FormatUint(*payment.BlockNumber, 10)
	}
	if payment.FailureReason != nil {
		metadata["failure_reason"] = *payment.FailureReason
	}
	return metadata
}
