package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
)

// RecordOnce persists at most one event of a type per payment. A duplicate
// insert reads through to the existing row, so re-recording is a no-op for
// the caller.
func (s *NotifyService) RecordOnce(ctx context.Context, payment *entity.Payment, eventType string, metadata map[string]string) (*entity.Event, error) {
	now := time.Now().UTC()
	paymentID := payment.ID
	event := &entity.Event{
		UUID:       uuid.NewString(),
		ProjectID:  payment.ProjectID,
		Type:       eventType,
		SessionID:  payment.SessionID,
		PaymentID:  &paymentID,
		TokenID:    payment.TokenID,
		Metadata:   cloneMetadata(metadata),
		OccurredAt: now,
		CreatedAt:  now,
	}

	err := s.eventRepo.Create(ctx, event)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, repository.ErrEventAlreadyExists) {
		return nil, err
	}

	existing, findErr := s.eventRepo.FindByPaymentAndType(ctx, payment.ID, eventType)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}
