package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/app/signature"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

// HeaderEventID correlates retried deliveries of the same event so
// receivers can deduplicate; delivery is at-least-once.
const HeaderEventID = "X-Webhook-Event-Id"

// DispatchEvent fires attempt #1 toward every ACTIVE endpoint subscribed to
// the event's type. Deliveries are independent: attempts run concurrently
// under the configured limit and one endpoint's failure never blocks
// another's.
func (s *NotifyService) DispatchEvent(ctx context.Context, event *entity.Event) error {
	endpoints, err := s.endpointRepo.ListActiveByProjectAndType(ctx, event.ProjectID, event.Type)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.dispatchConcurrency())
	for _, endpoint := range endpoints {
		endpoint := endpoint
		g.Go(func() error {
			_, err := s.dispatch(ctx, event, endpoint)
			return err
		})
	}

	return g.Wait()
}

// dispatch performs exactly one delivery attempt for the (event, endpoint)
// pair: it appends the next attempt row, makes one HTTP call, and finalizes
// the row with the outcome. Retries are scheduled, never looped here.
func (s *NotifyService) dispatch(ctx context.Context, event *entity.Event, endpoint *entity.WebhookEndpoint) (*entity.EventDelivery, error) {
	if endpoint.Status != entity.EndpointStatusActive || !endpoint.SubscribedTo(event.Type) {
		// Revoked or unsubscribed mid-flight: skip without recording an
		// attempt; a skip is not a failure.
		s.logger.WithField("event_id", event.ID).
			WithField("endpoint_id", endpoint.ID).
			WithField("endpoint_status", endpoint.Status).
			Info("delivery skipped")
		return nil, nil
	}

	latest, err := s.deliveryRepo.FindLatestForPair(ctx, event.ID, endpoint.ID)
	if err != nil {
		return nil, err
	}

	attempt := int32(1)
	if latest != nil {
		switch latest.Status {
		case entity.DeliveryStatusDelivered, entity.DeliveryStatusFailed:
			// Terminal for the pair.
			return latest, nil
		case entity.DeliveryStatusPending:
			// An attempt is still in flight; never race it.
			return nil, nil
		case entity.DeliveryStatusRetrying:
			if latest.NextAttemptAt != nil && latest.NextAttemptAt.After(time.Now().UTC()) {
				// Backoff has not elapsed; the scheduler owns the timing.
				return nil, nil
			}
		}
		attempt = latest.AttemptNumber + 1
	}
	if attempt > s.maxAttempts() {
		return latest, nil
	}

	now := time.Now().UTC()
	delivery := &entity.EventDelivery{
		EventID:       event.ID,
		EndpointID:    endpoint.ID,
		AttemptNumber: attempt,
		Status:        entity.DeliveryStatusPending,
		CreatedAt:     now,
	}
	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		if errors.Is(err, repository.ErrDeliveryAttemptConflict) {
			// A concurrent dispatcher claimed this attempt number.
			return nil, nil
		}
		return nil, err
	}

	outcome := s.performAttempt(ctx, event, endpoint, attempt)
	if err := s.deliveryRepo.Finalize(ctx, delivery.ID, outcome); err != nil {
		return nil, err
	}

	delivery.Status = outcome.Status
	delivery.HTTPStatusCode = outcome.HTTPStatusCode
	delivery.ErrorMessage = outcome.ErrorMessage
	delivery.ResponseBody = outcome.ResponseBody
	delivery.NextAttemptAt = outcome.NextAttemptAt
	delivery.DeliveredAt = outcome.DeliveredAt

	switch outcome.Status {
	case entity.DeliveryStatusDelivered:
		if err := s.endpointRepo.TouchLastTimeHit(ctx, endpoint.ID, now); err != nil {
			s.logger.WithError(err).WithField("endpoint_id", endpoint.ID).Warn("updating last_time_hit failed")
		}
	case entity.DeliveryStatusFailed:
		s.logger.WithField("event_id", event.ID).
			WithField("endpoint_id", endpoint.ID).
			WithField("attempts", attempt).
			Error("delivery exhausted retry budget")
	}

	return delivery, nil
}

// performAttempt makes the single outbound HTTP call and classifies the
// result. Error text and response bodies are truncated before they reach the
// ledger; the endpoint secret is never part of either.
func (s *NotifyService) performAttempt(ctx context.Context, event *entity.Event, endpoint *entity.WebhookEndpoint, attempt int32) repository.AttemptOutcome {
	now := time.Now().UTC()

	body, err := json.Marshal(buildWebhookPayload(event))
	if err != nil {
		return s.failureOutcome(attempt, nil, nil, err, now)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return s.failureOutcome(attempt, nil, nil, err, now)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, event.UUID)
	// The signature covers the exact bytes written above; receivers verify
	// by re-hashing the raw body.
	req.Header.Set(signature.Header, signature.Sign(endpoint.Secret, body))

	resp, err := s.webhookHTTP.Do(req)
	if err != nil {
		return s.failureOutcome(attempt, nil, nil, err, now)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxRecordedBodyLen))
	code := int32(resp.StatusCode)
	recorded := normalizeOptionalString(string(respBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		deliveredAt := now
		return repository.AttemptOutcome{
			Status:         entity.DeliveryStatusDelivered,
			HTTPStatusCode: &code,
			ResponseBody:   recorded,
			DeliveredAt:    &deliveredAt,
		}
	}

	return s.failureOutcome(attempt, &code, recorded, fmt.Errorf("endpoint returned status=%d", resp.StatusCode), now)
}

// failureOutcome classifies a non-2xx or transport failure: RETRYING with a
// backoff-derived due time while budget remains, FAILED once it is spent.
func (s *NotifyService) failureOutcome(attempt int32, httpStatusCode *int32, responseBody *string, attemptErr error, now time.Time) repository.AttemptOutcome {
	message := truncate(attemptErr.Error(), maxRecordedBodyLen)
	outcome := repository.AttemptOutcome{
		Status:         entity.DeliveryStatusFailed,
		HTTPStatusCode: httpStatusCode,
		ErrorMessage:   &message,
		ResponseBody:   responseBody,
	}

	if attempt < s.maxAttempts() {
		next := now.Add(nextBackoff(attempt, s.webhooksCfg.BackoffBase, s.webhooksCfg.BackoffCap))
		outcome.Status = entity.DeliveryStatusRetrying
		outcome.NextAttemptAt = &next
	}

	return outcome
}

func buildWebhookPayload(event *entity.Event) *types.WebhookPayload {
	data := types.WebhookPayloadData{
		SessionID: event.SessionID,
		ProjectID: event.ProjectID,
		Metadata:  event.Metadata,
	}
	if event.PaymentID != nil {
		data.PaymentID = *event.PaymentID
	}

	return &types.WebhookPayload{
		ID:         event.UUID,
		Type:       event.Type,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
		Data:       data,
	}
}
