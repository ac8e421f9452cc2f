package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
)

// RunDispatchDueBatch re-fires deliveries whose retry backoff has elapsed.
// The due query only yields a pair's latest attempt and only when that
// attempt is RETRYING, so pairs with an attempt in flight are left alone.
func (s *NotifyService) RunDispatchDueBatch(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := s.deliveryRepo.ListDueRetries(ctx, now, s.deliveryBatchSize())
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.dispatchConcurrency())
	for _, prior := range due {
		prior := prior
		g.Go(func() error {
			return s.redispatch(ctx, prior)
		})
	}

	return g.Wait()
}

func (s *NotifyService) redispatch(ctx context.Context, prior *entity.EventDelivery) error {
	event, err := s.eventRepo.FindByID(ctx, prior.EventID)
	if err != nil {
		return err
	}
	endpoint, err := s.endpointRepo.FindByID(ctx, prior.EndpointID)
	if err != nil {
		return err
	}
	if event == nil || endpoint == nil {
		s.logger.WithField("delivery_id", prior.ID).Warn("retry references missing event or endpoint")
		return nil
	}

	_, err = s.dispatch(ctx, event, endpoint)
	return err
}

// RunRecoverStaleBatch resolves attempts stuck in PENDING: a crash between
// appending the attempt row and finalizing it leaves the pair wedged, since
// the due query ignores pairs with an in-flight attempt. Finalizing the
// abandoned row is the ledger's one permitted mutation.
func (s *NotifyService) RunRecoverStaleBatch(ctx context.Context) error {
	now := time.Now().UTC()
	staleAfter := s.webhooksCfg.StaleAttemptAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}

	items, err := s.deliveryRepo.ListStalePending(ctx, now.Add(-staleAfter), s.deliveryBatchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range items {
		if item == nil {
			continue
		}

		message := "attempt abandoned before completion"
		outcome := repository.AttemptOutcome{
			Status:       entity.DeliveryStatusRetrying,
			ErrorMessage: &message,
		}
		if item.AttemptNumber >= s.maxAttempts() {
			outcome.Status = entity.DeliveryStatusFailed
			s.logger.WithField("event_id", item.EventID).
				WithField("endpoint_id", item.EndpointID).
				WithField("attempts", item.AttemptNumber).
				Error("delivery exhausted retry budget")
		} else {
			next := now.Add(nextBackoff(item.AttemptNumber, s.webhooksCfg.BackoffBase, s.webhooksCfg.BackoffCap))
			outcome.NextAttemptAt = &next
		}

		if err := s.deliveryRepo.Finalize(ctx, item.ID, outcome); err != nil {
			if errors.Is(err, repository.ErrDeliveryNotPending) {
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}
