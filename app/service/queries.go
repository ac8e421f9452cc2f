package service

import (
	"context"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

func (s *NotifyService) GetEvent(ctx context.Context, id uint64) (*entity.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *NotifyService) ListEvents(ctx context.Context, req *types.ListEventsRequest) ([]*entity.Event, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.eventRepo.List(ctx, repository.EventFilter{
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Type:      req.Type,
		Limit:     limit,
		Offset:    req.Offset,
	})
}

// ListEventDeliveries returns the full attempt ledger for one event, every
// attempt toward every endpoint, newest first.
func (s *NotifyService) ListEventDeliveries(ctx context.Context, eventID uint64) ([]*entity.EventDelivery, error) {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	return s.deliveryRepo.List(ctx, repository.DeliveryFilter{EventID: eventID})
}

func (s *NotifyService) ListDeliveries(ctx context.Context, req *types.ListDeliveriesRequest) ([]*entity.EventDelivery, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.deliveryRepo.List(ctx, repository.DeliveryFilter{
		EventID:    req.EventID,
		EndpointID: req.EndpointID,
		Status:     req.Status,
		Limit:      limit,
		Offset:     req.Offset,
	})
}
