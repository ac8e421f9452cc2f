package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

// CreateEndpoint registers a webhook endpoint. When the caller does not
// supply a secret one is generated; the secret is returned exactly once,
// in this response.
func (s *NotifyService) CreateEndpoint(ctx context.Context, req *types.CreateWebhookEndpointRequest) (*entity.WebhookEndpoint, error) {
	if req == nil || req.ProjectID == 0 || req.URL == "" {
		return nil, ErrInvalidRequest
	}

	secret := req.Secret
	if secret == "" {
		secret = uuid.NewString()
	}

	now := time.Now().UTC()
	endpoint := &entity.WebhookEndpoint{
		ProjectID:  req.ProjectID,
		URL:        req.URL,
		Secret:     secret,
		Status:     entity.EndpointStatusActive,
		EventTypes: append([]string(nil), req.EventTypes...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.endpointRepo.Create(ctx, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// UpdateEndpoint rewrites the endpoint's URL, status, and subscriptions.
// Revoked endpoints are frozen; the only accepted statuses here are ACTIVE
// and INACTIVE.
func (s *NotifyService) UpdateEndpoint(ctx context.Context, req *types.UpdateWebhookEndpointRequest) (*entity.WebhookEndpoint, error) {
	if req == nil || req.ID == 0 {
		return nil, ErrInvalidRequest
	}

	endpoint, err := s.endpointRepo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, ErrEndpointNotFound
	}
	if endpoint.Status == entity.EndpointStatusRevoked {
		return nil, ErrEndpointRevoked
	}

	endpoint.URL = req.URL
	endpoint.Status = req.Status
	endpoint.EventTypes = append([]string(nil), req.EventTypes...)
	endpoint.UpdatedAt = time.Now().UTC()

	if err := s.endpointRepo.Update(ctx, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// RevokeEndpoint permanently disables an endpoint. Revocation is one-way;
// in-flight deliveries toward it are skipped, not failed.
func (s *NotifyService) RevokeEndpoint(ctx context.Context, id uint64) (*entity.WebhookEndpoint, error) {
	endpoint, err := s.endpointRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, ErrEndpointNotFound
	}
	if endpoint.Status == entity.EndpointStatusRevoked {
		return endpoint, nil
	}

	endpoint.Status = entity.EndpointStatusRevoked
	endpoint.UpdatedAt = time.Now().UTC()

	if err := s.endpointRepo.Update(ctx, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (s *NotifyService) GetEndpoint(ctx context.Context, id uint64) (*entity.WebhookEndpoint, error) {
	endpoint, err := s.endpointRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, ErrEndpointNotFound
	}
	return endpoint, nil
}

func (s *NotifyService) ListEndpoints(ctx context.Context, req *types.ListWebhookEndpointsRequest) ([]*entity.WebhookEndpoint, error) {
	if req == nil || req.ProjectID == 0 {
		return nil, ErrInvalidRequest
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.endpointRepo.ListByProject(ctx, req.ProjectID, limit, req.Offset)
}
