package mapper

import (
	"time"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

// EndpointToResponse maps an endpoint for read responses; the secret is
// omitted. Use EndpointToCreatedResponse for the one response that carries it.
func EndpointToResponse(item *entity.WebhookEndpoint) *types.WebhookEndpoint {
	if item == nil {
		return nil
	}

	return &types.WebhookEndpoint{
		ID:          item.ID,
		ProjectID:   item.ProjectID,
		URL:         item.URL,
		Status:      item.Status,
		EventTypes:  append([]string(nil), item.EventTypes...),
		LastTimeHit: formatOptionalTime(item.LastTimeHit),
		CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func EndpointToCreatedResponse(item *entity.WebhookEndpoint) *types.WebhookEndpoint {
	result := EndpointToResponse(item)
	if result != nil {
		result.Secret = item.Secret
	}
	return result
}

func EndpointsToResponse(items []*entity.WebhookEndpoint) []*types.WebhookEndpoint {
	result := make([]*types.WebhookEndpoint, 0, len(items))
	for _, item := range items {
		result = append(result, EndpointToResponse(item))
	}
	return result
}

func EventToResponse(item *entity.Event) *types.Event {
	if item == nil {
		return nil
	}

	return &types.Event{
		ID:         item.ID,
		UUID:       item.UUID,
		ProjectID:  item.ProjectID,
		Type:       item.Type,
		SessionID:  item.SessionID,
		PaymentID:  derefUint64(item.PaymentID),
		TokenID:    derefUint64(item.TokenID),
		Metadata:   cloneMetadata(item.Metadata),
		OccurredAt: item.OccurredAt.UTC().Format(time.RFC3339),
		CreatedAt:  item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func EventsToResponse(items []*entity.Event) []*types.Event {
	result := make([]*types.Event, 0, len(items))
	for _, item := range items {
		result = append(result, EventToResponse(item))
	}
	return result
}

func DeliveryToResponse(item *entity.EventDelivery) *types.EventDelivery {
	if item == nil {
		return nil
	}

	return &types.EventDelivery{
		ID:             item.ID,
		EventID:        item.EventID,
		EndpointID:     item.EndpointID,
		AttemptNumber:  item.AttemptNumber,
		Status:         item.Status,
		HTTPStatusCode: derefInt32(item.HTTPStatusCode),
		ErrorMessage:   derefString(item.ErrorMessage),
		ResponseBody:   derefString(item.ResponseBody),
		NextAttemptAt:  formatOptionalTime(item.NextAttemptAt),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		DeliveredAt:    formatOptionalTime(item.DeliveredAt),
	}
}

func DeliveriesToResponse(items []*entity.EventDelivery) []*types.EventDelivery {
	result := make([]*types.EventDelivery, 0, len(items))
	for _, item := range items {
		result = append(result, DeliveryToResponse(item))
	}
	return result
}
