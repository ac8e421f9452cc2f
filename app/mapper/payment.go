package mapper

import (
	"time"

	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	return &types.Payment{
		ID:                  item.ID,
		ProjectID:           item.ProjectID,
		TokenID:             derefUint64(item.TokenID),
		AmountUnits:         item.AmountUnits,
		Currency:            item.Currency,
		RecipientAddress:    item.RecipientAddress,
		TxHash:              derefString(item.TxHash),
		BlockNumber:         derefUint64(item.BlockNumber),
		Status:              item.Status,
		FailureReason:       derefString(item.FailureReason),
		SessionID:           item.SessionID,
		IdempotencyKey:      derefString(item.IdempotencyKey),
		Metadata:            cloneMetadata(item.Metadata),
		MonitoringStartedAt: item.MonitoringStartedAt.UTC().Format(time.RFC3339),
		ConfirmedAt:         formatOptionalTime(item.ConfirmedAt),
		CreatedAt:           item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

func derefUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatOptionalTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
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
