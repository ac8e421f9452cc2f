package service

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/factory"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)

	maxRecordedBodyLen = 1024
)

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	ApplyTransitionWithEvent(ctx context.Context, payment *entity.Payment, event *entity.Event) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*entity.Payment, error)
	FindByTxHash(ctx context.Context, txHash string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListMonitoring(ctx context.Context, limit int32) ([]*entity.Payment, error)
}

type eventRepository interface {
	Create(ctx context.Context, event *entity.Event) error
	FindByID(ctx context.Context, id uint64) (*entity.Event, error)
	FindByPaymentAndType(ctx context.Context, paymentID uint64, eventType string) (*entity.Event, error)
	List(ctx context.Context, filter repository.EventFilter) ([]*entity.Event, error)
}

type endpointRepository interface {
	Create(ctx context.Context, endpoint *entity.WebhookEndpoint) error
	Update(ctx context.Context, endpoint *entity.WebhookEndpoint) error
	TouchLastTimeHit(ctx context.Context, id uint64, hitAt time.Time) error
	FindByID(ctx context.Context, id uint64) (*entity.WebhookEndpoint, error)
	ListActiveByProjectAndType(ctx context.Context, projectID uint64, eventType string) ([]*entity.WebhookEndpoint, error)
	ListByProject(ctx context.Context, projectID uint64, limit, offset int32) ([]*entity.WebhookEndpoint, error)
}

type deliveryRepository interface {
	Create(ctx context.Context, delivery *entity.EventDelivery) error
	Finalize(ctx context.Context, id uint64, outcome repository.AttemptOutcome) error
	FindLatestForPair(ctx context.Context, eventID, endpointID uint64) (*entity.EventDelivery, error)
	ListDueRetries(ctx context.Context, now time.Time, limit int32) ([]*entity.EventDelivery, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.EventDelivery, error)
	List(ctx context.Context, filter repository.DeliveryFilter) ([]*entity.EventDelivery, error)
}

type tokenRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.ApiToken, error)
}

// NotifyService is the delivery core: it tracks payment confirmation,
// records domain events, and fans them out to subscribed webhook endpoints.
type NotifyService struct {
	paymentRepo  paymentRepository
	eventRepo    eventRepository
	endpointRepo endpointRepository
	deliveryRepo deliveryRepository
	tokenRepo    tokenRepository

	source chain.Source

	monitoringCfg config.MonitoringConfig
	webhooksCfg   config.WebhooksConfig

	webhookHTTP *http.Client
	logger      logrus.FieldLogger
}

func NewNotifyService(
	paymentRepo paymentRepository,
	eventRepo eventRepository,
	endpointRepo endpointRepository,
	deliveryRepo deliveryRepository,
	tokenRepo tokenRepository,
	source chain.Source,
	monitoringCfg config.MonitoringConfig,
	webhooksCfg config.WebhooksConfig,
) *NotifyService {
	timeout := webhooksCfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &NotifyService{
		paymentRepo:   paymentRepo,
		eventRepo:     eventRepo,
		endpointRepo:  endpointRepo,
		deliveryRepo:  deliveryRepo,
		tokenRepo:     tokenRepo,
		source:        source,
		monitoringCfg: monitoringCfg,
		webhooksCfg:   webhooksCfg,
		webhookHTTP:   &http.Client{Timeout: timeout},
		logger:        factory.NewModuleLogger("notify-service"),
	}
}

func (s *NotifyService) maxAttempts() int32 {
	if s.webhooksCfg.MaxDeliveryAttempts > 0 {
		return s.webhooksCfg.MaxDeliveryAttempts
	}
	return 8
}

func (s *NotifyService) dispatchConcurrency() int {
	if s.webhooksCfg.DispatchConcurrency > 0 {
		return s.webhooksCfg.DispatchConcurrency
	}
	return 8
}

func (s *NotifyService) monitorBatchSize() int32 {
	if s.monitoringCfg.BatchSize > 0 {
		return s.monitoringCfg.BatchSize
	}
	return defaultBatchSize
}

func (s *NotifyService) deliveryBatchSize() int32 {
	if s.webhooksCfg.JobBatchSize > 0 {
		return s.webhooksCfg.JobBatchSize
	}
	return defaultBatchSize
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
