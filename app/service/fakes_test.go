package service

import (
	"context"
	"sort"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/entity"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/config"
)

type fakePaymentRepo struct {
	payments map[uint64]*entity.Payment
	nextID   uint64
	events   *fakeEventRepo
}

func newFakePaymentRepo(events *fakeEventRepo) *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: map[uint64]*entity.Payment{},
		nextID:   1,
		events:   events,
	}
}

func (r *fakePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	for _, item := range r.payments {
		if payment.IdempotencyKey != nil && item.IdempotencyKey != nil && *item.IdempotencyKey == *payment.IdempotencyKey {
			return repository.ErrPaymentAlreadyExists
		}
		if payment.TxHash != nil && item.TxHash != nil && *item.TxHash == *payment.TxHash {
			return repository.ErrPaymentAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *payment
	copyItem.ID = id
	r.payments[id] = &copyItem
	payment.ID = id
	return nil
}

func (r *fakePaymentRepo) ApplyTransitionWithEvent(ctx context.Context, payment *entity.Payment, event *entity.Event) error {
	stored, ok := r.payments[payment.ID]
	if !ok || stored.Status != entity.PaymentStatusPending {
		return repository.ErrPaymentStateConflict
	}
	if err := r.events.Create(ctx, event); err != nil {
		return err
	}
	copyItem := *payment
	r.payments[payment.ID] = &copyItem
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	item, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakePaymentRepo) FindByIdempotencyKey(_ context.Context, key string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.IdempotencyKey != nil && *item.IdempotencyKey == key {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindByTxHash(_ context.Context, txHash string) (*entity.Payment, error) {
	for _, item := range r.payments {
		if item.TxHash != nil && *item.TxHash == txHash {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) List(_ context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if filter.ProjectID > 0 && item.ProjectID != filter.ProjectID {
			continue
		}
		if filter.SessionID != "" && item.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Currency != "" && item.Currency != filter.Currency {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return limitPayments(items, filter.Limit, filter.Offset), nil
}

func (r *fakePaymentRepo) ListMonitoring(_ context.Context, limit int32) ([]*entity.Payment, error) {
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if item.Status != entity.PaymentStatusPending {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].MonitoringStartedAt.Before(items[j].MonitoringStartedAt)
	})
	return limitPayments(items, limit, 0), nil
}

func limitPayments(items []*entity.Payment, limit, offset int32) []*entity.Payment {
	if offset > 0 {
		if int(offset) >= len(items) {
			return []*entity.Payment{}
		}
		items = items[offset:]
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

type fakeEventRepo struct {
	events map[uint64]*entity.Event
	nextID uint64
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[uint64]*entity.Event{}, nextID: 1}
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.Event) error {
	for _, item := range r.events {
		if event.PaymentID != nil && item.PaymentID != nil && *item.PaymentID == *event.PaymentID && item.Type == event.Type {
			return repository.ErrEventAlreadyExists
		}
		if item.UUID == event.UUID {
			return repository.ErrEventAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *event
	copyItem.ID = id
	r.events[id] = &copyItem
	event.ID = id
	return nil
}

func (r *fakeEventRepo) FindByID(_ context.Context, id uint64) (*entity.Event, error) {
	item, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeEventRepo) FindByPaymentAndType(_ context.Context, paymentID uint64, eventType string) (*entity.Event, error) {
	for _, item := range r.events {
		if item.PaymentID != nil && *item.PaymentID == paymentID && item.Type == eventType {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) List(_ context.Context, filter repository.EventFilter) ([]*entity.Event, error) {
	items := make([]*entity.Event, 0)
	for _, item := range r.events {
		if filter.ProjectID > 0 && item.ProjectID != filter.ProjectID {
			continue
		}
		if filter.SessionID != "" && item.SessionID != filter.SessionID {
			continue
		}
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

type fakeEndpointRepo struct {
	endpoints map[uint64]*entity.WebhookEndpoint
	nextID    uint64
}

func newFakeEndpointRepo() *fakeEndpointRepo {
	return &fakeEndpointRepo{endpoints: map[uint64]*entity.WebhookEndpoint{}, nextID: 1}
}

func (r *fakeEndpointRepo) Create(_ context.Context, endpoint *entity.WebhookEndpoint) error {
	id := r.nextID
	r.nextID++
	copyItem := *endpoint
	copyItem.ID = id
	r.endpoints[id] = &copyItem
	endpoint.ID = id
	return nil
}

func (r *fakeEndpointRepo) Update(_ context.Context, endpoint *entity.WebhookEndpoint) error {
	if _, ok := r.endpoints[endpoint.ID]; !ok {
		return repository.ErrEndpointNotFound
	}
	copyItem := *endpoint
	r.endpoints[endpoint.ID] = &copyItem
	return nil
}

func (r *fakeEndpointRepo) TouchLastTimeHit(_ context.Context, id uint64, hitAt time.Time) error {
	item, ok := r.endpoints[id]
	if !ok {
		return repository.ErrEndpointNotFound
	}
	hit := hitAt
	item.LastTimeHit = &hit
	return nil
}

func (r *fakeEndpointRepo) FindByID(_ context.Context, id uint64) (*entity.WebhookEndpoint, error) {
	item, ok := r.endpoints[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeEndpointRepo) ListActiveByProjectAndType(_ context.Context, projectID uint64, eventType string) ([]*entity.WebhookEndpoint, error) {
	items := make([]*entity.WebhookEndpoint, 0)
	for _, item := range r.endpoints {
		if item.ProjectID != projectID || item.Status != entity.EndpointStatusActive || !item.SubscribedTo(eventType) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *fakeEndpointRepo) ListByProject(_ context.Context, projectID uint64, limit, offset int32) ([]*entity.WebhookEndpoint, error) {
	items := make([]*entity.WebhookEndpoint, 0)
	for _, item := range r.endpoints {
		if item.ProjectID != projectID {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

type fakeDeliveryRepo struct {
	deliveries map[uint64]*entity.EventDelivery
	nextID     uint64
	endpoints  *fakeEndpointRepo
}

func newFakeDeliveryRepo(endpoints *fakeEndpointRepo) *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		deliveries: map[uint64]*entity.EventDelivery{},
		nextID:     1,
		endpoints:  endpoints,
	}
}

func (r *fakeDeliveryRepo) Create(_ context.Context, delivery *entity.EventDelivery) error {
	for _, item := range r.deliveries {
		if item.EventID == delivery.EventID && item.EndpointID == delivery.EndpointID && item.AttemptNumber == delivery.AttemptNumber {
			return repository.ErrDeliveryAttemptConflict
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *delivery
	copyItem.ID = id
	r.deliveries[id] = &copyItem
	delivery.ID = id
	return nil
}

func (r *fakeDeliveryRepo) Finalize(_ context.Context, id uint64, outcome repository.AttemptOutcome) error {
	item, ok := r.deliveries[id]
	if !ok || item.Status != entity.DeliveryStatusPending {
		return repository.ErrDeliveryNotPending
	}
	item.Status = outcome.Status
	item.HTTPStatusCode = outcome.HTTPStatusCode
	item.ErrorMessage = outcome.ErrorMessage
	item.ResponseBody = outcome.ResponseBody
	item.NextAttemptAt = outcome.NextAttemptAt
	item.DeliveredAt = outcome.DeliveredAt
	return nil
}

func (r *fakeDeliveryRepo) FindLatestForPair(_ context.Context, eventID, endpointID uint64) (*entity.EventDelivery, error) {
	var latest *entity.EventDelivery
	for _, item := range r.deliveries {
		if item.EventID != eventID || item.EndpointID != endpointID {
			continue
		}
		if latest == nil || item.AttemptNumber > latest.AttemptNumber {
			latest = item
		}
	}
	if latest == nil {
		return nil, nil
	}
	copyItem := *latest
	return &copyItem, nil
}

func (r *fakeDeliveryRepo) ListDueRetries(_ context.Context, now time.Time, limit int32) ([]*entity.EventDelivery, error) {
	items := make([]*entity.EventDelivery, 0)
	for _, item := range r.deliveries {
		if item.Status != entity.DeliveryStatusRetrying {
			continue
		}
		if item.NextAttemptAt == nil || item.NextAttemptAt.After(now) {
			continue
		}
		if !r.isLatestAttempt(item) {
			continue
		}
		if r.endpoints != nil {
			endpoint := r.endpoints.endpoints[item.EndpointID]
			if endpoint == nil || endpoint.Status != entity.EndpointStatusActive {
				continue
			}
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].NextAttemptAt.Before(*items[j].NextAttemptAt) })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeDeliveryRepo) isLatestAttempt(candidate *entity.EventDelivery) bool {
	for _, item := range r.deliveries {
		if item.EventID == candidate.EventID && item.EndpointID == candidate.EndpointID && item.AttemptNumber > candidate.AttemptNumber {
			return false
		}
	}
	return true
}

func (r *fakeDeliveryRepo) ListStalePending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.EventDelivery, error) {
	items := make([]*entity.EventDelivery, 0)
	for _, item := range r.deliveries {
		if item.Status != entity.DeliveryStatusPending || item.CreatedAt.After(cutoff) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeDeliveryRepo) List(_ context.Context, filter repository.DeliveryFilter) ([]*entity.EventDelivery, error) {
	items := make([]*entity.EventDelivery, 0)
	for _, item := range r.deliveries {
		if filter.EventID > 0 && item.EventID != filter.EventID {
			continue
		}
		if filter.EndpointID > 0 && item.EndpointID != filter.EndpointID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	if filter.Limit > 0 {
		if int(filter.Offset) >= len(items) {
			return []*entity.EventDelivery{}, nil
		}
		items = items[filter.Offset:]
		if int(filter.Limit) < len(items) {
			items = items[:filter.Limit]
		}
	}
	return items, nil
}

type fakeTokenRepo struct {
	tokens map[uint64]*entity.ApiToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[uint64]*entity.ApiToken{}}
}

func (r *fakeTokenRepo) FindByID(_ context.Context, id uint64) (*entity.ApiToken, error) {
	item, ok := r.tokens[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type fakeChainSource struct {
	observations map[uint64]*chain.Observation
	err          error
}

func newFakeChainSource() *fakeChainSource {
	return &fakeChainSource{observations: map[uint64]*chain.Observation{}}
}

func (s *fakeChainSource) Observe(_ context.Context, payment *entity.Payment) (*chain.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.observations[payment.ID], nil
}

type fixture struct {
	payments   *fakePaymentRepo
	events     *fakeEventRepo
	endpoints  *fakeEndpointRepo
	deliveries *fakeDeliveryRepo
	tokens     *fakeTokenRepo
	source     *fakeChainSource

	svc *NotifyService
}

func newFixture(monitoringCfg config.MonitoringConfig, webhooksCfg config.WebhooksConfig) *fixture {
	events := newFakeEventRepo()
	payments := newFakePaymentRepo(events)
	endpoints := newFakeEndpointRepo()
	deliveries := newFakeDeliveryRepo(endpoints)
	tokens := newFakeTokenRepo()
	source := newFakeChainSource()

	svc := NewNotifyService(payments, events, endpoints, deliveries, tokens, source, monitoringCfg, webhooksCfg)

	return &fixture{
		payments:   payments,
		events:     events,
		endpoints:  endpoints,
		deliveries: deliveries,
		tokens:     tokens,
		source:     source,
		svc:        svc,
	}
}
