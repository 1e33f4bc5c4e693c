package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const webhookSecret = "whsec_unit"

type WebhookSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.DocumentStore
	gateway *payment.MockGateway
	carts   *repository.Carts
	orders  *repository.Orders
	ledger  domain.IdempotencyRepository
	outbox  *memory.OutboxRepository
}

func TestWebhookSuite(t *testing.T) {
	suite.Run(t, new(WebhookSuite))
}

func (s *WebhookSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewDocumentStore()
	s.gateway = payment.NewMockGateway(webhookSecret)
	s.carts = repository.NewCarts(s.store)
	s.orders = repository.NewOrders(s.store)
	s.ledger = memory.NewIdempotencyRepository()
	s.outbox = memory.NewOutboxRepository()
}

func (s *WebhookSuite) processor(options ...WebhookOption) *WebhookProcessor {
	defaults := []WebhookOption{WithLedger(s.ledger, time.Hour), WithOutbox(s.outbox)}
	return NewWebhookProcessor(s.gateway, s.orders, s.carts, append(defaults, options...)...)
}

// checkout кладёт в корзину пример из двух позиций и создаёт сессию у mock-процессора.
func (s *WebhookSuite) checkout(owner domain.OwnerID) domain.CheckoutSession {
	cart := domain.NewCart([]domain.CartItem{
		{ID: "1", Name: "Mug", UnitPrice: domain.MoneyFromFloat(29.99), Quantity: 2},
		{ID: "2", Name: "Tee", UnitPrice: domain.MoneyFromFloat(12.99), Quantity: 1},
	})
	s.Require().NoError(s.carts.Save(s.ctx, string(owner), cart))

	session, err := s.gateway.CreateSession(s.ctx, domain.CheckoutSessionRequest{
		LineItems:  domain.LineItemsFromCart(cart.Items()),
		OwnerID:    owner,
		Email:      string(owner) + "@example.com",
		SuccessURL: "http://shop.test/orders",
	})
	s.Require().NoError(err)
	return session
}

func (s *WebhookSuite) orderCount() int {
	return s.store.Count(repository.CollectionOrders)
}

func (s *WebhookSuite) TestFirstDeliveryMaterializesOrderAndClearsCart() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	res, err := s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, res.Outcome)
	s.Equal(domain.OrderIDForSession(session.ID), res.OrderID)
	s.Equal(1, s.orderCount())

	order, err := s.orders.Get(s.ctx, res.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.OwnerID("u1"), order.OwnerID)
	s.Equal("u1@example.com", order.Email)
	s.Equal(domain.OrderStatusCompleted, order.Status)
	s.Equal(session.ID, order.SourceSessionID)
	s.True(order.Total.Equal(domain.MoneyFromMinor(7297)), "total = %s", order.Total)
	s.Len(order.Items, 2)

	cart, err := s.carts.Load(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(cart.IsEmpty())

	pending, err := s.outbox.PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(domain.EventOrderCompleted, pending[0].EventType)
	s.Equal(res.OrderID, pending[0].AggregateID)

	record, err := s.ledger.Get(s.ctx, "webhook:"+res.EventID)
	s.Require().NoError(err)
	s.Equal(domain.IdempotencyStatusDone, record.Status)
}

func (s *WebhookSuite) TestIdenticalRedeliveryIsAcknowledgedWithoutSideEffects() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	_, err = s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)

	// Пользователь успел наполнить новую корзину до повторной доставки.
	refilled := domain.NewCart(nil).Add(domain.Product{ID: "9", Name: "Cap", Price: domain.MoneyFromFloat(5)})
	s.Require().NoError(s.carts.Save(s.ctx, "u1", refilled))

	res, err := s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeAlreadyDone, res.Outcome)
	s.Equal(1, s.orderCount())

	cart, err := s.carts.Load(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(1, cart.Count(), "a fully processed redelivery must not touch the new cart")
}

func (s *WebhookSuite) TestRedeliveryWithoutLedgerCreatesNoSecondOrder() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	p := NewWebhookProcessor(s.gateway, s.orders, s.carts)
	first, err := p.Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, first.Outcome)

	second, err := p.Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeDuplicate, second.Outcome)
	s.Equal(first.OrderID, second.OrderID)
	s.Equal(1, s.orderCount())
}

func (s *WebhookSuite) TestNewEventForSameSessionIsDeduplicatedByStore() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)
	_, err = s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)

	// Другой event id для той же сессии проходит мимо журнала, но не мимо CreateOnce.
	payload2, sig2, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)
	res, err := s.processor().Handle(s.ctx, payload2, sig2)
	s.Require().NoError(err)
	s.Equal(OutcomeDuplicate, res.Outcome)
	s.Equal(1, s.orderCount())

	pending, err := s.outbox.PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1, "order event must be enqueued once")
}

func (s *WebhookSuite) TestInvalidSignatureHasNoSideEffects() {
	session := s.checkout("u1")
	payload, _, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)
	forged := payment.SignPayload(payload, "whsec_attacker", time.Now())

	_, err = s.processor().Handle(s.ctx, payload, forged)
	s.Require().ErrorIs(err, domain.ErrInvalidSignature)
	s.Equal(0, s.orderCount())

	cart, err := s.carts.Load(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(3, cart.Count())
	s.Equal(0, s.gateway.ListCalls, "line items must not be fetched for a forged notification")
}

func (s *WebhookSuite) TestOtherEventTypesAreIgnored() {
	payload := []byte(`{"id":"evt_other","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_x"}}}`)

	res, err := s.processor().Handle(s.ctx, payload, payment.SignPayload(payload, webhookSecret, time.Now()))
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, res.Outcome)
	s.Equal(0, s.orderCount())
}

func (s *WebhookSuite) TestMissingOwnerMetadataIsRejected() {
	payload, err := payment.CompletedEventPayload("evt_noowner", domain.CompletedSession{ID: "cs_noowner", AmountTotal: 100})
	s.Require().NoError(err)

	_, err = s.processor().Handle(s.ctx, payload, payment.SignPayload(payload, webhookSecret, time.Now()))
	s.Require().ErrorIs(err, domain.ErrValidation)
	s.Equal(0, s.orderCount())
}

func (s *WebhookSuite) TestStoreFailureIsRetryableAndRetrySucceeds() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	s.store.SetUnavailable(true)
	_, err = s.processor().Handle(s.ctx, payload, sig)
	s.Require().Error(err)
	s.True(domain.IsRetryable(err))

	record, err := s.ledger.Get(s.ctx, "webhook:"+eventID(s.T(), payload, sig))
	s.Require().NoError(err)
	s.Equal(domain.IdempotencyStatusFailed, record.Status)

	s.store.SetUnavailable(false)
	res, err := s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, res.Outcome)
	s.Equal(1, s.orderCount())
}

func (s *WebhookSuite) TestLineItemFailureIsRetryable() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	s.gateway.ListErr = errors.New("processor timeout")
	_, err = s.processor().Handle(s.ctx, payload, sig)
	s.Require().ErrorIs(err, domain.ErrUpstreamFailure)
	s.Equal(0, s.orderCount())
}

// noItemsGateway имитирует процессор, вернувший сессию без позиций.
type noItemsGateway struct {
	*payment.MockGateway
}

func (noItemsGateway) ListLineItems(context.Context, string) ([]domain.PaidLineItem, error) {
	return nil, nil
}

func (s *WebhookSuite) TestEmptyLineItemsAreRetryable() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	processor := NewWebhookProcessor(noItemsGateway{s.gateway}, s.orders, s.carts, WithLedger(s.ledger, time.Hour))
	_, err = processor.Handle(s.ctx, payload, sig)
	s.Require().ErrorIs(err, domain.ErrUpstreamFailure)
	s.NotErrorIs(err, domain.ErrValidation)
	s.Equal(domain.KindUpstream, domain.Kind(err))
	s.Equal(0, s.orderCount())

	cart, err := s.carts.Load(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(2, cart.Len(), "cart must stay until an order exists")

	// Повторная доставка после исправления у процессора материализует заказ.
	res, err := s.processor().Handle(s.ctx, payload, sig)
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, res.Outcome)
	s.Equal(1, s.orderCount())
}

func (s *WebhookSuite) TestConcurrentDeliveriesAcrossProcesses() {
	session := s.checkout("u1")
	payload, sig, err := s.gateway.Complete(session.ID)
	s.Require().NoError(err)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Отдельный процессор без общего журнала имитирует отдельный процесс.
			_, err := NewWebhookProcessor(s.gateway, s.orders, s.carts).Handle(s.ctx, payload, sig)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(1, s.orderCount())
}

func eventID(t *testing.T, payload []byte, sig string) string {
	t.Helper()
	event, err := payment.ParseEvent(payload, sig, webhookSecret, 0)
	require.NoError(t, err)
	return event.ID
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name   string
		result WebhookResult
		err    error
		want   string
	}{
		{name: "signature", err: domain.ErrInvalidSignature, want: "invalid_signature"},
		{name: "failure", err: domain.ErrUpstreamFailure, want: "failed"},
		{name: "ignored", result: WebhookResult{Outcome: OutcomeIgnored}, want: "ignored"},
		{name: "processed", result: WebhookResult{Outcome: OutcomeProcessed}, want: "processed"},
		{name: "already done", result: WebhookResult{Outcome: OutcomeAlreadyDone}, want: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeLabel(tt.result, tt.err))
		})
	}
}
