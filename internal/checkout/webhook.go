package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const defaultLedgerTTL = 72 * time.Hour

// ackBody — тело ответа процессору при успешной обработке.
var ackBody = []byte(`{"received":true}`)

// WebhookOutcome — итог обработки уведомления.
type WebhookOutcome string

const (
	// OutcomeProcessed — заказ создан впервые.
	OutcomeProcessed WebhookOutcome = "processed"
	// OutcomeDuplicate — заказ для сессии уже существовал; корзина очищена повторно.
	OutcomeDuplicate WebhookOutcome = "duplicate"
	// OutcomeAlreadyDone — событие уже полностью обработано ранее, ничего не делалось.
	OutcomeAlreadyDone WebhookOutcome = "already_done"
	// OutcomeIgnored — тип события не запускает материализацию.
	OutcomeIgnored WebhookOutcome = "ignored"
)

// WebhookResult описывает результат обработки уведомления.
type WebhookResult struct {
	Outcome   WebhookOutcome
	EventID   string
	SessionID string
	OrderID   string
}

// WebhookOptions задаёт параметры обработчика уведомлений.
type WebhookOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.CheckoutMetrics
	Ledger    domain.IdempotencyRepository
	Outbox    domain.OutboxRepository
	LedgerTTL time.Duration
	Now       func() time.Time
}

// WebhookOption настраивает WebhookProcessor.
type WebhookOption func(*WebhookOptions)

// WithWebhookLogger задаёт logger.
func WithWebhookLogger(logger *log.Entry) WebhookOption {
	return func(opts *WebhookOptions) {
		opts.Logger = logger
	}
}

// WithWebhookMetrics задаёт метрики.
func WithWebhookMetrics(m *metrics.CheckoutMetrics) WebhookOption {
	return func(opts *WebhookOptions) {
		opts.Metrics = m
	}
}

// WithLedger включает журнал обработанных событий.
func WithLedger(ledger domain.IdempotencyRepository, ttl time.Duration) WebhookOption {
	return func(opts *WebhookOptions) {
		opts.Ledger = ledger
		opts.LedgerTTL = ttl
	}
}

// WithOutbox включает публикацию события order.completed через outbox.
func WithOutbox(outbox domain.OutboxRepository) WebhookOption {
	return func(opts *WebhookOptions) {
		opts.Outbox = outbox
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) WebhookOption {
	return func(opts *WebhookOptions) {
		opts.Now = now
	}
}

// WebhookProcessor обрабатывает уведомления процессора о завершённой оплате.
// Процессор доставляет уведомления at-least-once, в том числе в другие процессы,
// поэтому единственность заказа держится на CreateOnce хранилища.
type WebhookProcessor struct {
	gateway   domain.PaymentGateway
	orders    domain.OrderRepository
	carts     domain.CartRepository
	ledger    domain.IdempotencyRepository
	outbox    domain.OutboxRepository
	ledgerTTL time.Duration
	now       func() time.Time
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
	inflight  singleflight.Group
}

// NewWebhookProcessor создаёт обработчик уведомлений.
func NewWebhookProcessor(
	gateway domain.PaymentGateway,
	orders domain.OrderRepository,
	carts domain.CartRepository,
	options ...WebhookOption,
) *WebhookProcessor {
	opts := WebhookOptions{LedgerTTL: defaultLedgerTTL, Now: time.Now}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payment-webhook")
	}
	if opts.LedgerTTL <= 0 {
		opts.LedgerTTL = defaultLedgerTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &WebhookProcessor{
		gateway:   gateway,
		orders:    orders,
		carts:     carts,
		ledger:    opts.Ledger,
		outbox:    opts.Outbox,
		ledgerTTL: opts.LedgerTTL,
		now:       opts.Now,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Handle проверяет подпись по сырому телу и обрабатывает уведомление.
// Ошибка означает, что процессор должен повторить доставку (кроме InvalidSignature и Validation).
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	started := p.now()
	result, err := p.handle(ctx, payload, signature)
	p.metrics.RecordWebhook(outcomeLabel(result, err), p.now().Sub(started))
	return result, err
}

func outcomeLabel(result WebhookResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return metrics.WebhookInvalidSignature
	case err != nil:
		return metrics.WebhookFailed
	case result.Outcome == OutcomeIgnored:
		return metrics.WebhookIgnored
	case result.Outcome == OutcomeProcessed:
		return metrics.WebhookProcessed
	default:
		return metrics.WebhookDuplicate
	}
}

func (p *WebhookProcessor) handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := p.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			p.logger.WithError(err).WithField("security_event", true).Warn("webhook signature verification failed")
		}
		return WebhookResult{}, err
	}

	result := WebhookResult{EventID: event.ID, SessionID: event.Session.ID}
	logger := p.logger.WithFields(log.Fields{"event_id": event.ID, "event_type": event.Type})

	if !event.IsCheckoutCompleted() {
		logger.Debug("webhook event ignored")
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	owner, err := event.Session.Owner()
	if err != nil {
		logger.WithError(err).Error("completed session carries no owner")
		return result, err
	}
	logger = logger.WithFields(log.Fields{"session_id": event.Session.ID, "owner_id": owner})

	ledgerKey := domain.WebhookLedgerKey(event)
	if p.alreadyDone(ctx, ledgerKey, event, logger) {
		result.Outcome = OutcomeAlreadyDone
		result.OrderID = domain.OrderIDForSession(event.Session.ID)
		return result, nil
	}

	v, err, shared := p.inflight.Do(event.Session.ID, func() (any, error) {
		return p.materialize(ctx, event.Session, owner, logger)
	})
	if err != nil {
		p.markLedger(ctx, ledgerKey, false, logger)
		return result, err
	}

	order := v.(materialized)
	result.OrderID = order.orderID
	result.Outcome = OutcomeDuplicate
	if order.created && !shared {
		result.Outcome = OutcomeProcessed
	}
	p.markLedger(ctx, ledgerKey, true, logger)
	return result, nil
}

type materialized struct {
	orderID string
	created bool
}

// materialize восстанавливает позиции у процессора, создаёт заказ не более одного раза
// и очищает корзину владельца. Повторный вызов для той же сессии заказ не дублирует.
func (p *WebhookProcessor) materialize(ctx context.Context, session domain.CompletedSession, owner domain.OwnerID, logger *log.Entry) (materialized, error) {
	paid, err := p.gateway.ListLineItems(ctx, session.ID)
	if err != nil {
		logger.WithError(err).Error("failed to list paid line items")
		return materialized{}, fmt.Errorf("list line items: %w", upstream(err))
	}

	items := make([]domain.CartItem, 0, len(paid))
	for _, li := range paid {
		items = append(items, li.CartItem())
	}

	order, err := domain.NewCompletedOrder(session, owner, items, p.now())
	if err != nil {
		// Подпись уже проверена: несогласованные данные процессора повторяются его redelivery.
		logger.WithError(err).Error("failed to build order from completed session")
		return materialized{}, fmt.Errorf("%w: build order: %v", domain.ErrUpstreamFailure, err)
	}

	created, err := p.orders.CreateOnce(ctx, order)
	if err != nil {
		logger.WithError(err).Error("failed to create order")
		return materialized{}, fmt.Errorf("create order: %w", upstream(err))
	}
	if created {
		p.metrics.RecordOrderMaterialized()
		logger.WithFields(log.Fields{
			"order_id": order.ID,
			"total":    order.Total.String(),
		}).Info("order materialized")
	} else {
		logger.WithField("order_id", order.ID).Info("order already exists for session, skipping creation")
	}

	if err := p.carts.Clear(ctx, string(owner)); err != nil {
		logger.WithError(err).Error("failed to clear cart after order")
		return materialized{}, fmt.Errorf("clear cart: %w", upstream(err))
	}

	if p.outbox != nil {
		msg, err := domain.NewOrderCompletedMessage(order)
		if err != nil {
			return materialized{}, err
		}
		if _, err := p.outbox.Enqueue(ctx, msg); err != nil {
			logger.WithError(err).Error("failed to enqueue order event")
			return materialized{}, fmt.Errorf("enqueue order event: %w", upstream(err))
		}
	}

	return materialized{orderID: order.ID, created: created}, nil
}

// alreadyDone регистрирует событие в журнале и сообщает, что оно уже обработано полностью.
// Журнал не отвечает за корректность: при его недоступности обработка продолжается.
func (p *WebhookProcessor) alreadyDone(ctx context.Context, key string, event domain.PaymentEvent, logger *log.Entry) bool {
	if p.ledger == nil {
		return false
	}

	hash := domain.WebhookRequestHash(event.Session.ID)
	_, err := p.ledger.CreateProcessing(ctx, key, hash, p.now().Add(p.ledgerTTL))
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		record, getErr := p.ledger.Get(ctx, key)
		if getErr != nil {
			logger.WithError(getErr).Warn("failed to read webhook ledger record")
			return false
		}
		if record.Acknowledged() {
			logger.Info("webhook event already processed, acknowledging redelivery")
			return true
		}
		return false
	default:
		logger.WithError(err).Warn("webhook ledger unavailable, relying on order uniqueness")
		return false
	}
}

func (p *WebhookProcessor) markLedger(ctx context.Context, key string, done bool, logger *log.Entry) {
	if p.ledger == nil {
		return
	}
	var err error
	if done {
		err = p.ledger.MarkDone(ctx, key, ackBody, http.StatusOK)
	} else {
		err = p.ledger.MarkFailed(ctx, key, nil, http.StatusInternalServerError)
	}
	if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		logger.WithError(err).Warn("failed to update webhook ledger")
	}
}

// upstream помечает ошибку хранилища или процессора как повторяемую.
func upstream(err error) error {
	if domain.Kind(err) == domain.KindInternal {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
	}
	return err
}
