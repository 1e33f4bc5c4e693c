// Package stripe реализует платёжный шлюз поверх Stripe Checkout.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// productIDMetadataKey — ключ метаданных товара процессора с ID товара каталога.
const productIDMetadataKey = "productId"

// Config задаёт параметры шлюза.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Tolerance — допустимый возраст подписи уведомления; 0 означает значение библиотеки.
	Tolerance time.Duration
	// BaseURL переопределяет адрес API (stripe-mock, тесты).
	BaseURL    string
	MaxRetries int64
	Logger     *log.Entry
}

// Gateway — реализация domain.PaymentGateway через Stripe API.
type Gateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	logger        *log.Entry
}

// New создаёт шлюз. Пустой SecretKey: ошибка конфигурации.
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "stripe-gateway")
	}

	backendConfig := &stripeapi.BackendConfig{
		LeveledLogger:     logger,
		MaxNetworkRetries: stripeapi.Int64(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripeapi.String(strings.TrimRight(cfg.BaseURL, "/"))
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, stripeapi.NewBackendsWithConfig(backendConfig))

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.Tolerance,
		logger:        logger,
	}, nil
}

// CreateSession создаёт hosted checkout-сессию в режиме payment.
func (g *Gateway) CreateSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		SuccessURL:         stripeapi.String(req.SuccessURL),
		CancelURL:          stripeapi.String(req.CancelURL),
		LineItems:          lineItemParams(req),
	}
	params.Context = ctx
	if req.Email != "" {
		params.CustomerEmail = stripeapi.String(req.Email)
	}
	for k, v := range req.OwnerID.Metadata() {
		params.AddMetadata(k, v)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, upstreamError("create checkout session", err)
	}

	g.logger.WithFields(log.Fields{
		"session_id": session.ID,
		"owner_id":   req.OwnerID,
		"line_items": len(req.LineItems),
	}).Info("checkout session created")

	return domain.CheckoutSession{ID: session.ID, URL: session.URL, Metadata: session.Metadata}, nil
}

func lineItemParams(req domain.CheckoutSessionRequest) []*stripeapi.CheckoutSessionLineItemParams {
	currency := req.Currency
	if currency == "" {
		currency = string(stripeapi.CurrencyUSD)
	}

	out := make([]*stripeapi.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		product := &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripeapi.String(li.Name),
		}
		product.AddMetadata(productIDMetadataKey, string(li.ProductID))
		if li.Image != "" {
			product.Images = stripeapi.StringSlice([]string{li.Image})
		}

		out = append(out, &stripeapi.CheckoutSessionLineItemParams{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripeapi.String(currency),
				UnitAmount:  stripeapi.Int64(li.UnitAmount),
				ProductData: product,
			},
			Quantity: stripeapi.Int64(li.Quantity),
		})
	}
	return out
}

// ListLineItems перечитывает оплаченные позиции сессии вместе с товарами.
func (g *Gateway) ListLineItems(ctx context.Context, sessionID string) ([]domain.PaidLineItem, error) {
	params := &stripeapi.CheckoutSessionListLineItemsParams{Session: stripeapi.String(sessionID)}
	params.Context = ctx
	params.AddExpand("data.price.product")

	var items []domain.PaidLineItem
	iter := g.api.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		items = append(items, paidLineItem(iter.LineItem()))
	}
	if err := iter.Err(); err != nil {
		return nil, upstreamError("list line items of "+sessionID, err)
	}
	return items, nil
}

func paidLineItem(li *stripeapi.LineItem) domain.PaidLineItem {
	item := domain.PaidLineItem{
		Name:     li.Description,
		Quantity: li.Quantity,
	}
	if li.Price == nil {
		if li.Quantity > 0 {
			item.UnitAmount = li.AmountTotal / li.Quantity
		}
		return item
	}

	item.UnitAmount = li.Price.UnitAmount
	if p := li.Price.Product; p != nil {
		item.ProductID = domain.ProductID(p.Metadata[productIDMetadataKey])
		if item.ProductID == "" {
			item.ProductID = domain.ProductID(p.ID)
		}
		if p.Name != "" {
			item.Name = p.Name
		}
		if len(p.Images) > 0 {
			item.Image = p.Images[0]
		}
	}
	return item
}

// ParseWebhook проверяет подпись по сырому телу и разбирает уведомление.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (domain.PaymentEvent, error) {
	return payment.ParseEvent(payload, signature, g.webhookSecret, g.tolerance)
}

// upstreamError оборачивает ошибку процессора, сохраняя его сообщение.
func upstreamError(op string, err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return fmt.Errorf("%s: %w: %s", op, domain.ErrUpstreamFailure, stripeErr.Msg)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUpstreamFailure, err)
}

var _ domain.PaymentGateway = (*Gateway)(nil)
