// Package checkout превращает корзину в checkout-сессию процессора и материализует
// заказ по уведомлению о завершённой оплате.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultOrigin   = "http://localhost:3000"
	defaultCurrency = "usd"

	successPath = "/orders?session_id={CHECKOUT_SESSION_ID}"
	cancelPath  = "/cart"
)

// SessionRequest — запрос на создание сессии, пришедший от клиента.
type SessionRequest struct {
	Items   []domain.CartItem
	OwnerID domain.OwnerID
	// Origin — origin клиента; из него строятся successUrl и cancelUrl.
	Origin string
}

// SessionResult — ответ клиенту.
type SessionResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// SessionServiceOptions задаёт параметры сервиса создания сессий.
type SessionServiceOptions struct {
	Logger        *log.Entry
	Metrics       *metrics.CheckoutMetrics
	Currency      string
	DefaultOrigin string
}

// SessionOption настраивает SessionService.
type SessionOption func(*SessionServiceOptions)

// WithSessionLogger задаёт logger.
func WithSessionLogger(logger *log.Entry) SessionOption {
	return func(opts *SessionServiceOptions) {
		opts.Logger = logger
	}
}

// WithSessionMetrics задаёт метрики.
func WithSessionMetrics(m *metrics.CheckoutMetrics) SessionOption {
	return func(opts *SessionServiceOptions) {
		opts.Metrics = m
	}
}

// WithCurrency задаёт валюту позиций.
func WithCurrency(currency string) SessionOption {
	return func(opts *SessionServiceOptions) {
		opts.Currency = currency
	}
}

// WithDefaultOrigin задаёт origin для запросов без заголовка Origin.
func WithDefaultOrigin(origin string) SessionOption {
	return func(opts *SessionServiceOptions) {
		opts.DefaultOrigin = origin
	}
}

// SessionService — серверная половина checkout. Ничего не пишет в хранилище.
type SessionService struct {
	gateway       domain.PaymentGateway
	users         domain.UserDirectory
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	currency      string
	defaultOrigin string
}

// NewSessionService создаёт сервис создания checkout-сессий.
func NewSessionService(gateway domain.PaymentGateway, users domain.UserDirectory, options ...SessionOption) *SessionService {
	opts := SessionServiceOptions{Currency: defaultCurrency, DefaultOrigin: defaultOrigin}
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout-sessions")
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.DefaultOrigin == "" {
		opts.DefaultOrigin = defaultOrigin
	}

	return &SessionService{
		gateway:       gateway,
		users:         users,
		logger:        logger,
		metrics:       opts.Metrics,
		currency:      strings.ToLower(opts.Currency),
		defaultOrigin: strings.TrimRight(opts.DefaultOrigin, "/"),
	}
}

// Create проверяет запрос, находит email покупателя и создаёт сессию у процессора.
func (s *SessionService) Create(ctx context.Context, req SessionRequest) (SessionResult, error) {
	result, err := s.create(ctx, req)
	if err != nil {
		s.metrics.RecordSessionFailed(string(domain.Kind(err)))
		return SessionResult{}, err
	}
	s.metrics.RecordSessionCreated()
	return result, nil
}

func (s *SessionService) create(ctx context.Context, req SessionRequest) (SessionResult, error) {
	if err := validateSessionRequest(req); err != nil {
		return SessionResult{}, err
	}

	email, err := s.users.Email(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return SessionResult{}, err
		}
		return SessionResult{}, fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
	}

	origin := s.origin(req.Origin)
	session, err := s.gateway.CreateSession(ctx, domain.CheckoutSessionRequest{
		LineItems:  domain.LineItemsFromCart(req.Items),
		OwnerID:    req.OwnerID,
		Email:      email,
		Currency:   s.currency,
		SuccessURL: origin + successPath,
		CancelURL:  origin + cancelPath,
	})
	if err != nil {
		s.logger.WithError(err).WithField("owner_id", req.OwnerID).Error("payment processor rejected checkout session")
		if domain.Kind(err) == domain.KindInternal {
			err = fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
		}
		return SessionResult{}, err
	}

	return SessionResult{URL: session.URL, SessionID: session.ID}, nil
}

func validateSessionRequest(req SessionRequest) error {
	if strings.TrimSpace(string(req.OwnerID)) == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: items must be a non-empty array", domain.ErrValidation)
	}
	for i, item := range req.Items {
		switch {
		case strings.TrimSpace(string(item.ID)) == "":
			return fmt.Errorf("%w: items[%d].id is required", domain.ErrValidation, i)
		case item.Quantity < 1:
			return fmt.Errorf("%w: items[%d].quantity must be positive", domain.ErrValidation, i)
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("%w: items[%d].price must be non-negative", domain.ErrValidation, i)
		}
	}
	return nil
}

// origin принимает только абсолютный http(s) origin, иначе берёт значение по умолчанию.
func (s *SessionService) origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return s.defaultOrigin
	}
	return u.Scheme + "://" + u.Host
}
