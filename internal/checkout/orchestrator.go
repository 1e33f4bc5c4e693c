package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultClientTimeout = 15 * time.Second

// SessionItem — позиция в теле запроса на создание сессии.
type SessionItem struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Price    *domain.Money `json:"price"`
	Quantity int           `json:"quantity"`
	Image    string        `json:"image,omitempty"`
}

// SessionPayload — тело POST /checkout-sessions.
type SessionPayload struct {
	Items  []SessionItem `json:"items"`
	UserID string        `json:"userId"`
}

// NewSessionPayload строит тело запроса из корзины: по одной позиции на каждую позицию корзины.
func NewSessionPayload(cart domain.Cart, owner domain.OwnerID) SessionPayload {
	items := cart.Items()
	out := make([]SessionItem, 0, len(items))
	for _, item := range items {
		price := item.UnitPrice
		out = append(out, SessionItem{
			ID:       string(item.ID),
			Name:     item.Name,
			Price:    &price,
			Quantity: item.Quantity,
			Image:    item.Image,
		})
	}
	return SessionPayload{Items: out, UserID: string(owner)}
}

// CartItems переводит позиции запроса в позиции корзины.
// Отсутствующая или null цена — ошибка валидации, а не нулевая цена.
func (p SessionPayload) CartItems() ([]domain.CartItem, error) {
	out := make([]domain.CartItem, 0, len(p.Items))
	for i, item := range p.Items {
		if item.Price == nil {
			return nil, fmt.Errorf("%w: items[%d].price is required", domain.ErrValidation, i)
		}
		out = append(out, domain.CartItem{
			ID:        domain.ProductID(strings.TrimSpace(item.ID)),
			Name:      item.Name,
			UnitPrice: *item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return out, nil
}

// ErrorBody — тело ответа API с ошибкой.
type ErrorBody struct {
	Error string `json:"error"`
}

// Orchestrator — клиентская половина checkout: отправляет корзину на сервер
// и возвращает адрес страницы оплаты. Корзину не трогает: её очищает webhook.
type Orchestrator struct {
	endpoint  string
	origin    string
	idToken   string
	userAgent string
	client    *http.Client
	logger    *log.Entry
}

// OrchestratorOption настраивает Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		o.client = client
	}
}

// WithOrigin задаёт origin, от которого сервер построит successUrl и cancelUrl.
func WithOrigin(origin string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.origin = origin
	}
}

// WithIDToken передаёт ID-токен пользователя в заголовке Authorization.
func WithIDToken(token string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.idToken = token
	}
}

// WithUserAgent задаёт заголовок User-Agent.
func WithUserAgent(userAgent string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.userAgent = userAgent
	}
}

// WithOrchestratorLogger задаёт logger.
func WithOrchestratorLogger(logger *log.Entry) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator создаёт клиента API по базовому адресу сервера.
func NewOrchestrator(baseURL string, options ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		endpoint: strings.TrimRight(baseURL, "/") + "/checkout-sessions",
		client:   &http.Client{Timeout: defaultClientTimeout},
	}
	for _, option := range options {
		option(o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", "checkout-client")
	}
	return o
}

// Initiate создаёт checkout-сессию для корзины и возвращает адрес страницы оплаты.
// Ошибки отправки возвращаются как ErrCheckoutFailed с сообщением сервера; корзина не меняется.
func (o *Orchestrator) Initiate(ctx context.Context, cart domain.Cart, identity domain.Identity) (string, error) {
	if !identity.Authenticated() {
		return "", fmt.Errorf("checkout: %w", domain.ErrUnauthenticated)
	}
	if cart.IsEmpty() {
		return "", fmt.Errorf("checkout: %w", domain.ErrEmptyCart)
	}

	body, err := json.Marshal(NewSessionPayload(cart, identity.OwnerID))
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrCheckoutFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCheckoutFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.origin != "" {
		req.Header.Set("Origin", o.origin)
	}
	if o.idToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.idToken)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.WithError(err).Warn("checkout request failed")
		return "", fmt.Errorf("%w: %v", domain.ErrCheckoutFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrCheckoutFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		o.logger.WithFields(log.Fields{"status": resp.StatusCode, "error": msg}).Warn("checkout rejected by server")
		return "", fmt.Errorf("%w: %s (status %d)", domain.ErrCheckoutFailed, msg, resp.StatusCode)
	}

	var result SessionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrCheckoutFailed, err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("%w: server returned no checkout url", domain.ErrCheckoutFailed)
	}

	o.logger.WithFields(log.Fields{
		"session_id": result.SessionID,
		"owner_id":   identity.OwnerID,
	}).Info("checkout session ready, redirecting")
	return result.URL, nil
}
