package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — процессор в памяти для локальной разработки и тестов.
// Подписывает уведомления тем же алгоритмом, что и настоящий процессор.
type MockGateway struct {
	mu       sync.Mutex
	secret   string
	sessions map[string]mockSession

	CreateErr error
	ListErr   error

	CreateCalls int
	ListCalls   int
}

type mockSession struct {
	request domain.CheckoutSessionRequest
	id      string
}

// NewMockGateway возвращает mock, подписывающий уведомления секретом secret.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{secret: secret, sessions: make(map[string]mockSession)}
}

// CreateSession запоминает запрос и возвращает ссылку на страницу оплаты mock-процессора.
func (m *MockGateway) CreateSession(_ context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.CheckoutSession{}, m.CreateErr
	}
	if len(req.LineItems) == 0 {
		return domain.CheckoutSession{}, fmt.Errorf("%w: line items are required", domain.ErrValidation)
	}

	id := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	m.sessions[id] = mockSession{request: req, id: id}

	return domain.CheckoutSession{
		ID:       id,
		URL:      mockPageURL(req.SuccessURL, id),
		Metadata: req.OwnerID.Metadata(),
	}, nil
}

// ListLineItems возвращает позиции созданной ранее сессии.
func (m *MockGateway) ListLineItems(_ context.Context, sessionID string) ([]domain.PaidLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	items := make([]domain.PaidLineItem, 0, len(session.request.LineItems))
	for _, li := range session.request.LineItems {
		items = append(items, domain.PaidLineItem{
			ProductID:  li.ProductID,
			Name:       li.Name,
			UnitAmount: li.UnitAmount,
			Quantity:   li.Quantity,
			Image:      li.Image,
		})
	}
	return items, nil
}

// ParseWebhook проверяет подпись и разбирает уведомление.
func (m *MockGateway) ParseWebhook(payload []byte, signature string) (domain.PaymentEvent, error) {
	return ParseEvent(payload, signature, m.secret, 0)
}

// Complete имитирует успешную оплату: возвращает подписанное уведомление о завершении сессии.
func (m *MockGateway) Complete(sessionID string) (payload []byte, signature string, err error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	var total int64
	for _, li := range session.request.LineItems {
		total += li.UnitAmount * li.Quantity
	}

	payload, err = CompletedEventPayload("evt_"+strings.ReplaceAll(uuid.NewString(), "-", ""), domain.CompletedSession{
		ID:          session.id,
		Email:       session.request.Email,
		AmountTotal: total,
		Metadata:    session.request.OwnerID.Metadata(),
	})
	if err != nil {
		return nil, "", err
	}
	return payload, SignPayload(payload, m.secret, time.Now()), nil
}

// mockPageURL строит адрес страницы оплаты на том же origin, что и successUrl.
func mockPageURL(successURL, sessionID string) string {
	origin := "http://localhost:3000"
	if u, err := url.Parse(successURL); err == nil && u.Scheme != "" && u.Host != "" {
		origin = u.Scheme + "://" + u.Host
	}
	return origin + "/mock-checkout/" + sessionID
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
