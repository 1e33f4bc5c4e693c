package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// recordingGateway запоминает последний запрос на создание сессии.
type recordingGateway struct {
	last domain.CheckoutSessionRequest
	err  error
}

func (g *recordingGateway) CreateSession(_ context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	g.last = req
	if g.err != nil {
		return domain.CheckoutSession{}, g.err
	}
	return domain.CheckoutSession{ID: "cs_rec", URL: "https://pay.example/cs_rec"}, nil
}

func (g *recordingGateway) ListLineItems(context.Context, string) ([]domain.PaidLineItem, error) {
	return nil, nil
}

func (g *recordingGateway) ParseWebhook([]byte, string) (domain.PaymentEvent, error) {
	return domain.PaymentEvent{}, nil
}

func newUsers(t *testing.T) domain.UserDirectory {
	t.Helper()
	users := repository.NewUsers(memory.NewDocumentStore())
	if err := users.EnsureUser(context.Background(), domain.Identity{OwnerID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	return users
}

func sampleItems() []domain.CartItem {
	return []domain.CartItem{
		{ID: "1", Name: "Mug", UnitPrice: domain.MoneyFromFloat(29.99), Quantity: 2},
		{ID: "2", Name: "Tee", UnitPrice: domain.MoneyFromFloat(12.99), Quantity: 1, Image: "https://img/tee.png"},
	}
}

func TestSessionServiceCreate(t *testing.T) {
	gw := &recordingGateway{}
	svc := NewSessionService(gw, newUsers(t))

	res, err := svc.Create(context.Background(), SessionRequest{
		Items:   sampleItems(),
		OwnerID: "u1",
		Origin:  "https://shop.example",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.SessionID != "cs_rec" || res.URL != "https://pay.example/cs_rec" {
		t.Fatalf("unexpected result %+v", res)
	}

	req := gw.last
	if req.Email != "u1@example.com" {
		t.Errorf("email = %q", req.Email)
	}
	if req.OwnerID != "u1" || req.Currency != "usd" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.SuccessURL != "https://shop.example/orders?session_id={CHECKOUT_SESSION_ID}" {
		t.Errorf("success url = %q", req.SuccessURL)
	}
	if req.CancelURL != "https://shop.example/cart" {
		t.Errorf("cancel url = %q", req.CancelURL)
	}
	if len(req.LineItems) != 2 || req.LineItems[0].UnitAmount != 2999 || req.LineItems[1].UnitAmount != 1299 {
		t.Errorf("unexpected line items %+v", req.LineItems)
	}
}

func TestSessionServiceOriginFallback(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{name: "empty", origin: "", want: "http://localhost:3000/cart"},
		{name: "relative", origin: "/shop", want: "http://localhost:3000/cart"},
		{name: "unsupported scheme", origin: "ftp://files.example", want: "http://localhost:3000/cart"},
		{name: "path is dropped", origin: "http://shop.test:8080/some/page", want: "http://shop.test:8080/cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &recordingGateway{}
			svc := NewSessionService(gw, newUsers(t))
			if _, err := svc.Create(context.Background(), SessionRequest{Items: sampleItems(), OwnerID: "u1", Origin: tt.origin}); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if gw.last.CancelURL != tt.want {
				t.Errorf("cancel url = %q, want %q", gw.last.CancelURL, tt.want)
			}
		})
	}
}

func TestSessionServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		req        SessionRequest
		gatewayErr error
		wantErr    error
	}{
		{name: "missing owner", req: SessionRequest{Items: sampleItems()}, wantErr: domain.ErrValidation},
		{name: "no items", req: SessionRequest{OwnerID: "u1"}, wantErr: domain.ErrValidation},
		{name: "item without id", req: SessionRequest{OwnerID: "u1", Items: []domain.CartItem{{Name: "x", Quantity: 1}}}, wantErr: domain.ErrValidation},
		{name: "zero quantity", req: SessionRequest{OwnerID: "u1", Items: []domain.CartItem{{ID: "1", Quantity: 0}}}, wantErr: domain.ErrValidation},
		{name: "negative price", req: SessionRequest{OwnerID: "u1", Items: []domain.CartItem{{ID: "1", Quantity: 1, UnitPrice: domain.MoneyFromFloat(-1)}}}, wantErr: domain.ErrValidation},
		{name: "unknown user", req: SessionRequest{OwnerID: "ghost", Items: sampleItems()}, wantErr: domain.ErrNotFound},
		{name: "processor rejection", req: SessionRequest{OwnerID: "u1", Items: sampleItems()}, gatewayErr: errors.New("card declined"), wantErr: domain.ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &recordingGateway{err: tt.gatewayErr}
			_, err := NewSessionService(gw, newUsers(t)).Create(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionServiceUserStoreUnavailable(t *testing.T) {
	store := memory.NewDocumentStore()
	store.SetUnavailable(true)

	_, err := NewSessionService(&recordingGateway{}, repository.NewUsers(store)).Create(context.Background(), SessionRequest{
		OwnerID: "u1",
		Items:   sampleItems(),
	})
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
