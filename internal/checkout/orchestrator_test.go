package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOrchestratorInitiate(t *testing.T) {
	var got SessionPayload
	var origin, auth, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout-sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		origin = r.Header.Get("Origin")
		auth = r.Header.Get("Authorization")
		agent = r.Header.Get("User-Agent")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(SessionResult{URL: "https://pay.example/cs_1", SessionID: "cs_1"})
	}))
	defer srv.Close()

	o := NewOrchestrator(srv.URL+"/",
		WithOrigin("https://shop.example"),
		WithIDToken("tok-1"),
		WithUserAgent("storefront-cli/test"),
	)
	url, err := o.Initiate(context.Background(), domain.NewCart(sampleItems()), domain.Identity{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if url != "https://pay.example/cs_1" {
		t.Fatalf("url = %q", url)
	}
	if origin != "https://shop.example" {
		t.Fatalf("Origin = %q", origin)
	}
	if auth != "Bearer tok-1" || agent != "storefront-cli/test" {
		t.Fatalf("Authorization = %q, User-Agent = %q", auth, agent)
	}
	if got.UserID != "u1" || len(got.Items) != 2 {
		t.Fatalf("payload = %+v", got)
	}
	if got.Items[0].Quantity != 2 || got.Items[0].Price == nil || !got.Items[0].Price.Equal(domain.MoneyFromFloat(29.99)) {
		t.Fatalf("first item = %+v", got.Items[0])
	}
}

func TestOrchestratorInitiateErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		identity domain.Identity
		cart     domain.Cart
		wantErr  error
		wantText string
		noCall   bool
	}{
		{
			name:     "server message",
			status:   http.StatusBadGateway,
			body:     `{"error":"payment processor unavailable"}`,
			identity: domain.Identity{OwnerID: "u1"},
			cart:     domain.NewCart(sampleItems()),
			wantErr:  domain.ErrCheckoutFailed,
			wantText: "payment processor unavailable",
		},
		{
			name:     "plain text body",
			status:   http.StatusInternalServerError,
			body:     "boom",
			identity: domain.Identity{OwnerID: "u1"},
			cart:     domain.NewCart(sampleItems()),
			wantErr:  domain.ErrCheckoutFailed,
			wantText: "boom",
		},
		{
			name:     "missing url",
			status:   http.StatusOK,
			body:     `{"sessionId":"cs_1"}`,
			identity: domain.Identity{OwnerID: "u1"},
			cart:     domain.NewCart(sampleItems()),
			wantErr:  domain.ErrCheckoutFailed,
		},
		{
			name:     "anonymous",
			identity: domain.Anonymous(),
			cart:     domain.NewCart(sampleItems()),
			wantErr:  domain.ErrUnauthenticated,
			noCall:   true,
		},
		{
			name:     "empty cart",
			identity: domain.Identity{OwnerID: "u1"},
			cart:     domain.NewCart(nil),
			wantErr:  domain.ErrEmptyCart,
			noCall:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOrchestrator(srv.URL).Initiate(context.Background(), tt.cart, tt.identity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantText != "" && !strings.Contains(err.Error(), tt.wantText) {
				t.Fatalf("error %q does not carry server message %q", err, tt.wantText)
			}
			if tt.noCall && calls != 0 {
				t.Fatalf("server called %d times", calls)
			}
		})
	}
}

func TestOrchestratorNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewOrchestrator(base).Initiate(context.Background(), domain.NewCart(sampleItems()), domain.Identity{OwnerID: "u1"})
	if !errors.Is(err, domain.ErrCheckoutFailed) {
		t.Fatalf("error = %v, want ErrCheckoutFailed", err)
	}
}

func TestSessionPayloadRoundTrip(t *testing.T) {
	cart := domain.NewCart(sampleItems())
	items, err := NewSessionPayload(cart, "u1").CartItems()
	if err != nil {
		t.Fatalf("CartItems: %v", err)
	}
	if len(items) != 2 || items[1].Image != "https://img/tee.png" {
		t.Fatalf("items = %+v", items)
	}
	if !domain.NewCart(items).Total().Equal(cart.Total()) {
		t.Fatalf("total mismatch")
	}
}

func TestSessionPayloadRequiresPrice(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing price", body: `{"items":[{"id":"1","name":"Mug","quantity":1}],"userId":"u1"}`},
		{name: "null price", body: `{"items":[{"id":"1","name":"Mug","price":null,"quantity":1}],"userId":"u1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload SessionPayload
			if err := json.Unmarshal([]byte(tt.body), &payload); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			items, err := payload.CartItems()
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if items != nil {
				t.Fatalf("items = %+v, want nil", items)
			}
		})
	}
}
