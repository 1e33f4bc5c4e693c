package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestLineItemsFromCart(t *testing.T) {
	cart := domain.NewCart(nil).
		Add(domain.Product{ID: "1", Name: "Mug", Price: domain.MoneyFromFloat(29.99), Image: "https://img/1.png"}).
		Add(domain.Product{ID: "1", Name: "Mug", Price: domain.MoneyFromFloat(29.99)}).
		Add(domain.Product{ID: "2", Name: "Pen", Price: domain.MoneyFromFloat(12.99)})

	lines := domain.LineItemsFromCart(cart.Items())

	if len(lines) != 2 {
		t.Fatalf("expected one line per cart item, got %d", len(lines))
	}
	if lines[0].UnitAmount != 2999 || lines[0].Quantity != 2 || lines[0].Image != "https://img/1.png" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].UnitAmount != 1299 || lines[1].Quantity != 1 {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}

func TestPaymentEventIsCheckoutCompleted(t *testing.T) {
	if !(domain.PaymentEvent{Type: domain.EventCheckoutSessionCompleted}).IsCheckoutCompleted() {
		t.Fatal("checkout.session.completed must trigger materialization")
	}
	if (domain.PaymentEvent{Type: "payment_intent.created"}).IsCheckoutCompleted() {
		t.Fatal("other event types must be ignored")
	}
}

func TestIdentityCartKey(t *testing.T) {
	if got := domain.Anonymous().CartKey(); got != domain.DeviceCartKey {
		t.Fatalf("anonymous key = %q", got)
	}
	user := domain.Identity{OwnerID: "user-1", Email: "a@b.c"}
	if !user.Authenticated() || user.CartKey() != "user-1" {
		t.Fatalf("unexpected key for user: %q", user.CartKey())
	}
}
