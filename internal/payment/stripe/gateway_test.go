package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

type fakeAPI struct {
	mu       sync.Mutex
	form     url.Values
	failWith int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.form = r.PostForm
		failWith := f.failWith
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if failWith != 0 {
			w.WriteHeader(failWith)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid currency: xyz","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://pay.example/cs_test_1","metadata":{"userId":"u1"}}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_test_1/line_items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/checkout/sessions/cs_test_1/line_items",
			"has_more": false,
			"data": [
				{"id": "li_1", "object": "item", "description": "Mug", "quantity": 2, "amount_total": 5998,
				 "price": {"id": "price_1", "object": "price", "unit_amount": 2999,
				  "product": {"id": "prod_1", "object": "product", "name": "Mug", "images": ["https://img/mug.png"], "metadata": {"productId": "1"}}}},
				{"id": "li_2", "object": "item", "description": "", "quantity": 1, "amount_total": 1299,
				 "price": {"id": "price_2", "object": "price", "unit_amount": 1299,
				  "product": {"id": "prod_2", "object": "product", "name": "", "metadata": {}}}}
			]
		}`))
	})
	return mux
}

func newTestGateway(t *testing.T, api *fakeAPI) *Gateway {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	gw, err := New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		BaseURL:       srv.URL,
		MaxRetries:    0,
	})
	require.NoError(t, err)
	return gw
}

func TestNewRequiresSecretKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCreateSession(t *testing.T) {
	api := &fakeAPI{}
	gw := newTestGateway(t, api)

	session, err := gw.CreateSession(context.Background(), domain.CheckoutSessionRequest{
		OwnerID:    "u1",
		Email:      "u1@example.com",
		Currency:   "usd",
		SuccessURL: "http://shop.test/orders?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "http://shop.test/cart",
		LineItems: []domain.LineItem{
			{ProductID: "1", Name: "Mug", UnitAmount: 2999, Quantity: 2, Image: "https://img/mug.png"},
			{ProductID: "2", Name: "Tee", UnitAmount: 1299, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://pay.example/cs_test_1", session.URL)

	api.mu.Lock()
	form := api.form
	api.mu.Unlock()

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "u1", form.Get("metadata[userId]"))
	assert.Equal(t, "u1@example.com", form.Get("customer_email"))
	assert.Equal(t, "http://shop.test/cart", form.Get("cancel_url"))
	assert.Equal(t, "2999", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "Mug", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1", form.Get("line_items[0][price_data][product_data][metadata][productId]"))
	assert.Equal(t, "https://img/mug.png", form.Get("line_items[0][price_data][product_data][images][0]"))
	assert.Equal(t, "1299", form.Get("line_items[1][price_data][unit_amount]"))
}

func TestCreateSessionRejected(t *testing.T) {
	api := &fakeAPI{failWith: http.StatusBadRequest}
	gw := newTestGateway(t, api)

	_, err := gw.CreateSession(context.Background(), domain.CheckoutSessionRequest{
		OwnerID:   "u1",
		LineItems: []domain.LineItem{{ProductID: "1", Name: "Mug", UnitAmount: 100, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "Invalid currency: xyz")
}

func TestListLineItems(t *testing.T) {
	gw := newTestGateway(t, &fakeAPI{})

	items, err := gw.ListLineItems(context.Background(), "cs_test_1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, domain.PaidLineItem{ProductID: "1", Name: "Mug", UnitAmount: 2999, Quantity: 2, Image: "https://img/mug.png"}, items[0])
	assert.Equal(t, domain.ProductID("prod_2"), items[1].ProductID)
	assert.Equal(t, "Product", items[1].CartItem().Name)
}

func TestParseWebhookUsesConfiguredSecret(t *testing.T) {
	gw := newTestGateway(t, &fakeAPI{})

	payload, err := payment.CompletedEventPayload("evt_1", domain.CompletedSession{
		ID:          "cs_test_1",
		AmountTotal: 7297,
		Metadata:    map[string]string{domain.OwnerMetadataKey: "u1"},
	})
	require.NoError(t, err)

	event, err := gw.ParseWebhook(payload, payment.SignPayload(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", event.Session.ID)

	_, err = gw.ParseWebhook(payload, payment.SignPayload(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}
