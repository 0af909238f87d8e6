package dodo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/provider"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:       "o1",
		Number:   "ORD-1749988800000-0001",
		UserID:   "u1",
		Product:  order.ProductRef{ID: "p1", Name: "1K Followers", Quantity: 1000},
		Service:  order.ServiceRef{ID: "s1", Name: "Instagram"},
		Customer: order.Customer{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+905551112233"},
		Pricing:  order.Pricing{FinalPrice: decimal.RequireFromString("850"), Currency: "₺"},
		Payment:  order.Payment{Method: order.MethodCryptoDodo, Status: order.PaymentPending},
	}
}

func TestClient_CreatePayment(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"pay_123","payment_url":"https://checkout.dodo/pay_123","status":"pending"}`))
	}))
	defer srv.Close()

	c := New(Config{
		APIKey:      "key",
		BaseURL:     srv.URL,
		CallbackURL: "https://api.example.com/api/payments/dodo/webhook",
		ReturnURL:   "https://example.com/order-success",
		CancelURL:   "https://example.com/order-cancelled",
	}, srv.Client())

	checkout, err := c.CreatePayment(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "pay_123", checkout.PaymentID)
	assert.Equal(t, "https://checkout.dodo/pay_123", checkout.PaymentURL)
	assert.Equal(t, "pending", checkout.ProviderStatus)
	assert.Contains(t, string(checkout.Raw), "pay_123")

	assert.EqualValues(t, 850, got["amount"])
	assert.Equal(t, "TRY", got["currency"])
	assert.Equal(t, "ORD-1749988800000-0001", got["order_id"])
	assert.Equal(t, "Payment for 1K Followers - Instagram", got["description"])
	assert.Equal(t, map[string]any{"name": "Ada Lovelace", "email": "ada@example.com", "phone": "+905551112233"}, got["customer"])
	assert.Equal(t, map[string]any{"order_id": "o1", "user_id": "u1"}, got["metadata"])
	assert.Equal(t, "https://example.com/order-cancelled", got["cancel_url"])
}

func TestClient_CreatePaymentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid amount"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, srv.Client())
	_, err := c.CreatePayment(context.Background(), testOrder())
	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid amount", apiErr.Message)
}

func TestClient_CheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"completed","extra":{"a":[1,2]}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, srv.Client())
	res, err := c.CheckStatus(context.Background(), "pay_123")
	require.NoError(t, err)
	assert.Equal(t, "completed", res.ProviderStatus)
	assert.Equal(t, order.PaymentCompleted, c.MapStatus(res.ProviderStatus))
}

func TestClient_Webhook(t *testing.T) {
	c := New(Config{WebhookSecret: "whsec"}, http.DefaultClient)
	payload := []byte(`{"event_type":"payment.completed","data":{"order_id":"ORD-1749988800000-0001","status":"completed","amount":850}}`)

	assert.True(t, c.VerifyWebhookSignature(payload, provider.Sign("whsec", payload)))
	assert.False(t, c.VerifyWebhookSignature(payload, provider.Sign("other", payload)))

	ev, err := c.ParseWebhook(payload)
	require.NoError(t, err)
	assert.True(t, ev.Final)
	assert.Equal(t, "ORD-1749988800000-0001", ev.OrderNumber)
	assert.Equal(t, "completed", ev.ProviderStatus)

	ev, err = c.ParseWebhook([]byte(`{"event_type":"payment.created","data":{"status":"pending"}}`))
	require.NoError(t, err)
	assert.False(t, ev.Final)

	_, err = c.ParseWebhook([]byte(`{"event_type":"payment.failed","data":{}}`))
	require.Error(t, err)
}

func TestClient_MapStatus(t *testing.T) {
	c := New(Config{}, http.DefaultClient)
	for _, s := range []string{"pending", "processing", "completed", "failed", "cancelled", "refunded"} {
		assert.Equal(t, order.PaymentStatus(s), c.MapStatus(s))
	}
	assert.Equal(t, order.PaymentPending, c.MapStatus("requires_action"))
}
