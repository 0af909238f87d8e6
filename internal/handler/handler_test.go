package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/domain/pricing"
)

var (
	testSecret = []byte("jwt-secret")
	testPepper = []byte("pepper")
	testNow    = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
)

type mockOrders struct {
	create       func(p auth.Principal, req order.CreateRequest) (*order.Order, error)
	get          func(p auth.Principal, id string) (*order.Order, error)
	findByNumber func(number string) (*order.Order, error)
	list         func(p auth.Principal, f order.ListFilter) ([]order.Order, int, error)
	updateStatus func(p auth.Principal, id string, u order.StatusUpdate) (*order.Order, error)
	preview      func(p auth.Principal, code, productID string) (*order.CouponPreview, error)
}

func (m *mockOrders) Create(_ context.Context, p auth.Principal, req order.CreateRequest) (*order.Order, error) {
	return m.create(p, req)
}

func (m *mockOrders) Get(_ context.Context, p auth.Principal, id string) (*order.Order, error) {
	return m.get(p, id)
}

func (m *mockOrders) FindByNumber(_ context.Context, number string) (*order.Order, error) {
	return m.findByNumber(number)
}

func (m *mockOrders) List(_ context.Context, p auth.Principal, f order.ListFilter) ([]order.Order, int, error) {
	return m.list(p, f)
}

func (m *mockOrders) ListAll(_ context.Context, p auth.Principal, f order.ListFilter) ([]order.Order, int, error) {
	if !p.IsOperator() {
		return nil, 0, order.ErrForbidden
	}
	return m.list(p, f)
}

func (m *mockOrders) UpdateStatus(_ context.Context, p auth.Principal, id string, u order.StatusUpdate) (*order.Order, error) {
	return m.updateStatus(p, id, u)
}

func (m *mockOrders) PreviewCoupon(_ context.Context, p auth.Principal, code, productID string) (*order.CouponPreview, error) {
	return m.preview(p, code, productID)
}

type mockPayments struct {
	initiate func(p auth.Principal, orderID string) (*payment.Handle, error)
	poll     func(p auth.Principal, orderID string) (*order.Order, error)
	webhook  func(provider string, raw []byte, signature string) error
}

func (m *mockPayments) Initiate(_ context.Context, p auth.Principal, orderID string) (*payment.Handle, error) {
	return m.initiate(p, orderID)
}

func (m *mockPayments) Poll(_ context.Context, p auth.Principal, orderID string) (*order.Order, error) {
	return m.poll(p, orderID)
}

func (m *mockPayments) HandleWebhook(_ context.Context, provider string, raw []byte, signature string) error {
	return m.webhook(provider, raw, signature)
}

type stubProvider struct{}

func (stubProvider) Name() string                { return "dodo" }
func (stubProvider) Method() order.PaymentMethod { return order.MethodCryptoDodo }
func (stubProvider) SignatureHeader() string     { return "X-Dodo-Signature" }

func (stubProvider) CreatePayment(context.Context, *order.Order) (*payment.Checkout, error) {
	return nil, errors.New("not used")
}

func (stubProvider) CheckStatus(context.Context, string) (*payment.StatusResult, error) {
	return nil, errors.New("not used")
}

func (stubProvider) VerifyWebhookSignature([]byte, string) bool { return false }

func (stubProvider) ParseWebhook([]byte) (*payment.WebhookEvent, error) {
	return nil, errors.New("not used")
}

func (stubProvider) MapStatus(string) order.PaymentStatus { return order.PaymentPending }

type mockKeys map[string]*auth.APIKeyInfo

func (m mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

type testServer struct {
	orders   *mockOrders
	payments *mockPayments
	authn    *Authenticator
	router   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	keys := mockKeys{
		auth.HashKey(testPepper, "svc-key"): {
			ID:      "k1",
			KeyHash: auth.HashKey(testPepper, "svc-key"),
			UserID:  "svc-user",
			Role:    auth.RoleCustomer,
		},
	}
	authn := NewAuthenticator(keys, testPepper, testSecret)
	authn.now = func() time.Time { return testNow }

	s := &testServer{orders: &mockOrders{}, payments: &mockPayments{}, authn: authn}
	h := NewHandler(s.orders, s.payments, payment.NewRegistry(stubProvider{}), authn)
	s.router = h.Router()
	return s
}

func (s *testServer) token(t *testing.T, p auth.Principal) string {
	t.Helper()
	tok, err := s.authn.IssueToken(p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelopeResponse) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelopeResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

type envelopeResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	MessageEn string          `json:"messageEn"`
	Reason    string          `json:"reason"`
	Errors    []fieldError    `json:"errors"`
	Data      json.RawMessage `json:"data"`
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

var (
	customer = auth.Principal{UserID: "u1", Role: auth.RoleCustomer}
	operator = auth.Principal{UserID: "ops", Role: auth.RoleOperator}
)

func sampleOrder() *order.Order {
	return &order.Order{
		ID:          "o1",
		Number:      "ORD-1749988800000-0001",
		UserID:      "u1",
		Product:     order.ProductRef{ID: "p1", Name: "1K Followers", Quantity: 1000},
		Service:     order.ServiceRef{ID: "s1", Name: "Instagram"},
		ProcessLink: "https://instagram.com/someone",
		Customer:    order.Customer{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+905551112233"},
		Pricing: order.Pricing{
			OriginalPrice:  decimal.NewFromInt(1000),
			DiscountAmount: decimal.NewFromInt(150),
			FinalPrice:     decimal.NewFromInt(850),
			Currency:       "₺",
		},
		Payment:    order.Payment{Method: order.MethodCryptoDodo, Status: order.PaymentPending},
		Status:     order.StatusPending,
		AdminNotes: "vip",
		Timestamps: order.Timestamps{Ordered: testNow},
		Version:    1,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

func validCreateBody() map[string]any {
	return map[string]any{
		"productId":   "p1",
		"processLink": "https://instagram.com/someone",
		"customerDetails": map[string]any{
			"fullName": "Ada Lovelace",
			"email":    "ada@example.com",
			"phone":    "+905551112233",
		},
		"paymentMethod": "crypto_dodo",
		"couponCode":    "SAVE15",
	}
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)
	var got order.CreateRequest
	s.orders.create = func(p auth.Principal, req order.CreateRequest) (*order.Order, error) {
		assert.Equal(t, customer, p)
		got = req
		return sampleOrder(), nil
	}

	w, env := s.do(t, http.MethodPost, "/api/orders", validCreateBody(), bearer(s.token(t, customer)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, "Order created successfully", env.Message)
	assert.Equal(t, order.MethodCryptoDodo, got.PaymentMethod)
	assert.Equal(t, "SAVE15", got.CouponCode)
	assert.Equal(t, "ada@example.com", got.Customer.Email)

	var data struct {
		Order orderView `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ORD-1749988800000-0001", data.Order.OrderNumber)
	assert.InDelta(t, 850, data.Order.Pricing.FinalPrice, 0.001)
	assert.Nil(t, data.Order.OrderDuration, "durations are for operators")
}

func TestCreateOrder_Validation(t *testing.T) {
	s := newTestServer(t)
	s.orders.create = func(auth.Principal, order.CreateRequest) (*order.Order, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}

	body := validCreateBody()
	body["processLink"] = "ftp://nope"
	body["paymentMethod"] = "cash"
	body["customerDetails"].(map[string]any)["email"] = "not-an-email"

	w, env := s.do(t, http.MethodPost, "/api/orders", body, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", env.Message)

	fields := make(map[string]string)
	for _, f := range env.Errors {
		fields[f.Field] = f.Message
	}
	assert.Contains(t, fields, "processLink")
	assert.Contains(t, fields, "paymentMethod")
	assert.Contains(t, fields, "customerDetails.email")
}

func TestCreateOrder_MalformedJSON(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/orders", "{", bearer(s.token(t, customer)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "body", env.Errors[0].Field)
}

func TestCreateOrder_CouponRejected(t *testing.T) {
	for _, tt := range []struct {
		err    error
		reason string
	}{
		{coupon.ErrNotFound, coupon.ReasonNotFound},
		{coupon.ErrExpired, coupon.ReasonExpired},
		{errors.Wrap(coupon.ErrPerUserLimitExceeded, "redeem"), coupon.ReasonLimitExceeded},
		{coupon.ErrNotApplicable, coupon.ReasonNotApplicable},
	} {
		t.Run(tt.reason, func(t *testing.T) {
			s := newTestServer(t)
			s.orders.create = func(auth.Principal, order.CreateRequest) (*order.Order, error) {
				return nil, tt.err
			}
			w, env := s.do(t, http.MethodPost, "/api/orders", validCreateBody(), bearer(s.token(t, customer)))
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.reason, env.Reason)
			assert.False(t, env.Success)
		})
	}
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		code int
	}{
		{"unavailable", order.ErrProductUnavailable, http.StatusNotFound},
		{"validation", &order.ValidationError{Field: "paymentMethod", Message: "bad"}, http.StatusBadRequest},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.orders.create = func(auth.Principal, order.CreateRequest) (*order.Order, error) {
				return nil, tt.err
			}
			w, env := s.do(t, http.MethodPost, "/api/orders", validCreateBody(), bearer(s.token(t, customer)))
			assert.Equal(t, tt.code, w.Code)
			assert.NotContains(t, env.Message, "db down")
		})
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	s.orders.get = func(p auth.Principal, _ string) (*order.Order, error) {
		if !p.CanAccess("u1") && p.UserID != "svc-user" {
			return nil, order.ErrForbidden
		}
		return sampleOrder(), nil
	}

	expired, err := s.authn.IssueToken(customer, -time.Minute)
	require.NoError(t, err)

	foreign := NewAuthenticator(mockKeys{}, testPepper, []byte("other-secret"))
	forged, err := foreign.IssueToken(operator, time.Hour)
	require.NoError(t, err)

	for _, tt := range []struct {
		name    string
		headers map[string]string
		code    int
	}{
		{"none", nil, http.StatusUnauthorized},
		{"bearer", bearer(s.token(t, customer)), http.StatusOK},
		{"expired", bearer(expired), http.StatusUnauthorized},
		{"wrong secret", bearer(forged), http.StatusUnauthorized},
		{"garbage", bearer("not.a.jwt"), http.StatusUnauthorized},
		{"api key", map[string]string{APIKeyHeader: "svc-key"}, http.StatusOK},
		{"unknown api key", map[string]string{APIKeyHeader: "nope"}, http.StatusUnauthorized},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodGet, "/api/orders/o1", nil, tt.headers)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestGetOrder(t *testing.T) {
	s := newTestServer(t)
	s.orders.get = func(p auth.Principal, id string) (*order.Order, error) {
		switch {
		case id != "o1":
			return nil, order.ErrNotFound
		case !p.CanAccess("u1"):
			return nil, order.ErrForbidden
		}
		o := sampleOrder()
		completed := testNow.Add(6 * time.Hour)
		o.Timestamps.Completed = &completed
		return o, nil
	}

	w, _ := s.do(t, http.MethodGet, "/api/orders/missing", nil, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := auth.Principal{UserID: "u2", Role: auth.RoleCustomer}
	w, _ = s.do(t, http.MethodGet, "/api/orders/o1", nil, bearer(s.token(t, other)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/orders/o1", nil, bearer(s.token(t, operator)))
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Order orderView `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.Order.OrderDuration)
	assert.Equal(t, 6, *data.Order.OrderDuration)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t)
	var got order.ListFilter
	s.orders.list = func(_ auth.Principal, f order.ListFilter) ([]order.Order, int, error) {
		got = f
		return []order.Order{*sampleOrder()}, 12, nil
	}

	w, env := s.do(t, http.MethodGet, "/api/orders?page=2&limit=5&status=pending", nil, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.ListFilter{Status: order.StatusPending, Limit: 5, Offset: 5}, got)

	var data orderListView
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Orders, 1)
	assert.Equal(t, paginationView{
		CurrentPage: 2,
		TotalPages:  3,
		TotalOrders: 12,
		HasNextPage: true,
		HasPrevPage: true,
	}, data.Pagination)

	w, _ = s.do(t, http.MethodGet, "/api/orders?page=0", nil, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAllOrders(t *testing.T) {
	s := newTestServer(t)
	s.orders.list = func(_ auth.Principal, f order.ListFilter) ([]order.Order, int, error) {
		assert.Equal(t, defaultAdminPage, f.Limit)
		assert.Equal(t, order.PaymentCompleted, f.PaymentStatus)
		return nil, 0, nil
	}

	w, _ := s.do(t, http.MethodGet, "/api/admin/orders", nil, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/admin/orders?paymentStatus=completed", nil, bearer(s.token(t, operator)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t)
	s.orders.updateStatus = func(p auth.Principal, id string, u order.StatusUpdate) (*order.Order, error) {
		if id == "done" {
			return nil, order.ErrInvalidTransition
		}
		o := sampleOrder()
		o.Status = u.Status
		o.Processing.Progress = *u.Progress
		return o, nil
	}

	body := map[string]any{"status": "in_progress", "progress": 40, "adminNotes": "started"}

	w, _ := s.do(t, http.MethodPut, "/api/orders/o1/status", body, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodPut, "/api/orders/o1/status", body, bearer(s.token(t, operator)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Order status updated successfully", env.Message)

	w, _ = s.do(t, http.MethodPut, "/api/orders/done/status", body, bearer(s.token(t, operator)))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(t, http.MethodPut, "/api/orders/o1/status",
		map[string]any{"status": "shipped", "progress": 101}, bearer(s.token(t, operator)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.Errors, 2)
}

func TestValidateCoupon(t *testing.T) {
	s := newTestServer(t)
	c := &coupon.Coupon{
		Code:          "SAVE15",
		Name:          "Summer",
		Discount:      coupon.Discount{Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(15)},
		MinimumAmount: decimal.NewFromInt(100),
	}
	s.orders.preview = func(_ auth.Principal, code, productID string) (*order.CouponPreview, error) {
		if productID == "" {
			return &order.CouponPreview{Coupon: c}, nil
		}
		q := pricing.Price(decimal.NewFromInt(1000), "₺", c)
		return &order.CouponPreview{Coupon: c, Quote: &q}, nil
	}

	w, env := s.do(t, http.MethodPost, "/api/orders/validate-coupon",
		map[string]any{"couponCode": "save15"}, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusOK, w.Code)
	var summary couponPreviewView
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Nil(t, summary.Discount)
	require.NotNil(t, summary.Coupon.MinimumAmount)
	assert.InDelta(t, 100, *summary.Coupon.MinimumAmount, 0.001)

	w, env = s.do(t, http.MethodPost, "/api/orders/validate-coupon",
		map[string]any{"couponCode": "save15", "productId": "p1"}, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusOK, w.Code)
	var quoted couponPreviewView
	require.NoError(t, json.Unmarshal(env.Data, &quoted))
	require.NotNil(t, quoted.Discount)
	assert.InDelta(t, 150, quoted.Discount.DiscountAmount, 0.001)
	assert.InDelta(t, 850, quoted.Discount.FinalPrice, 0.001)

	w, _ = s.do(t, http.MethodPost, "/api/orders/validate-coupon", map[string]any{}, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryOrder(t *testing.T) {
	s := newTestServer(t)
	s.orders.findByNumber = func(number string) (*order.Order, error) {
		switch number {
		case "ORD-1749988800000-0001":
			return sampleOrder(), nil
		case "ORD-BROKEN":
			return nil, errors.New("db down")
		}
		return nil, order.ErrNotFound
	}

	w, env := s.do(t, http.MethodPost, "/api/orders/query", map[string]any{"orderNumber": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Order number is required", env.MessageEn)

	w, env = s.do(t, http.MethodPost, "/api/orders/query", map[string]any{"orderNumber": "ORD-0"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Order number not found. Please try again.", env.MessageEn)

	w, env = s.do(t, http.MethodPost, "/api/orders/query", map[string]any{"orderNumber": "ORD-BROKEN"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error occurred", env.MessageEn)

	w, env = s.do(t, http.MethodPost, "/api/orders/query",
		map[string]any{"orderNumber": " ORD-1749988800000-0001 "}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sipariş bulundu", env.Message)
	assert.Equal(t, "Order found", env.MessageEn)
	assert.NotContains(t, w.Body.String(), "ada@example.com")
	assert.NotContains(t, w.Body.String(), "vip")
	assert.NotContains(t, w.Body.String(), "userId")
}

func TestTrackOrder(t *testing.T) {
	s := newTestServer(t)
	s.orders.findByNumber = func(number string) (*order.Order, error) {
		if number != "ORD-1749988800000-0001" {
			return nil, order.ErrNotFound
		}
		return sampleOrder(), nil
	}

	w, env := s.do(t, http.MethodGet, "/api/orders/track/ORD-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Sipariş bulunamadı", env.Message)

	w, env = s.do(t, http.MethodGet, "/api/orders/track/ORD-1749988800000-0001", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data trackingView
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Timeline, 2)
	assert.Equal(t, "ordered", data.Timeline[0].Step)
	assert.Equal(t, "payment_pending", data.Timeline[1].Step)
	assert.Equal(t, "Ada Lovelace", data.Order.CustomerName)
}

func TestProcessPayment(t *testing.T) {
	s := newTestServer(t)
	s.payments.initiate = func(p auth.Principal, orderID string) (*payment.Handle, error) {
		switch orderID {
		case "paid":
			return nil, payment.ErrInvalidOrderState
		case "down":
			return nil, &payment.ProviderError{Provider: "dodo", Op: "create payment", Err: errors.New("timeout")}
		}
		o := sampleOrder()
		o.Payment.Status = order.PaymentProcessing
		return &payment.Handle{
			Order:      o,
			PaymentID:  "pay_1",
			PaymentURL: "https://pay.example/1",
			QRCode:     []byte{0x89, 'P', 'N', 'G'},
		}, nil
	}

	w, env := s.do(t, http.MethodPost, "/api/payments/process/o1", nil, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusOK, w.Code)
	var data paymentHandleView
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "pay_1", data.PaymentID)
	assert.Equal(t, "processing", data.Order.PaymentStatus)
	assert.Contains(t, data.QRCode, "data:image/png;base64,")

	w, _ = s.do(t, http.MethodPost, "/api/payments/process/paid", nil, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/payments/process/down", nil, bearer(s.token(t, customer)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPaymentStatus(t *testing.T) {
	s := newTestServer(t)
	s.payments.poll = func(auth.Principal, string) (*order.Order, error) {
		o := sampleOrder()
		o.Payment.Status = order.PaymentCompleted
		o.Payment.TransactionID = "pay_1"
		return o, nil
	}

	w, env := s.do(t, http.MethodGet, "/api/payments/status/o1", nil, bearer(s.token(t, customer)))
	require.Equal(t, http.StatusOK, w.Code)
	var data paymentStatusView
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, paymentStatusView{PaymentStatus: "completed", OrderStatus: "pending", TransactionID: "pay_1"}, data)
}

func TestWebhook(t *testing.T) {
	s := newTestServer(t)
	var gotSig string
	var gotRaw []byte
	s.payments.webhook = func(provider string, raw []byte, signature string) error {
		gotSig, gotRaw = signature, raw
		switch signature {
		case "bad":
			return payment.ErrInvalidSignature
		case "boom":
			return errors.New("db down")
		}
		return nil
	}

	body := `{"event_type":"payment.completed"}`
	w, env := s.do(t, http.MethodPost, "/api/payments/dodo/webhook", body, map[string]string{"X-Dodo-Signature": "good"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "good", gotSig)
	assert.Equal(t, body, string(gotRaw))

	w, env = s.do(t, http.MethodPost, "/api/payments/dodo/webhook", body, map[string]string{"X-Dodo-Signature": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid webhook signature", env.Message)

	w, env = s.do(t, http.MethodPost, "/api/payments/dodo/webhook", body, map[string]string{"X-Dodo-Signature": "boom"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Webhook processing failed", env.Message)

	w, _ = s.do(t, http.MethodPost, "/api/payments/stripe/webhook", body, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
