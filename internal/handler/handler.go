// Package handler exposes the order, payment and tracking operations over
// HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
)

// Orders is the order lifecycle as the API uses it.
type Orders interface {
	Create(ctx context.Context, p auth.Principal, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	FindByNumber(ctx context.Context, number string) (*order.Order, error)
	List(ctx context.Context, p auth.Principal, f order.ListFilter) ([]order.Order, int, error)
	ListAll(ctx context.Context, p auth.Principal, f order.ListFilter) ([]order.Order, int, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id string, u order.StatusUpdate) (*order.Order, error)
	PreviewCoupon(ctx context.Context, p auth.Principal, code, productID string) (*order.CouponPreview, error)
}

// Payments is payment reconciliation as the API uses it.
type Payments interface {
	Initiate(ctx context.Context, p auth.Principal, orderID string) (*payment.Handle, error)
	Poll(ctx context.Context, p auth.Principal, orderID string) (*order.Order, error)
	HandleWebhook(ctx context.Context, provider string, raw []byte, signature string) error
}

// Providers resolves webhook providers by path name.
type Providers interface {
	ByName(name string) (payment.Provider, error)
}

// Handler serves the /api routes.
type Handler struct {
	orders    Orders
	payments  Payments
	providers Providers
	authn     *Authenticator
	validate  *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders Orders, payments Payments, providers Providers, authn *Authenticator) *Handler {
	return &Handler{
		orders:    orders,
		payments:  payments,
		providers: providers,
		authn:     authn,
		validate:  newValidator(),
	}
}

// Mount registers every API route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/query", h.QueryOrder)
			r.Get("/track/{orderNumber}", h.TrackOrder)

			r.Group(func(r chi.Router) {
				r.Use(h.authn.Require)
				r.Post("/", h.CreateOrder)
				r.Get("/", h.ListOrders)
				r.Post("/validate-coupon", h.ValidateCoupon)
				r.Get("/{id}", h.GetOrder)
				r.With(RequireOperator).Put("/{id}/status", h.UpdateOrderStatus)
			})
		})

		r.With(h.authn.Require, RequireOperator).Get("/admin/orders", h.ListAllOrders)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{provider}/webhook", h.Webhook)

			r.Group(func(r chi.Router) {
				r.Use(h.authn.Require)
				r.Post("/process/{orderId}", h.ProcessPayment)
				r.Get("/status/{orderId}", h.PaymentStatus)
			})
		})
	})
}

// Router returns a standalone router serving the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
