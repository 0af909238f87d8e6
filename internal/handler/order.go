package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/order"
)

const (
	defaultPageSize  = 10
	defaultAdminPage = 20
)

// CreateOrder places an order for the authenticated user.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := principal(r)
	o, err := h.orders.Create(r.Context(), p, order.CreateRequest{
		ProductID:   req.ProductID,
		ProcessLink: req.ProcessLink,
		Customer: order.Customer{
			FullName: req.CustomerDetails.FullName,
			Email:    req.CustomerDetails.Email,
			Phone:    req.CustomerDetails.Phone,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Order created successfully", map[string]any{
		"order": newOrderView(o, p.IsOperator()),
	})
}

// ListOrders returns the caller's own orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, defaultPageSize, h.orders.List)
}

// ListAllOrders returns every order. Operators only.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, defaultAdminPage, h.orders.ListAll)
}

type listFunc func(ctx context.Context, p auth.Principal, f order.ListFilter) ([]order.Order, int, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, defaultLimit int, fn listFunc) {
	page, limit, err := pageParams(r, defaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	p := principal(r)

	orders, total, err := fn(r.Context(), p, order.ListFilter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("paymentStatus")),
		Limit:         limit,
		Offset:        (page - 1) * limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", newOrderListView(orders, total, page, limit, p.IsOperator()))
}

// GetOrder returns a single order to its owner or an operator.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	o, err := h.orders.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"order": newOrderView(o, p.IsOperator())})
}

// UpdateOrderStatus applies an operator status change.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := principal(r)
	o, err := h.orders.UpdateStatus(r.Context(), p, chi.URLParam(r, "id"), order.StatusUpdate{
		Status:     order.Status(req.Status),
		AdminNotes: req.AdminNotes,
		Progress:   req.Progress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order status updated successfully", map[string]any{
		"order": newOrderView(o, true),
	})
}

// ValidateCoupon previews a coupon, optionally priced against a product.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decode(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := h.orders.PreviewCoupon(r.Context(), principal(r), req.CouponCode, req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Coupon is valid", newCouponPreviewView(preview.Coupon, preview.Quote))
}
