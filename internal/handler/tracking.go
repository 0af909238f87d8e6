package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/tracking"
)

// QueryOrder looks an order up by number for anyone holding it.
func (h *Handler) QueryOrder(w http.ResponseWriter, r *http.Request) {
	var req queryOrderRequest
	if err := decode(r, nil, &req); err != nil {
		writeText(w, http.StatusBadRequest, tracking.MsgNumberRequired, nil)
		return
	}
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		writeText(w, http.StatusBadRequest, tracking.MsgNumberRequired, nil)
		return
	}

	o, err := h.orders.FindByNumber(r.Context(), number)
	if err != nil {
		h.publicLookupFailed(w, r, err, tracking.MsgNumberNotFound)
		return
	}
	pub, err := tracking.Public(o)
	if err != nil {
		h.publicLookupFailed(w, r, err, tracking.MsgNumberNotFound)
		return
	}
	writeText(w, http.StatusOK, tracking.MsgFound, map[string]any{"order": newPublicOrderView(pub)})
}

// TrackOrder returns the public snapshot and milestone timeline.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FindByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.publicLookupFailed(w, r, err, tracking.MsgNotFound)
		return
	}
	t, err := tracking.Track(o)
	if err != nil {
		h.publicLookupFailed(w, r, err, tracking.MsgNotFound)
		return
	}
	writeData(w, http.StatusOK, "", newTrackingView(t))
}

func (h *Handler) publicLookupFailed(w http.ResponseWriter, r *http.Request, err error, notFound tracking.Text) {
	if errors.Is(err, order.ErrNotFound) {
		writeText(w, http.StatusNotFound, notFound, nil)
		return
	}
	zctx.From(r.Context()).Error("Public order lookup failed", zap.Error(err))
	writeText(w, http.StatusInternalServerError, tracking.MsgServerError, nil)
}
