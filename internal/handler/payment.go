package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/payment"
)

const maxWebhookBytes = 256 << 10

// ProcessPayment creates a payment at the order's provider.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	handle, err := h.payments.Initiate(r.Context(), principal(r), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Payment initiated successfully", newPaymentHandleView(handle))
}

// PaymentStatus refreshes the payment status from the provider.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.payments.Poll(r.Context(), principal(r), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", paymentStatusView{
		PaymentStatus: string(o.Payment.Status),
		OrderStatus:   string(o.Status),
		TransactionID: o.Payment.TransactionID,
	})
}

// Webhook receives a provider notification. The signature is checked
// against the exact bytes received.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	prov, err := h.providers.ByName(name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeFailure(w, http.StatusRequestEntityTooLarge, "Webhook payload too large")
		return
	}

	err = h.payments.HandleWebhook(r.Context(), name, raw, r.Header.Get(prov.SignatureHeader()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, envelope{Success: true})
	case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrUnknownProvider):
		writeError(w, r, err)
	default:
		zctx.From(r.Context()).Error("Webhook processing failed", zap.String("provider", name), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}
