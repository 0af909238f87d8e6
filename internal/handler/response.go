package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/catalog"
	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/domain/tracking"
)

// envelope is the body of every API response.
type envelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message,omitempty"`
	MessageEn string       `json:"messageEn,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Errors    []fieldError `json:"errors,omitempty"`
	Data      any          `json:"data,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Message: message})
}

func writeText(w http.ResponseWriter, status int, text tracking.Text, data any) {
	writeJSON(w, status, envelope{
		Success:   status < http.StatusBadRequest,
		Message:   text.TR,
		MessageEn: text.EN,
		Data:      data,
	})
}

var couponMessages = map[string]string{
	coupon.ReasonNotFound:      "Invalid coupon code",
	coupon.ReasonExpired:       "Coupon has expired or is not valid",
	coupon.ReasonLimitExceeded: "Coupon usage limit exceeded",
	coupon.ReasonNotApplicable: "Coupon is not applicable to this product",
}

// writeError maps err to a status code and envelope. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  *requestError
		valErr  *order.ValidationError
		provErr *payment.ProviderError
	)
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Validation failed", Errors: reqErr.fields})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, envelope{
			Message: "Validation failed",
			Errors:  []fieldError{{Field: valErr.Field, Message: valErr.Message}},
		})
	case coupon.Reason(err) != "":
		reason := coupon.Reason(err)
		writeJSON(w, http.StatusBadRequest, envelope{Message: couponMessages[reason], Reason: reason})
	case errors.Is(err, errUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "Not authorized")
	case errors.Is(err, payment.ErrInvalidSignature):
		writeFailure(w, http.StatusUnauthorized, "Invalid webhook signature")
	case errors.Is(err, order.ErrForbidden):
		writeFailure(w, http.StatusForbidden, "Not authorized to access this order")
	case errors.Is(err, order.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrProductUnavailable), errors.Is(err, catalog.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Product not found or not available")
	case errors.Is(err, payment.ErrUnknownProvider):
		writeFailure(w, http.StatusNotFound, "Unknown payment provider")
	case errors.Is(err, payment.ErrUnsupportedMethod):
		writeFailure(w, http.StatusBadRequest, "Unsupported payment method")
	case errors.Is(err, order.ErrInvalidTransition):
		writeFailure(w, http.StatusConflict, "Order can no longer change status")
	case errors.Is(err, payment.ErrInvalidOrderState):
		writeFailure(w, http.StatusConflict, "Order is not awaiting payment")
	case errors.Is(err, order.ErrConcurrentUpdate):
		writeFailure(w, http.StatusConflict, "Order was modified concurrently, please retry")
	case errors.As(err, &provErr):
		zctx.From(r.Context()).Warn("Payment provider failed",
			zap.String("provider", provErr.Provider),
			zap.String("op", provErr.Op),
			zap.Error(provErr.Err),
		)
		writeFailure(w, http.StatusBadGateway, "Payment provider is unavailable")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	}
}
