package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/engage-orders/internal/domain/order"
)

// Reconciliation errors.
var (
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidOrderState = errors.New("order is not awaiting payment")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrUnknownProvider   = errors.New("unknown payment provider")
)

// ProviderError wraps a failed or unreachable payment provider call. The
// order is left untouched and the caller may retry.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Checkout is a payment created at a provider.
type Checkout struct {
	PaymentID      string
	PaymentURL     string
	ProviderStatus string
	// Raw is the provider response body, stored verbatim.
	Raw []byte
}

// StatusResult is a provider status lookup.
type StatusResult struct {
	ProviderStatus string
	Raw            []byte
}

// WebhookEvent is a verified, decoded provider notification.
type WebhookEvent struct {
	Type           string
	OrderNumber    string
	ProviderStatus string
	// Final is set for completed and failed events, the only ones applied.
	Final bool
}

// Provider is a payment processor integration.
type Provider interface {
	// Name is the path segment webhooks are delivered to.
	Name() string
	Method() order.PaymentMethod
	CreatePayment(ctx context.Context, o *order.Order) (*Checkout, error)
	CheckStatus(ctx context.Context, paymentID string) (*StatusResult, error)
	// VerifyWebhookSignature checks signature against the raw request body.
	// It must fail closed when no secret is configured.
	VerifyWebhookSignature(payload []byte, signature string) bool
	// SignatureHeader names the request header carrying the signature.
	SignatureHeader() string
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	// MapStatus normalizes a provider status. Unknown values map to pending.
	MapStatus(providerStatus string) order.PaymentStatus
}

// Registry resolves providers by webhook name and by payment method.
type Registry struct {
	byName   map[string]Provider
	byMethod map[order.PaymentMethod]Provider
}

// NewRegistry indexes the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		byName:   make(map[string]Provider, len(providers)),
		byMethod: make(map[order.PaymentMethod]Provider, len(providers)),
	}
	for _, p := range providers {
		r.byName[p.Name()] = p
		r.byMethod[p.Method()] = p
	}
	return r
}

// ByName returns the provider receiving webhooks under name.
func (r *Registry) ByName(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, name)
	}
	return p, nil
}

// ByMethod returns the provider that handles payment method m.
func (r *Registry) ByMethod(m order.PaymentMethod) (Provider, error) {
	p, ok := r.byMethod[m]
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedMethod, string(m))
	}
	return p, nil
}
