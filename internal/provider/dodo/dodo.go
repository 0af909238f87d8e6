// Package dodo integrates the DodoPayments crypto checkout.
package dodo

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/provider"
)

// Name is the webhook path segment for DodoPayments.
const Name = "dodo"

const signatureHeader = "x-dodo-signature"

// Config holds DodoPayments credentials and redirect targets.
type Config struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	// CallbackURL receives server-to-server notifications.
	CallbackURL string
	ReturnURL   string
	CancelURL   string
}

// Client is a payment.Provider backed by the DodoPayments API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Provider = (*Client)(nil)

// New creates a DodoPayments client.
func New(cfg Config, client *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dodopayments.com"
	}
	return &Client{cfg: cfg, http: client}
}

func (c *Client) Name() string                { return Name }
func (c *Client) Method() order.PaymentMethod { return order.MethodCryptoDodo }
func (c *Client) SignatureHeader() string     { return signatureHeader }

func currencyCode(symbol string) string {
	switch symbol {
	case "₺":
		return "TRY"
	case "$":
		return "USD"
	case "€":
		return "EUR"
	default:
		return symbol
	}
}

func (c *Client) encodeCreate(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Num(jx.Num(o.Pricing.FinalPrice.StringFixed(2))) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currencyCode(o.Pricing.Currency)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("description", func(e *jx.Encoder) {
			e.Str("Payment for " + o.Product.Name + " - " + o.Service.Name)
		})
		e.Field("customer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Customer.FullName) })
				e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(o.Customer.Phone) })
			})
		})
		e.Field("callback_url", func(e *jx.Encoder) { e.Str(c.cfg.CallbackURL) })
		e.Field("return_url", func(e *jx.Encoder) { e.Str(c.cfg.ReturnURL) })
		e.Field("cancel_url", func(e *jx.Encoder) { e.Str(c.cfg.CancelURL) })
		e.Field("metadata", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
				e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
			})
		})
	})
	return e.Bytes()
}

type paymentResponse struct {
	ID         string
	PaymentURL string
	Status     string
}

func decodePayment(body []byte) (paymentResponse, error) {
	var p paymentResponse
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "payment_id":
			p.ID, err = d.Str()
		case "payment_url", "payment_link":
			p.PaymentURL, err = d.Str()
		case "status":
			p.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, errors.Wrap(err, "decode payment")
	}
	return p, nil
}

// CreatePayment creates a checkout for the order's final price.
func (c *Client) CreatePayment(ctx context.Context, o *order.Order) (*payment.Checkout, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		provider.JoinURL(c.cfg.BaseURL, "/v1/payments"), bytes.NewReader(c.encodeCreate(o)))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := provider.Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	p, err := decodePayment(body)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("response has no payment id")
	}
	return &payment.Checkout{
		PaymentID:      p.ID,
		PaymentURL:     p.PaymentURL,
		ProviderStatus: p.Status,
		Raw:            body,
	}, nil
}

// CheckStatus fetches the current payment status.
func (c *Client) CheckStatus(ctx context.Context, paymentID string) (*payment.StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		provider.JoinURL(c.cfg.BaseURL, "/v1/payments/"+url.PathEscape(paymentID)), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	body, err := provider.Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	p, err := decodePayment(body)
	if err != nil {
		return nil, err
	}
	return &payment.StatusResult{ProviderStatus: p.Status, Raw: body}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	return provider.VerifySignature(c.cfg.WebhookSecret, payload, signature)
}

// ParseWebhook decodes {"event_type": ..., "data": {"order_id": ..., "status": ...}}.
func (c *Client) ParseWebhook(payload []byte) (*payment.WebhookEvent, error) {
	var ev payment.WebhookEvent
	err := jx.DecodeBytes(payload).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event_type":
			s, err := d.Str()
			ev.Type = s
			return err
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "order_id":
					ev.OrderNumber, err = d.Str()
				case "status":
					ev.ProviderStatus, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	if ev.Type == "" {
		return nil, errors.New("webhook has no event type")
	}
	ev.Final = ev.Type == "payment.completed" || ev.Type == "payment.failed"
	if ev.Final && ev.OrderNumber == "" {
		return nil, errors.New("webhook has no order id")
	}
	return &ev, nil
}

// MapStatus passes known statuses through and maps anything else to pending.
func (c *Client) MapStatus(s string) order.PaymentStatus {
	switch st := order.PaymentStatus(s); st {
	case order.PaymentPending, order.PaymentProcessing, order.PaymentCompleted,
		order.PaymentFailed, order.PaymentCancelled, order.PaymentRefunded:
		return st
	default:
		return order.PaymentPending
	}
}
