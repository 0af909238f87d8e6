// Package coinbase integrates Coinbase Commerce charges.
package coinbase

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/provider"
)

// Name is the webhook path segment for Coinbase Commerce.
const Name = "coinbase"

const (
	signatureHeader = "x-cc-webhook-signature"
	apiVersion      = "2018-03-22"
)

var statuses = map[string]order.PaymentStatus{
	"NEW":            order.PaymentPending,
	"PENDING":        order.PaymentProcessing,
	"CONFIRMED":      order.PaymentCompleted,
	"FAILED":         order.PaymentFailed,
	"EXPIRED":        order.PaymentCancelled,
	"CANCELED":       order.PaymentCancelled,
	"REFUND PENDING": order.PaymentRefunded,
	"REFUNDED":       order.PaymentRefunded,
}

// Config holds Coinbase Commerce credentials and redirect targets.
type Config struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	RedirectURL   string
	CancelURL     string
}

// Client is a payment.Provider backed by the Coinbase Commerce API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Provider = (*Client)(nil)

// New creates a Coinbase Commerce client.
func New(cfg Config, client *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.commerce.coinbase.com"
	}
	return &Client{cfg: cfg, http: client}
}

func (c *Client) Name() string                { return Name }
func (c *Client) Method() order.PaymentMethod { return order.MethodCryptoCoinbase }
func (c *Client) SignatureHeader() string     { return signatureHeader }

// Coinbase does not settle in TRY, lira prices are charged in USD.
func currencyCode(symbol string) string {
	switch symbol {
	case "€":
		return "EUR"
	default:
		return "USD"
	}
}

func (c *Client) encodeCharge(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(o.Product.Name + " - " + o.Service.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str("Payment for " + o.Product.Name) })
		e.Field("pricing_type", func(e *jx.Encoder) { e.Str("fixed_price") })
		e.Field("local_price", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("amount", func(e *jx.Encoder) { e.Str(o.Pricing.FinalPrice.StringFixed(2)) })
				e.Field("currency", func(e *jx.Encoder) { e.Str(currencyCode(o.Pricing.Currency)) })
			})
		})
		e.Field("metadata", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
				e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
				e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
				e.Field("customer_name", func(e *jx.Encoder) { e.Str(o.Customer.FullName) })
				e.Field("customer_email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
			})
		})
		e.Field("redirect_url", func(e *jx.Encoder) { e.Str(c.cfg.RedirectURL) })
		e.Field("cancel_url", func(e *jx.Encoder) { e.Str(c.cfg.CancelURL) })
	})
	return e.Bytes()
}

// charge is the subset of a Coinbase charge we read.
type charge struct {
	ID          string
	HostedURL   string
	OrderNumber string
	Timeline    []string
}

// first and last return timeline statuses. Creation reports the first,
// status checks and webhooks the latest.
func (ch charge) first() string {
	if len(ch.Timeline) == 0 {
		return ""
	}
	return ch.Timeline[0]
}

func (ch charge) last() string {
	if len(ch.Timeline) == 0 {
		return ""
	}
	return ch.Timeline[len(ch.Timeline)-1]
}

func decodeCharge(d *jx.Decoder) (charge, error) {
	var ch charge
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			ch.ID, err = d.Str()
		case "hosted_url":
			ch.HostedURL, err = d.Str()
		case "metadata":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "order_number" || d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				ch.OrderNumber = s
				return err
			})
		case "timeline":
			if d.Next() != jx.Array {
				return d.Skip()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				status := ""
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					if string(key) != "status" {
						return d.Skip()
					}
					s, err := d.Str()
					status = s
					return err
				}); err != nil {
					return err
				}
				ch.Timeline = append(ch.Timeline, status)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return ch, err
}

// decodeEnvelope reads {"data": <charge>}.
func decodeEnvelope(body []byte) (charge, error) {
	var (
		ch    charge
		found bool
	)
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "data" {
			return d.Skip()
		}
		found = true
		var err error
		ch, err = decodeCharge(d)
		return err
	})
	if err != nil {
		return ch, errors.Wrap(err, "decode charge")
	}
	if !found {
		return ch, errors.New("response has no charge")
	}
	return ch, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, provider.JoinURL(c.cfg.BaseURL, path), r)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("X-CC-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-CC-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreatePayment creates a fixed price charge for the order.
func (c *Client) CreatePayment(ctx context.Context, o *order.Order) (*payment.Checkout, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/charges", c.encodeCharge(o))
	if err != nil {
		return nil, err
	}
	body, err := provider.Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	ch, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if ch.ID == "" {
		return nil, errors.New("response has no charge id")
	}
	return &payment.Checkout{
		PaymentID:      ch.ID,
		PaymentURL:     ch.HostedURL,
		ProviderStatus: ch.first(),
		Raw:            body,
	}, nil
}

// CheckStatus returns the latest timeline status of a charge.
func (c *Client) CheckStatus(ctx context.Context, paymentID string) (*payment.StatusResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/charges/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	body, err := provider.Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	ch, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return &payment.StatusResult{ProviderStatus: ch.last(), Raw: body}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	return provider.VerifySignature(c.cfg.WebhookSecret, payload, signature)
}

// ParseWebhook decodes {"event": {"type": ..., "data": <charge>}}.
func (c *Client) ParseWebhook(payload []byte) (*payment.WebhookEvent, error) {
	var (
		ev payment.WebhookEvent
		ch charge
	)
	err := jx.DecodeBytes(payload).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "event" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "type":
				s, err := d.Str()
				ev.Type = s
				return err
			case "data":
				var err error
				ch, err = decodeCharge(d)
				return err
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	if ev.Type == "" {
		return nil, errors.New("webhook has no event type")
	}
	ev.OrderNumber = ch.OrderNumber
	ev.ProviderStatus = ch.last()
	ev.Final = ev.Type == "charge:confirmed" || ev.Type == "charge:failed"
	if ev.Final && ev.OrderNumber == "" {
		return nil, errors.New("webhook has no order number")
	}
	return &ev, nil
}

// MapStatus maps a timeline status. Unknown values map to pending.
func (c *Client) MapStatus(s string) order.PaymentStatus {
	if st, ok := statuses[s]; ok {
		return st
	}
	return order.PaymentPending
}
