package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/order"
)

const instrumentationName = "github.com/xenking/engage-orders/internal/domain/payment"

// Orders is the slice of the order lifecycle reconciliation needs.
type Orders interface {
	Get(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	Mutate(ctx context.Context, ref order.Ref, fn func(o *order.Order) (bool, error)) (*order.Order, error)
	AwaitingPayment(ctx context.Context, updatedBefore time.Time, limit int) ([]order.Order, error)
}

// DeliveryStore remembers processed webhook deliveries.
type DeliveryStore interface {
	// Claim marks key as being processed. It returns false if the key was
	// already claimed within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so the delivery can be retried.
	Release(ctx context.Context, key string) error
}

// Config tunes the reconciler.
type Config struct {
	// ProviderTimeout bounds every outbound provider call.
	ProviderTimeout time.Duration
	// DeliveryTTL is how long processed webhook deliveries are remembered.
	DeliveryTTL time.Duration
	// SweepAge is how long a payment may stay processing before the sweeper
	// polls it.
	SweepAge time.Duration
	// SweepBatch caps orders polled per sweep.
	SweepBatch int
	// SweepConcurrency caps parallel provider calls per sweep.
	SweepConcurrency int
}

func (c *Config) setDefaults() {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 15 * time.Second
	}
	if c.DeliveryTTL <= 0 {
		c.DeliveryTTL = 72 * time.Hour
	}
	if c.SweepAge <= 0 {
		c.SweepAge = 10 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 50
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 4
	}
}

// Handle is the result of initiating a payment.
type Handle struct {
	Order          *order.Order
	PaymentID      string
	PaymentURL     string
	ProviderStatus string
	// QRCode is a PNG of PaymentURL. Empty if rendering failed.
	QRCode []byte
}

type metrics struct {
	statusChanges    metric.Int64Counter
	webhooksRejected metric.Int64Counter
	providerErrors   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.statusChanges, err = meter.Int64Counter("payment.status_changes",
		metric.WithDescription("Payment status changes applied to orders"),
	); err != nil {
		return nil, errors.Wrap(err, "status changes counter")
	}
	if m.webhooksRejected, err = meter.Int64Counter("payment.webhooks_rejected",
		metric.WithDescription("Webhooks rejected for bad signatures"),
	); err != nil {
		return nil, errors.Wrap(err, "webhooks rejected counter")
	}
	if m.providerErrors, err = meter.Int64Counter("payment.provider_errors",
		metric.WithDescription("Failed payment provider calls"),
	); err != nil {
		return nil, errors.Wrap(err, "provider errors counter")
	}
	return &m, nil
}

// Reconciler syncs order payment state with providers through caller
// initiated payments, client polls, provider webhooks and a periodic sweep.
type Reconciler struct {
	orders     Orders
	providers  *Registry
	deliveries DeliveryStore
	cfg        Config
	now        func() time.Time

	tracer  trace.Tracer
	metrics *metrics
	polls   singleflight.Group
}

// NewReconciler creates a Reconciler. deliveries may be nil, in which case
// webhook replays rely on idempotent application alone.
func NewReconciler(
	orders Orders,
	providers *Registry,
	deliveries DeliveryStore,
	cfg Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Reconciler, error) {
	cfg.setDefaults()
	m, err := newMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		orders:     orders,
		providers:  providers,
		deliveries: deliveries,
		cfg:        cfg,
		now:        time.Now,
		tracer:     tp.Tracer(instrumentationName),
		metrics:    m,
	}, nil
}

// Initiate creates a provider payment for a pending order owned by p.
func (r *Reconciler) Initiate(ctx context.Context, p auth.Principal, orderID string) (*Handle, error) {
	ctx, span := r.tracer.Start(ctx, "payment.Initiate",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	o, err := r.orders.Get(ctx, p, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID {
		return nil, order.ErrForbidden
	}
	if !o.AwaitingPayment() {
		return nil, ErrInvalidOrderState
	}

	prov, err := r.providers.ByMethod(o.Payment.Method)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.provider", prov.Name()))

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	checkout, err := prov.CreatePayment(callCtx, o)
	cancel()
	if err != nil {
		return nil, r.providerFailure(ctx, span, prov, "create payment", err)
	}

	updated, err := r.orders.Mutate(ctx, order.ByID(o.ID), func(o *order.Order) (bool, error) {
		if !o.AwaitingPayment() {
			return false, ErrInvalidOrderState
		}
		o.Payment.TransactionID = checkout.PaymentID
		o.Payment.Status = order.PaymentProcessing
		o.Payment.Data = checkout.Raw
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("order_number", updated.Number),
		zap.String("provider", prov.Name()),
	)
	lg.Info("Payment initiated", zap.String("payment_id", checkout.PaymentID))

	h := &Handle{
		Order:          updated,
		PaymentID:      checkout.PaymentID,
		PaymentURL:     checkout.PaymentURL,
		ProviderStatus: checkout.ProviderStatus,
	}
	if png, err := QRCode(checkout.PaymentURL); err != nil {
		lg.Warn("Render payment QR", zap.Error(err))
	} else {
		h.QRCode = png
	}
	return h, nil
}

// Poll refreshes the payment status of an order visible to p. Orders without
// a provider payment are returned as is. Concurrent polls for the same order
// share one provider call.
func (r *Reconciler) Poll(ctx context.Context, p auth.Principal, orderID string) (*order.Order, error) {
	o, err := r.orders.Get(ctx, p, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.TransactionID == "" {
		return o, nil
	}
	return r.refresh(ctx, o, "poll")
}

// refresh shares one status check per order between concurrent callers. The
// shared call outlives any single caller; each caller stops waiting when its
// own context ends.
func (r *Reconciler) refresh(ctx context.Context, o *order.Order, source string) (*order.Order, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.polls.DoChan(o.ID, func() (any, error) {
		return r.checkAndApply(shared, o, source)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*order.Order), nil
	}
}

func (r *Reconciler) checkAndApply(ctx context.Context, o *order.Order, source string) (*order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "payment.CheckStatus",
		trace.WithAttributes(
			attribute.String("order.id", o.ID),
			attribute.String("payment.source", source),
		),
	)
	defer span.End()

	prov, err := r.providers.ByMethod(o.Payment.Method)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	res, err := prov.CheckStatus(callCtx, o.Payment.TransactionID)
	cancel()
	if err != nil {
		return nil, r.providerFailure(ctx, span, prov, "check status", err)
	}

	status := prov.MapStatus(res.ProviderStatus)
	if status == o.Payment.Status {
		return o, nil
	}
	updated, _, err := r.apply(ctx, order.ByID(o.ID), status, res.Raw, source)
	return updated, err
}

// HandleWebhook verifies and applies a provider notification. Only a bad
// signature is an error the provider sees; unmatched orders, non-final events
// and replays are acknowledged.
func (r *Reconciler) HandleWebhook(ctx context.Context, providerName string, raw []byte, signature string) error {
	prov, err := r.providers.ByName(providerName)
	if err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "payment.HandleWebhook",
		trace.WithAttributes(attribute.String("payment.provider", prov.Name())),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("provider", prov.Name()))
	if !prov.VerifyWebhookSignature(raw, signature) {
		r.metrics.webhooksRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", prov.Name())))
		lg.Warn("Rejected webhook with invalid signature", zap.Int("body_size", len(raw)))
		span.SetStatus(codes.Error, "invalid signature")
		return ErrInvalidSignature
	}

	ev, err := prov.ParseWebhook(raw)
	if err != nil {
		lg.Warn("Ignoring malformed webhook", zap.Error(err))
		return nil
	}
	lg = lg.With(zap.String("event", ev.Type), zap.String("order_number", ev.OrderNumber))
	if !ev.Final {
		lg.Debug("Ignoring non-final webhook event")
		return nil
	}

	key := deliveryKey(prov.Name(), raw)
	claimed := false
	if r.deliveries != nil {
		ok, err := r.deliveries.Claim(ctx, key, r.cfg.DeliveryTTL)
		switch {
		case err != nil:
			lg.Warn("Webhook dedupe unavailable", zap.Error(err))
		case !ok:
			lg.Info("Skipping replayed webhook delivery")
			return nil
		default:
			claimed = true
		}
	}

	status := prov.MapStatus(ev.ProviderStatus)
	_, changed, err := r.apply(ctx, order.ByNumber(ev.OrderNumber), status, raw, "webhook")
	if errors.Is(err, order.ErrNotFound) {
		lg.Warn("Webhook references unknown order")
		return nil
	}
	if err != nil {
		if claimed {
			if rerr := r.deliveries.Release(ctx, key); rerr != nil {
				lg.Warn("Release webhook delivery", zap.Error(rerr))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply webhook")
		return errors.Wrap(err, "apply webhook")
	}

	lg.Info("Webhook processed",
		zap.String("payment_status", string(status)),
		zap.Bool("changed", changed),
	)
	return nil
}

// Sweep polls orders stuck in payment processing longer than the configured
// age. It returns how many orders changed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "payment.Sweep")
	defer span.End()

	cutoff := r.now().Add(-r.cfg.SweepAge)
	stale, err := r.orders.AwaitingPayment(ctx, cutoff, r.cfg.SweepBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list stale payments")
	}
	span.SetAttributes(attribute.Int("payment.stale", len(stale)))

	var changed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SweepConcurrency)
	for i := range stale {
		o := &stale[i]
		g.Go(func() error {
			before := o.Payment.Status
			updated, err := r.refresh(gctx, o, "sweep")
			if err != nil {
				zctx.From(gctx).Warn("Sweep payment",
					zap.String("order_number", o.Number),
					zap.Error(err),
				)
				return nil
			}
			if updated.Payment.Status != before {
				changed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(changed.Load()), nil
}

// apply writes a normalized status through the order's compare-and-swap
// loop and reports whether anything changed.
func (r *Reconciler) apply(
	ctx context.Context,
	ref order.Ref,
	status order.PaymentStatus,
	payload []byte,
	source string,
) (*order.Order, bool, error) {
	changed := false
	now := r.now().UTC()
	updated, err := r.orders.Mutate(ctx, ref, func(o *order.Order) (bool, error) {
		changed = o.ApplyPaymentResult(status, payload, now)
		return changed, nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		r.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", string(status)),
		))
		zctx.From(ctx).Info("Payment status changed",
			zap.String("order_number", updated.Number),
			zap.String("payment_status", string(status)),
			zap.String("source", source),
		)
	}
	return updated, changed, nil
}

func (r *Reconciler) providerFailure(ctx context.Context, span trace.Span, prov Provider, op string, err error) error {
	r.metrics.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", prov.Name()),
		attribute.String("op", op),
	))
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	zctx.From(ctx).Error("Payment provider call failed",
		zap.String("provider", prov.Name()),
		zap.String("op", op),
		zap.Error(err),
	)
	return &ProviderError{Provider: prov.Name(), Op: op, Err: err}
}

func deliveryKey(provider string, raw []byte) string {
	sum := sha256.Sum256(raw)
	return provider + ":" + hex.EncodeToString(sum[:])
}
