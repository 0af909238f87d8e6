package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/auth"
	"github.com/xenking/engage-orders/internal/domain/catalog"
	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/domain/pricing"
)

const (
	maxMutateAttempts = 5
	defaultListLimit  = 10
	maxListLimit      = 100
)

// CreateRequest holds the already validated input for placing an order.
type CreateRequest struct {
	ProductID     string
	ProcessLink   string
	Customer      Customer
	PaymentMethod PaymentMethod
	CouponCode    string
}

// CouponPreview is the result of checking a coupon without redeeming it.
type CouponPreview struct {
	Coupon *coupon.Coupon
	Quote  *pricing.Quote
}

// Ref identifies an order by internal id or public number.
type Ref struct {
	ID     string
	Number string
}

// ByID references an order by its internal id.
func ByID(id string) Ref { return Ref{ID: id} }

// ByNumber references an order by its public order number.
func ByNumber(number string) Ref { return Ref{Number: number} }

func (r Ref) String() string {
	if r.Number != "" {
		return r.Number
	}
	return r.ID
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithMeterProvider records order and coupon counters on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("github.com/xenking/engage-orders/internal/domain/order") }
}

// Service encapsulates the order lifecycle.
type Service struct {
	catalog catalog.Repository
	coupons coupon.Repository
	orders  Repository
	tx      Transactor
	now     func() time.Time
	newID   func() string

	meter            metric.Meter
	ordersCreated    metric.Int64Counter
	couponRejections metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cat catalog.Repository,
	coupons coupon.Repository,
	orders Repository,
	tx Transactor,
	opts ...Option,
) *Service {
	s := &Service{
		catalog: cat,
		coupons: coupons,
		orders:  orders,
		tx:      tx,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		meter:   noop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}
	// Registration failures fall back to no-op counters.
	var err error
	if s.ordersCreated, err = s.meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		s.ordersCreated, _ = noop.NewMeterProvider().Meter("").Int64Counter("orders.created")
	}
	if s.couponRejections, err = s.meter.Int64Counter("coupon.rejections",
		metric.WithDescription("Coupon codes rejected at checkout or preview"),
	); err != nil {
		s.couponRejections, _ = noop.NewMeterProvider().Meter("").Int64Counter("coupon.rejections")
	}
	return s
}

func (s *Service) countRejection(ctx context.Context, err error) {
	if reason := coupon.Reason(err); reason != "" {
		s.couponRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Create prices and persists a new order. When a coupon code is given the
// coupon is validated, locked and redeemed in the same transaction that
// inserts the order, so either both persist or neither does.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*Order, error) {
	if p.UserID == "" {
		return nil, ErrForbidden
	}
	if !req.PaymentMethod.IsValid() {
		return nil, &ValidationError{Field: "paymentMethod", Message: "unsupported payment method"}
	}

	product, svc, err := s.resolveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	var code string
	if req.CouponCode != "" {
		if code, err = coupon.NormalizeCode(req.CouponCode); err != nil {
			return nil, err
		}
	}

	var created *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()

		var c *coupon.Coupon
		if code != "" {
			locked, err := s.lockCoupon(ctx, code, p.UserID, product, now)
			if err != nil {
				return err
			}
			c = locked
		}
		quote := pricing.Price(product.Price, product.Currency, c)

		seq, err := s.orders.NextSequence(ctx)
		if err != nil {
			return errors.Wrap(err, "next order sequence")
		}

		o := &Order{
			ID:     s.newID(),
			Number: FormatNumber(now, seq),
			UserID: p.UserID,
			Product: ProductRef{
				ID:       product.ID,
				Name:     product.Name,
				Quantity: product.Quantity,
			},
			Service:     ServiceRef{ID: svc.ID, Name: svc.Name},
			ProcessLink: strings.TrimSpace(req.ProcessLink),
			Customer: Customer{
				FullName: strings.TrimSpace(req.Customer.FullName),
				Email:    strings.ToLower(strings.TrimSpace(req.Customer.Email)),
				Phone:    strings.TrimSpace(req.Customer.Phone),
			},
			Pricing: Pricing{
				OriginalPrice:  quote.OriginalPrice,
				DiscountAmount: quote.DiscountAmount,
				FinalPrice:     quote.FinalPrice,
				Currency:       quote.Currency,
			},
			Payment: Payment{
				Method: req.PaymentMethod,
				Status: PaymentPending,
			},
			Status:     StatusPending,
			Timestamps: Timestamps{Ordered: now},
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if c != nil {
			o.Coupon = &CouponSnapshot{
				Code:          c.Code,
				DiscountType:  c.Discount.Type,
				DiscountValue: c.Discount.Value,
			}
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if c != nil {
			usage, err := c.Redeem(p.UserID, o.ID, quote.DiscountAmount, now)
			if err != nil {
				return err
			}
			if err := s.coupons.RecordUsage(ctx, c, usage); err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
		}

		created = o
		return nil
	})
	if err != nil {
		s.countRejection(ctx, err)
		return nil, err
	}
	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(created.Payment.Method)),
		attribute.Bool("coupon", created.Coupon != nil),
	))

	zctx.From(ctx).Info("Order created",
		zap.String("order_number", created.Number),
		zap.String("user_id", created.UserID),
		zap.String("final_price", created.Pricing.FinalPrice.StringFixed(2)),
	)
	return created, nil
}

// lockCoupon loads the coupon under a row lock and runs the full
// validate, appliesTo and minimum pipeline against it.
func (s *Service) lockCoupon(
	ctx context.Context,
	code, userID string,
	product *catalog.Product,
	now time.Time,
) (*coupon.Coupon, error) {
	c, err := s.coupons.FindByCodeForUpdate(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "lock coupon")
	}
	if err := checkCoupon(c, userID, product, now); err != nil {
		return nil, err
	}
	return c, nil
}

func checkCoupon(c *coupon.Coupon, userID string, product *catalog.Product, now time.Time) error {
	if err := c.Validate(userID, now); err != nil {
		return err
	}
	if !c.AppliesTo(product.ServiceID, product.ID) {
		return coupon.ErrNotApplicable
	}
	if !c.MeetsMinimum(product.Price) {
		return errors.Wrapf(coupon.ErrNotApplicable, "minimum order amount is %s", c.MinimumAmount.StringFixed(2))
	}
	return nil
}

func (s *Service) resolveProduct(ctx context.Context, id string) (*catalog.Product, *catalog.Service, error) {
	product, err := s.catalog.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, ErrProductUnavailable
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "get product")
	}
	if !product.Active {
		return nil, nil, ErrProductUnavailable
	}

	svc, err := s.catalog.GetService(ctx, product.ServiceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, ErrProductUnavailable
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "get service")
	}
	if !svc.Active {
		return nil, nil, ErrProductUnavailable
	}
	return product, svc, nil
}

// UpdateStatus applies an operator status change.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, u StatusUpdate) (*Order, error) {
	if !p.IsOperator() {
		return nil, ErrForbidden
	}
	return s.Mutate(ctx, ByID(id), func(o *Order) (bool, error) {
		if err := o.TransitionStatus(u, s.now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Mutate runs a compare-and-swap read-modify-write on one order. fn reports
// whether it changed the order; unchanged orders are not written. Stale
// writes are retried with a fresh copy.
func (s *Service) Mutate(ctx context.Context, ref Ref, fn func(o *Order) (bool, error)) (*Order, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		o, err := s.load(ctx, ref)
		if err != nil {
			return nil, err
		}

		changed, err := fn(o)
		if err != nil {
			return nil, err
		}
		if !changed {
			return o, nil
		}

		o.UpdatedAt = s.now().UTC()
		err = s.orders.Update(ctx, o)
		if errors.Is(err, ErrConcurrentUpdate) {
			zctx.From(ctx).Debug("Retrying order update",
				zap.String("order", ref.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "update order")
		}
		return o, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *Service) load(ctx context.Context, ref Ref) (*Order, error) {
	if ref.Number != "" {
		return s.orders.GetByNumber(ctx, ref.Number)
	}
	return s.orders.GetByID(ctx, ref.ID)
}

// Get returns an order visible to the principal.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// FindByNumber returns an order by its public number without access checks.
func (s *Service) FindByNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByNumber(ctx, strings.TrimSpace(number))
}

// List returns the principal's own orders, newest first.
func (s *Service) List(ctx context.Context, p auth.Principal, f ListFilter) ([]Order, int, error) {
	if p.UserID == "" {
		return nil, 0, ErrForbidden
	}
	f.UserID = p.UserID
	return s.list(ctx, f)
}

// ListAll returns every order matching f. Operators only.
func (s *Service) ListAll(ctx context.Context, p auth.Principal, f ListFilter) ([]Order, int, error) {
	if !p.IsOperator() {
		return nil, 0, ErrForbidden
	}
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, 0, &ValidationError{Field: "status", Message: "unknown status"}
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.IsValid() {
		return nil, 0, &ValidationError{Field: "paymentStatus", Message: "unknown payment status"}
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

// PreviewCoupon validates a coupon for the principal without redeeming it.
// With a product id it also checks applicability and returns a quote.
func (s *Service) PreviewCoupon(ctx context.Context, p auth.Principal, code, productID string) (*CouponPreview, error) {
	code, err := coupon.NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "find coupon")
	}
	now := s.now().UTC()
	if err := c.Validate(p.UserID, now); err != nil {
		s.countRejection(ctx, err)
		return nil, err
	}

	preview := &CouponPreview{Coupon: c}
	if productID == "" {
		return preview, nil
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if err := checkCoupon(c, p.UserID, product, now); err != nil {
		s.countRejection(ctx, err)
		return nil, err
	}
	quote := pricing.Price(product.Price, product.Currency, c)
	preview.Quote = &quote
	return preview, nil
}

// AwaitingPayment returns orders whose payment has been processing since
// before the cutoff, oldest first.
func (s *Service) AwaitingPayment(ctx context.Context, updatedBefore time.Time, limit int) ([]Order, error) {
	orders, err := s.orders.ListAwaitingPayment(ctx, updatedBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list awaiting payment")
	}
	return orders, nil
}
