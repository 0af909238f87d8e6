package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id,
		product_id, product_name, product_quantity, service_id, service_name,
		process_link, customer_full_name, customer_email, customer_phone,
		original_price, discount_amount, final_price, currency,
		coupon_code, coupon_discount_type, coupon_discount_value,
		payment_method, payment_status, payment_transaction_id, payment_data, paid_at,
		status, processing_started_at, processing_completed_at, processing_progress, processing_notes,
		admin_notes, ordered_at, paid_ts, started_ts, completed_ts,
		version, created_at, updated_at`

	nextOrderSequenceSQL = `SELECT nextval('order_number_seq')`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	updateOrderSQL = `UPDATE orders SET
		payment_status = $3, payment_transaction_id = $4, payment_data = $5, paid_at = $6,
		status = $7, processing_started_at = $8, processing_completed_at = $9,
		processing_progress = $10, processing_notes = $11, admin_notes = $12,
		paid_ts = $13, started_ts = $14, completed_ts = $15,
		version = version + 1, updated_at = $16
		WHERE id = $1 AND version = $2`

	listOrdersWhere = ` FROM orders
		WHERE ($1 = '' OR user_id = $1)
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR payment_status = $3)`

	countOrdersSQL = `SELECT count(*)` + listOrdersWhere

	listOrdersSQL = `SELECT ` + orderColumns + listOrdersWhere + `
		ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`

	listAwaitingPaymentSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE payment_status = 'processing' AND payment_transaction_id <> '' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository returns an OrderRepository that uses the given store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// NextSequence draws from order_number_seq.
func (r *OrderRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.store.conn(ctx).QueryRow(ctx, nextOrderSequenceSQL).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "next order sequence")
	}
	return seq, nil
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var (
		couponCode, couponType *string
		couponValue            decimal.NullDecimal
	)
	if o.Coupon != nil {
		code, typ := o.Coupon.Code, string(o.Coupon.DiscountType)
		couponCode, couponType = &code, &typ
		couponValue = decimal.NewNullDecimal(o.Coupon.DiscountValue)
	}

	_, err := r.store.conn(ctx).Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID,
		o.Product.ID, o.Product.Name, o.Product.Quantity, o.Service.ID, o.Service.Name,
		o.ProcessLink, o.Customer.FullName, o.Customer.Email, o.Customer.Phone,
		o.Pricing.OriginalPrice, o.Pricing.DiscountAmount, o.Pricing.FinalPrice, o.Pricing.Currency,
		couponCode, couponType, couponValue,
		string(o.Payment.Method), string(o.Payment.Status), o.Payment.TransactionID, jsonb(o.Payment.Data), o.Payment.PaidAt,
		string(o.Status), o.Processing.StartedAt, o.Processing.CompletedAt, o.Processing.Progress, o.Processing.Notes,
		o.AdminNotes, o.Timestamps.Ordered, o.Timestamps.Paid, o.Timestamps.Started, o.Timestamps.Completed,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(err, "order number %q already taken", o.Number)
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns the order with the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns the order with the given public number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.get(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) get(ctx context.Context, query, key string) (*order.Order, error) {
	rows, err := r.store.conn(ctx).Query(ctx, query, key)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", key)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", key)
	}
	return &o, nil
}

// Update writes the mutable columns when the stored version matches
// o.Version. Snapshot columns are never rewritten.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.store.conn(ctx).Exec(ctx, updateOrderSQL,
		o.ID, o.Version,
		string(o.Payment.Status), o.Payment.TransactionID, jsonb(o.Payment.Data), o.Payment.PaidAt,
		string(o.Status), o.Processing.StartedAt, o.Processing.CompletedAt,
		o.Processing.Progress, o.Processing.Notes, o.AdminNotes,
		o.Timestamps.Paid, o.Timestamps.Started, o.Timestamps.Completed,
		o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(order.ErrConcurrentUpdate, "order %q version %d", o.ID, o.Version)
	}
	o.Version++
	return nil
}

// List returns a page of orders, newest first, and the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	q := r.store.conn(ctx)
	args := []any{f.UserID, string(f.Status), string(f.PaymentStatus)}

	var total int
	if err := q.QueryRow(ctx, countOrdersSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	if total == 0 {
		return []order.Order{}, 0, nil
	}

	rows, err := q.Query(ctx, listOrdersSQL, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}
	return orders, total, nil
}

// ListAwaitingPayment returns processing payments idle since before cutoff,
// oldest first.
func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, updatedBefore time.Time, limit int) ([]order.Order, error) {
	rows, err := r.store.conn(ctx).Query(ctx, listAwaitingPaymentSQL, updatedBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list awaiting payment")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan awaiting payment")
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                             order.Order
		couponCode, couponType        *string
		couponValue                   decimal.NullDecimal
		method, paymentStatus, status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID,
		&o.Product.ID, &o.Product.Name, &o.Product.Quantity, &o.Service.ID, &o.Service.Name,
		&o.ProcessLink, &o.Customer.FullName, &o.Customer.Email, &o.Customer.Phone,
		&o.Pricing.OriginalPrice, &o.Pricing.DiscountAmount, &o.Pricing.FinalPrice, &o.Pricing.Currency,
		&couponCode, &couponType, &couponValue,
		&method, &paymentStatus, &o.Payment.TransactionID, &o.Payment.Data, &o.Payment.PaidAt,
		&status, &o.Processing.StartedAt, &o.Processing.CompletedAt, &o.Processing.Progress, &o.Processing.Notes,
		&o.AdminNotes, &o.Timestamps.Ordered, &o.Timestamps.Paid, &o.Timestamps.Started, &o.Timestamps.Completed,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Payment.Method = order.PaymentMethod(method)
	o.Payment.Status = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	if couponCode != nil {
		snap := &order.CouponSnapshot{Code: *couponCode, DiscountValue: couponValue.Decimal}
		if couponType != nil {
			snap.DiscountType = coupon.DiscountType(*couponType)
		}
		o.Coupon = snap
	}
	return o, nil
}

// jsonb maps an empty payload to NULL.
func jsonb(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
