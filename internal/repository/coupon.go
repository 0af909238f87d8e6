package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/engage-orders/internal/domain/coupon"
)

const (
	couponColumns = `id, code, name, description, discount_type, discount_value,
		minimum_amount, maximum_discount, usage_limit_total, usage_limit_per_user,
		usage_count, valid_from, valid_until, apply_to_all, applicable_services,
		applicable_products, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1) AND active = TRUE`

	lockCouponByCodeSQL = getCouponByCodeSQL + ` FOR UPDATE`

	listCouponUsagesSQL = `SELECT user_id, order_id, discount_amount, used_at
		FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at, id`

	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit_total IS NULL OR usage_count < usage_limit_total)`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. The
// redemption ledger lives in coupon_usages.
type CouponRepository struct {
	store *Store
}

// NewCouponRepository returns a CouponRepository that uses the given store.
func NewCouponRepository(store *Store) *CouponRepository {
	return &CouponRepository{store: store}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, getCouponByCodeSQL, code)
}

// FindByCodeForUpdate locks the coupon row for the rest of the caller's
// transaction. Outside a transaction the lock is released immediately.
func (r *CouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.find(ctx, lockCouponByCodeSQL, code)
}

func (r *CouponRepository) find(ctx context.Context, query, code string) (*coupon.Coupon, error) {
	q := r.store.conn(ctx)

	rows, err := q.Query(ctx, query, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rows, err = q.Query(ctx, listCouponUsagesSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list usages of coupon %q", code)
	}
	c.UsedBy, err = pgx.CollectRows(rows, scanUsage)
	if err != nil {
		return nil, errors.Wrapf(err, "scan usages of coupon %q", code)
	}
	return &c, nil
}

// RecordUsage increments the counter and appends the ledger entry. The
// increment is guarded by the total limit so a racing writer that skipped
// the row lock still cannot overshoot it.
func (r *CouponRepository) RecordUsage(ctx context.Context, c *coupon.Coupon, u coupon.Usage) error {
	q := r.store.conn(ctx)

	tag, err := q.Exec(ctx, incrementCouponUsageSQL, c.ID)
	if err != nil {
		return errors.Wrapf(err, "increment usage of coupon %q", c.Code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}

	if _, err := q.Exec(ctx, insertCouponUsageSQL,
		c.ID, u.UserID, u.OrderID, u.DiscountAmount, u.UsedAt,
	); err != nil {
		return errors.Wrapf(err, "insert usage of coupon %q", c.Code)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		total        *int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &discountType, &c.Discount.Value,
		&c.MinimumAmount, &c.MaximumDiscount, &total, &c.UsageLimit.PerUser,
		&c.UsageCount, &c.ValidFrom, &c.ValidUntil, &c.ApplyToAll, &c.ApplicableServices,
		&c.ApplicableProducts, &c.Active,
	)
	if err != nil {
		return c, err
	}
	c.Discount.Type = coupon.DiscountType(discountType)
	if total != nil {
		n := int(*total)
		c.UsageLimit.Total = &n
	}
	return c, nil
}

func scanUsage(row pgx.CollectableRow) (coupon.Usage, error) {
	var u coupon.Usage
	err := row.Scan(&u.UserID, &u.OrderID, &u.DiscountAmount, &u.UsedAt)
	return u, err
}
