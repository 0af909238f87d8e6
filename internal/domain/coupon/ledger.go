package coupon

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate checks that the coupon can be redeemed by userID at now.
func (c *Coupon) Validate(userID string, now time.Time) error {
	if c == nil || !c.Active {
		return ErrNotFound
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return ErrExpired
	}
	if c.UsageLimit.Total != nil && c.UsageCount >= *c.UsageLimit.Total {
		return ErrUsageLimitReached
	}
	if c.UsesBy(userID) >= c.perUserLimit() {
		return ErrPerUserLimitExceeded
	}
	return nil
}

// UsesBy counts ledger entries recorded for userID.
func (c *Coupon) UsesBy(userID string) int {
	n := 0
	for _, u := range c.UsedBy {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

func (c *Coupon) perUserLimit() int {
	if c.UsageLimit.PerUser <= 0 {
		return 1
	}
	return c.UsageLimit.PerUser
}

// AppliesTo reports whether the coupon covers the given service or product.
func (c *Coupon) AppliesTo(serviceID, productID string) bool {
	if c.ApplyToAll {
		return true
	}
	if serviceID != "" && slices.Contains(c.ApplicableServices, serviceID) {
		return true
	}
	return productID != "" && slices.Contains(c.ApplicableProducts, productID)
}

// MeetsMinimum reports whether amount reaches the coupon's minimum order amount.
func (c *Coupon) MeetsMinimum(amount decimal.Decimal) bool {
	return !amount.LessThan(c.MinimumAmount)
}

// CalculateDiscount returns the discount for an order amount, rounded to two
// decimal places half-up. Amounts below the minimum get no discount.
func (c *Coupon) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	if !c.MeetsMinimum(amount) || !amount.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch c.Discount.Type {
	case DiscountPercentage:
		d = amount.Mul(c.Discount.Value).Div(hundred)
		if c.MaximumDiscount.Valid && c.MaximumDiscount.Decimal.IsPositive() &&
			d.GreaterThan(c.MaximumDiscount.Decimal) {
			d = c.MaximumDiscount.Decimal
		}
	case DiscountFixed:
		d = decimal.Min(c.Discount.Value, amount)
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// Redeem re-checks the usage limits and appends a ledger entry. The caller
// must persist the result in the same transaction that holds the coupon lock.
func (c *Coupon) Redeem(userID, orderID string, discount decimal.Decimal, at time.Time) (Usage, error) {
	if c.UsageLimit.Total != nil && c.UsageCount >= *c.UsageLimit.Total {
		return Usage{}, ErrUsageLimitReached
	}
	if c.UsesBy(userID) >= c.perUserLimit() {
		return Usage{}, ErrPerUserLimitExceeded
	}

	u := Usage{
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
		UsedAt:         at,
	}
	c.UsageCount++
	c.UsedBy = append(c.UsedBy, u)
	return u, nil
}

// RemainingUses returns how many redemptions are left, or -1 when unlimited.
func (c *Coupon) RemainingUses() int {
	if c.UsageLimit.Total == nil {
		return -1
	}
	return max(0, *c.UsageLimit.Total-c.UsageCount)
}
