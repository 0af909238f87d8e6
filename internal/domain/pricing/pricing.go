// Package pricing computes order quotes from a list price and an optional coupon.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/engage-orders/internal/domain/coupon"
)

// Quote is the priced result for a single product.
type Quote struct {
	OriginalPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	Currency       string
}

// Price quotes listPrice with the discount c grants. A nil coupon yields no
// discount. The final price is floored at zero.
func Price(listPrice decimal.Decimal, currency string, c *coupon.Coupon) Quote {
	original := listPrice.Round(2)
	discount := decimal.Zero
	if c != nil {
		discount = c.CalculateDiscount(original)
	}

	final := original.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return Quote{
		OriginalPrice:  original,
		DiscountAmount: discount,
		FinalPrice:     final.Round(2),
		Currency:       currency,
	}
}

// HasDiscount reports whether the quote carries a positive discount.
func (q Quote) HasDiscount() bool {
	return q.DiscountAmount.IsPositive()
}
