package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/engage-orders/internal/domain/coupon"
)

func TestPrice(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	base := coupon.Coupon{
		Code:       "SAVE",
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
		ApplyToAll: true,
		Active:     true,
	}

	fixed := base
	fixed.Discount = coupon.Discount{Type: coupon.DiscountFixed, Value: decimal.NewFromInt(150)}

	capped := base
	capped.Discount = coupon.Discount{Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(20)}
	capped.MaximumDiscount = decimal.NewNullDecimal(decimal.NewFromInt(150))

	huge := base
	huge.Discount = coupon.Discount{Type: coupon.DiscountFixed, Value: decimal.NewFromInt(5000)}

	minimum := fixed
	minimum.MinimumAmount = decimal.NewFromInt(2000)

	tests := []struct {
		name         string
		price        string
		coupon       *coupon.Coupon
		wantDiscount string
		wantFinal    string
	}{
		{name: "no coupon", price: "1000", wantDiscount: "0", wantFinal: "1000"},
		{name: "fixed 150 off 1000", price: "1000", coupon: &fixed, wantDiscount: "150", wantFinal: "850"},
		{name: "20 percent capped at 150", price: "1000", coupon: &capped, wantDiscount: "150", wantFinal: "850"},
		{name: "20 percent under cap", price: "500", coupon: &capped, wantDiscount: "100", wantFinal: "400"},
		{name: "discount floors final at zero", price: "1000", coupon: &huge, wantDiscount: "1000", wantFinal: "0"},
		{name: "below minimum", price: "1000", coupon: &minimum, wantDiscount: "0", wantFinal: "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Price(decimal.RequireFromString(tt.price), "₺", tt.coupon)
			assert.True(t, q.OriginalPrice.Equal(decimal.RequireFromString(tt.price)))
			assert.True(t, q.DiscountAmount.Equal(decimal.RequireFromString(tt.wantDiscount)), "discount %s", q.DiscountAmount)
			assert.True(t, q.FinalPrice.Equal(decimal.RequireFromString(tt.wantFinal)), "final %s", q.FinalPrice)
			assert.False(t, q.FinalPrice.IsNegative())
			assert.Equal(t, "₺", q.Currency)
		})
	}
}
