package coupon

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount, optionally
	// capped by the coupon's maximum discount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the order amount.
	DiscountFixed DiscountType = "fixed"
)

// IsValid reports whether t is a known discount type.
func (t DiscountType) IsValid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Rejection errors. Each maps to a caller-facing sub-reason via Reason.
var (
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrExpired is returned when the coupon is outside its validity window.
	ErrExpired = errors.New("coupon has expired or is not yet valid")
	// ErrUsageLimitReached is returned when the total usage cap is exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrPerUserLimitExceeded is returned when the user already redeemed the
	// coupon as many times as its per-user limit allows.
	ErrPerUserLimitExceeded = errors.New("usage limit per user exceeded")
	// ErrNotApplicable is returned when the coupon does not cover the product
	// or the order amount is below the coupon minimum.
	ErrNotApplicable = errors.New("coupon is not applicable to this product")
)

// ErrInvalidCode is returned by NormalizeCode for malformed codes.
var ErrInvalidCode = errors.New("coupon code must be 3-20 letters or digits")

// Rejection sub-reasons surfaced to API callers.
const (
	ReasonNotFound      = "not_found"
	ReasonExpired       = "expired"
	ReasonLimitExceeded = "limit_exceeded"
	ReasonNotApplicable = "not_applicable"
)

// Reason maps a rejection error to its sub-reason. It returns an empty
// string for errors that are not coupon rejections.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCode):
		return ReasonNotFound
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrUsageLimitReached), errors.Is(err, ErrPerUserLimitExceeded):
		return ReasonLimitExceeded
	case errors.Is(err, ErrNotApplicable):
		return ReasonNotApplicable
	default:
		return ""
	}
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

// NormalizeCode trims and upper-cases a user supplied code so lookups are
// case-insensitive.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Discount describes how much a coupon takes off.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// UsageLimit caps redemptions. A nil Total means unlimited.
type UsageLimit struct {
	Total   *int
	PerUser int
}

// Usage is a single ledger entry written on redemption.
type Usage struct {
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// Coupon is a discount code with validity window, usage caps and
// applicability rules. UsedBy is the append-only redemption ledger and
// UsageCount always equals its length.
type Coupon struct {
	ID                 string
	Code               string
	Name               string
	Description        string
	Discount           Discount
	MinimumAmount      decimal.Decimal
	MaximumDiscount    decimal.NullDecimal
	UsageLimit         UsageLimit
	UsageCount         int
	ValidFrom          time.Time
	ValidUntil         time.Time
	ApplyToAll         bool
	ApplicableServices []string
	ApplicableProducts []string
	Active             bool
	UsedBy             []Usage
}

// Repository provides coupon lookup and ledger persistence.
type Repository interface {
	// FindByCode returns the active coupon with its ledger, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeForUpdate is FindByCode that also locks the coupon row until
	// the surrounding transaction ends.
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	// RecordUsage persists the counter increment and ledger entry produced by
	// Coupon.Redeem.
	RecordUsage(ctx context.Context, c *Coupon, u Usage) error
}
