package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/engage-orders/internal/domain/coupon"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusInProgress, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further status mutation is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// InFlight reports whether s marks an order being worked on.
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusInProgress
}

// PaymentStatus is the normalized payment vocabulary every provider maps into.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// IsValid reports whether s is a known payment status.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod selects how the customer pays.
type PaymentMethod string

const (
	MethodCryptoDodo     PaymentMethod = "crypto_dodo"
	MethodCryptoCoinbase PaymentMethod = "crypto_coinbase"
	MethodCreditCard     PaymentMethod = "credit_card"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCryptoDodo, MethodCryptoCoinbase, MethodCreditCard, MethodBankTransfer:
		return true
	default:
		return false
	}
}

// Sentinel errors for the order lifecycle.
var (
	ErrNotFound           = errors.New("order not found")
	ErrInvalidTransition  = errors.New("order is in a terminal state")
	ErrProductUnavailable = errors.New("product is not available")
	ErrForbidden          = errors.New("not authorized to access this order")
	ErrConcurrentUpdate   = errors.New("order was modified concurrently")
)

// ValidationError reports a malformed field reaching the lifecycle.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Customer holds the buyer's contact details.
type Customer struct {
	FullName string
	Email    string
	Phone    string
}

// Pricing is the price snapshot taken at creation.
type Pricing struct {
	OriginalPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
	Currency       string
}

// CouponSnapshot copies the applied coupon so later edits don't alter history.
type CouponSnapshot struct {
	Code          string
	DiscountType  coupon.DiscountType
	DiscountValue decimal.Decimal
}

// Payment is the payment sub-record. Data holds the raw provider payload.
type Payment struct {
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	Data          []byte
	PaidAt        *time.Time
}

// Processing tracks fulfillment progress.
type Processing struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Progress    int
	Notes       string
}

// Timestamps is the write-once audit trail of lifecycle milestones.
type Timestamps struct {
	Ordered   time.Time
	Paid      *time.Time
	Started   *time.Time
	Completed *time.Time
}

// ProductRef is a product snapshot.
type ProductRef struct {
	ID       string
	Name     string
	Quantity int
}

// ServiceRef is a service snapshot.
type ServiceRef struct {
	ID   string
	Name string
}

// Order is a single purchase of one product. Version is bumped on every
// persisted mutation and guards concurrent writers.
type Order struct {
	ID          string
	Number      string
	UserID      string
	Product     ProductRef
	Service     ServiceRef
	ProcessLink string
	Customer    Customer
	Pricing     Pricing
	Coupon      *CouponSnapshot
	Payment     Payment
	Status      Status
	Processing  Processing
	AdminNotes  string
	Timestamps  Timestamps
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FormatNumber renders the public order number.
func FormatNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", at.UnixMilli(), seq)
}

// StatusUpdate is an operator's status change.
type StatusUpdate struct {
	Status     Status
	AdminNotes *string
	Progress   *int
}

// TransitionStatus moves the order to u.Status. Terminal orders reject any
// transition. Started and completed timestamps are written once.
func (o *Order) TransitionStatus(u StatusUpdate, now time.Time) error {
	if o.Status.IsTerminal() {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, u.Status)
	}
	if !u.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "unknown status " + string(u.Status)}
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return &ValidationError{Field: "progress", Message: "must be between 0 and 100"}
	}

	o.Status = u.Status
	if u.AdminNotes != nil && *u.AdminNotes != "" {
		o.AdminNotes = *u.AdminNotes
	}
	if u.Progress != nil {
		o.Processing.Progress = *u.Progress
	}

	switch {
	case u.Status.InFlight():
		if o.Timestamps.Started == nil {
			o.Timestamps.Started = stamp(now)
		}
		if o.Processing.StartedAt == nil {
			o.Processing.StartedAt = stamp(now)
		}
	case u.Status == StatusCompleted:
		if o.Timestamps.Completed == nil {
			o.Timestamps.Completed = stamp(now)
		}
		if o.Processing.CompletedAt == nil {
			o.Processing.CompletedAt = stamp(now)
		}
		o.Processing.Progress = 100
	}
	return nil
}

// ApplyPaymentResult records a normalized payment status. The first
// completed result stamps paid times once. It never changes Status and
// reports whether anything changed.
func (o *Order) ApplyPaymentResult(status PaymentStatus, payload []byte, now time.Time) bool {
	changed := false
	if o.Payment.Status != status {
		o.Payment.Status = status
		changed = true
	}
	if status == PaymentCompleted {
		if o.Payment.PaidAt == nil {
			o.Payment.PaidAt = stamp(now)
			changed = true
		}
		if o.Timestamps.Paid == nil {
			o.Timestamps.Paid = stamp(now)
			changed = true
		}
	}
	if changed && len(payload) > 0 {
		o.Payment.Data = payload
	}
	return changed
}

// IsPaid reports whether payment was received.
func (o *Order) IsPaid() bool {
	return o.Payment.Status == PaymentCompleted
}

// AwaitingPayment reports whether a payment can still be initiated.
func (o *Order) AwaitingPayment() bool {
	return o.Status == StatusPending && o.Payment.Status == PaymentPending
}

// OrderDuration returns whole hours from order to completion, rounded up.
func (o *Order) OrderDuration() *int {
	return hoursBetween(&o.Timestamps.Ordered, o.Timestamps.Completed)
}

// ProcessingDuration returns whole hours from start to completion, rounded up.
func (o *Order) ProcessingDuration() *int {
	return hoursBetween(o.Timestamps.Started, o.Timestamps.Completed)
}

func hoursBetween(from, to *time.Time) *int {
	if from == nil || to == nil || from.IsZero() {
		return nil
	}
	h := int(math.Ceil(to.Sub(*from).Hours()))
	return &h
}

func stamp(t time.Time) *time.Time {
	return &t
}

// ListFilter narrows order listings.
type ListFilter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// NextSequence returns the next order number sequence value.
	NextSequence(ctx context.Context) (int64, error)
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Update persists o if its stored version still equals o.Version and
	// bumps o.Version. It returns ErrConcurrentUpdate on a stale version.
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	// ListAwaitingPayment returns orders whose payment is processing and that
	// were last updated before the cutoff.
	ListAwaitingPayment(ctx context.Context, updatedBefore time.Time, limit int) ([]Order, error)
}

// Transactor runs fn in a single database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
