// Package tracking derives the public, redacted view of an order and its
// milestone timeline. Nothing here mutates an order.
package tracking

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"

	"github.com/xenking/engage-orders/internal/domain/order"
)

// Milestone keys.
const (
	StepOrdered           = "ordered"
	StepPaid              = "paid"
	StepPaymentPending    = "payment_pending"
	StepProcessing        = "processing"
	StepProcessingPending = "processing_pending"
	StepCompleted         = "completed"
)

// Text is a Turkish and English message pair.
type Text struct {
	TR string
	EN string
}

// PublicOrder is the order as anyone holding its number may see it. It
// carries no user id, contact email or phone, payment payload or admin notes.
type PublicOrder struct {
	Number        string
	Status        order.Status
	PaymentStatus order.PaymentStatus
	CustomerName  string
	Product       PublicProduct
	Service       PublicService
	Pricing       PublicPricing
	ProcessLink   string
	Processing    PublicProcessing
	Timestamps    order.Timestamps
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PublicProduct struct {
	Name     string
	Quantity int
}

type PublicService struct {
	Name string
}

type PublicPricing struct {
	FinalPrice decimal.Decimal
	Currency   string
}

type PublicProcessing struct {
	Progress    int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Milestone is one timeline entry.
type Milestone struct {
	Step        string
	Title       Text
	Description Text
	At          *time.Time
	Completed   bool
}

// Tracking is the public order with its timeline.
type Tracking struct {
	Order    PublicOrder
	Timeline []Milestone
}

// Public returns the redacted snapshot of o.
func Public(o *order.Order) (PublicOrder, error) {
	var pub PublicOrder
	if err := copier.Copy(&pub, o); err != nil {
		return PublicOrder{}, errors.Wrap(err, "copy order")
	}
	pub.PaymentStatus = o.Payment.Status
	pub.CustomerName = o.Customer.FullName
	pub.Product = PublicProduct{Name: o.Product.Name, Quantity: o.Product.Quantity}
	pub.Service = PublicService{Name: o.Service.Name}
	pub.Pricing = PublicPricing{FinalPrice: o.Pricing.FinalPrice, Currency: o.Pricing.Currency}
	pub.Processing = PublicProcessing{
		Progress:    o.Processing.Progress,
		StartedAt:   o.Processing.StartedAt,
		CompletedAt: o.Processing.CompletedAt,
	}
	return pub, nil
}

// Timeline synthesizes milestones from the order's timestamps. Processing
// milestones appear only once payment was received; completion shows
// whenever it was reached.
func Timeline(o *order.Order) []Milestone {
	ts := o.Timestamps
	ordered := ts.Ordered
	steps := []Milestone{{
		Step:        StepOrdered,
		Title:       Text{TR: "Sipariş Alındı", EN: "Order Placed"},
		Description: Text{TR: "Siparişiniz başarıyla alındı", EN: "Your order has been successfully placed"},
		At:          &ordered,
		Completed:   true,
	}}

	if ts.Paid == nil {
		steps = append(steps, Milestone{
			Step:        StepPaymentPending,
			Title:       Text{TR: "Ödeme Bekleniyor", EN: "Payment Pending"},
			Description: Text{TR: "Ödemeniz bekleniyor", EN: "Waiting for your payment"},
		})
	} else {
		steps = append(steps, Milestone{
			Step:        StepPaid,
			Title:       Text{TR: "Ödeme Alındı", EN: "Payment Received"},
			Description: Text{TR: "Ödemeniz başarıyla alındı", EN: "Your payment has been successfully received"},
			At:          ts.Paid,
			Completed:   true,
		})

		if ts.Started != nil {
			progress := o.Processing.Progress
			steps = append(steps, Milestone{
				Step:  StepProcessing,
				Title: Text{TR: "İşleme Alındı", EN: "Processing Started"},
				Description: Text{
					TR: fmt.Sprintf("İşlem başladı (%d%% tamamlandı)", progress),
					EN: fmt.Sprintf("Processing started (%d%% completed)", progress),
				},
				At:        ts.Started,
				Completed: progress == 100,
			})
		} else {
			steps = append(steps, Milestone{
				Step:        StepProcessingPending,
				Title:       Text{TR: "İşleme Alınacak", EN: "Will Be Processed"},
				Description: Text{TR: "Siparişiniz yakında işleme alınacak", EN: "Your order will be processed soon"},
			})
		}
	}

	if ts.Completed != nil {
		steps = append(steps, Milestone{
			Step:        StepCompleted,
			Title:       Text{TR: "Tamamlandı", EN: "Completed"},
			Description: Text{TR: "Siparişiniz başarıyla tamamlandı", EN: "Your order has been successfully completed"},
			At:          ts.Completed,
			Completed:   true,
		})
	}
	return steps
}

// Track combines the public snapshot and the timeline.
func Track(o *order.Order) (*Tracking, error) {
	pub, err := Public(o)
	if err != nil {
		return nil, err
	}
	return &Tracking{Order: pub, Timeline: Timeline(o)}, nil
}

// Public lookup messages.
var (
	MsgFound          = Text{TR: "Sipariş bulundu", EN: "Order found"}
	MsgNumberRequired = Text{TR: "Sipariş numarası gereklidir", EN: "Order number is required"}
	MsgNumberNotFound = Text{TR: "Sipariş numarası bulunamadı. Lütfen tekrar deneyin.", EN: "Order number not found. Please try again."}
	MsgNotFound       = Text{TR: "Sipariş bulunamadı", EN: "Order not found"}
	MsgServerError    = Text{TR: "Sunucu hatası oluştu", EN: "Server error occurred"}
)
