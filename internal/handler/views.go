package handler

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/engage-orders/internal/domain/coupon"
	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/domain/pricing"
	"github.com/xenking/engage-orders/internal/domain/tracking"
)

type productView struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type serviceView struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type customerView struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type pricingView struct {
	OriginalPrice  float64 `json:"originalPrice"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalPrice     float64 `json:"finalPrice"`
	Currency       string  `json:"currency"`
}

type appliedCouponView struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discountType"`
	DiscountValue float64 `json:"discountValue"`
}

type paymentView struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transactionId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type processingView struct {
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Progress    int        `json:"progress"`
	Notes       string     `json:"notes,omitempty"`
}

type timestampsView struct {
	Ordered   time.Time  `json:"ordered"`
	Paid      *time.Time `json:"paid,omitempty"`
	Started   *time.Time `json:"started,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
}

type orderView struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"orderNumber"`
	UserID             string             `json:"userId"`
	Product            productView        `json:"product"`
	Service            serviceView        `json:"service"`
	ProcessLink        string             `json:"processLink"`
	CustomerDetails    customerView       `json:"customerDetails"`
	Pricing            pricingView        `json:"pricing"`
	Coupon             *appliedCouponView `json:"coupon,omitempty"`
	Payment            paymentView        `json:"payment"`
	Status             string             `json:"status"`
	Processing         processingView     `json:"processing"`
	AdminNotes         string             `json:"adminNotes,omitempty"`
	Timestamps         timestampsView     `json:"timestamps"`
	OrderDuration      *int               `json:"orderDuration,omitempty"`
	ProcessingDuration *int               `json:"processingDuration,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// newOrderView renders o. Durations are shown to operators only.
func newOrderView(o *order.Order, operator bool) orderView {
	v := orderView{
		ID:          o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Product:     productView{ID: o.Product.ID, Name: o.Product.Name, Quantity: o.Product.Quantity},
		Service:     serviceView{ID: o.Service.ID, Name: o.Service.Name},
		ProcessLink: o.ProcessLink,
		CustomerDetails: customerView{
			FullName: o.Customer.FullName,
			Email:    o.Customer.Email,
			Phone:    o.Customer.Phone,
		},
		Pricing: pricingView{
			OriginalPrice:  money(o.Pricing.OriginalPrice),
			DiscountAmount: money(o.Pricing.DiscountAmount),
			FinalPrice:     money(o.Pricing.FinalPrice),
			Currency:       o.Pricing.Currency,
		},
		Payment: paymentView{
			Method:        string(o.Payment.Method),
			Status:        string(o.Payment.Status),
			TransactionID: o.Payment.TransactionID,
			PaidAt:        o.Payment.PaidAt,
		},
		Status: string(o.Status),
		Processing: processingView{
			StartedAt:   o.Processing.StartedAt,
			CompletedAt: o.Processing.CompletedAt,
			Progress:    o.Processing.Progress,
			Notes:       o.Processing.Notes,
		},
		AdminNotes: o.AdminNotes,
		Timestamps: timestampsView{
			Ordered:   o.Timestamps.Ordered,
			Paid:      o.Timestamps.Paid,
			Started:   o.Timestamps.Started,
			Completed: o.Timestamps.Completed,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.Coupon != nil {
		v.Coupon = &appliedCouponView{
			Code:          o.Coupon.Code,
			DiscountType:  string(o.Coupon.DiscountType),
			DiscountValue: money(o.Coupon.DiscountValue),
		}
	}
	if operator {
		v.OrderDuration = o.OrderDuration()
		v.ProcessingDuration = o.ProcessingDuration()
	}
	return v
}

type paginationView struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalOrders int  `json:"totalOrders"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type orderListView struct {
	Orders     []orderView    `json:"orders"`
	Pagination paginationView `json:"pagination"`
}

func newOrderListView(orders []order.Order, total, page, limit int, operator bool) orderListView {
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = newOrderView(&orders[i], operator)
	}
	pages := int(math.Ceil(float64(total) / float64(limit)))
	return orderListView{
		Orders: views,
		Pagination: paginationView{
			CurrentPage: page,
			TotalPages:  pages,
			TotalOrders: total,
			HasNextPage: page < pages,
			HasPrevPage: page > 1,
		},
	}
}

type couponSummaryView struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	DiscountType  string   `json:"discountType"`
	DiscountValue float64  `json:"discountValue"`
	MinimumAmount *float64 `json:"minimumAmount,omitempty"`
}

type couponPreviewView struct {
	Coupon   couponSummaryView `json:"coupon"`
	Discount *pricingView      `json:"discount,omitempty"`
}

func newCouponPreviewView(c *coupon.Coupon, q *pricing.Quote) couponPreviewView {
	v := couponPreviewView{Coupon: couponSummaryView{
		Code:          c.Code,
		Name:          c.Name,
		DiscountType:  string(c.Discount.Type),
		DiscountValue: money(c.Discount.Value),
	}}
	if q == nil {
		minimum := money(c.MinimumAmount)
		v.Coupon.MinimumAmount = &minimum
		return v
	}
	v.Discount = &pricingView{
		OriginalPrice:  money(q.OriginalPrice),
		DiscountAmount: money(q.DiscountAmount),
		FinalPrice:     money(q.FinalPrice),
		Currency:       q.Currency,
	}
	return v
}

type paymentOrderView struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

type paymentHandleView struct {
	PaymentID  string           `json:"paymentId"`
	PaymentURL string           `json:"paymentUrl"`
	QRCode     string           `json:"qrCode,omitempty"`
	Order      paymentOrderView `json:"order"`
}

func newPaymentHandleView(h *payment.Handle) paymentHandleView {
	v := paymentHandleView{
		PaymentID:  h.PaymentID,
		PaymentURL: h.PaymentURL,
		Order: paymentOrderView{
			ID:            h.Order.ID,
			OrderNumber:   h.Order.Number,
			Status:        string(h.Order.Status),
			PaymentStatus: string(h.Order.Payment.Status),
		},
	}
	if len(h.QRCode) > 0 {
		v.QRCode = "data:image/png;base64," + base64.StdEncoding.EncodeToString(h.QRCode)
	}
	return v
}

type paymentStatusView struct {
	PaymentStatus string `json:"paymentStatus"`
	OrderStatus   string `json:"orderStatus"`
	TransactionID string `json:"transactionId,omitempty"`
}

type publicOrderView struct {
	OrderNumber   string         `json:"orderNumber"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"paymentStatus"`
	CustomerName  string         `json:"customerName"`
	Product       productView    `json:"product"`
	Service       serviceView    `json:"service"`
	FinalPrice    float64        `json:"finalPrice"`
	Currency      string         `json:"currency"`
	ProcessLink   string         `json:"processLink"`
	Processing    processingView `json:"processing"`
	Timestamps    timestampsView `json:"timestamps"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func newPublicOrderView(p tracking.PublicOrder) publicOrderView {
	return publicOrderView{
		OrderNumber:   p.Number,
		Status:        string(p.Status),
		PaymentStatus: string(p.PaymentStatus),
		CustomerName:  p.CustomerName,
		Product:       productView{Name: p.Product.Name, Quantity: p.Product.Quantity},
		Service:       serviceView{Name: p.Service.Name},
		FinalPrice:    money(p.Pricing.FinalPrice),
		Currency:      p.Pricing.Currency,
		ProcessLink:   p.ProcessLink,
		Processing: processingView{
			StartedAt:   p.Processing.StartedAt,
			CompletedAt: p.Processing.CompletedAt,
			Progress:    p.Processing.Progress,
		},
		Timestamps: timestampsView{
			Ordered:   p.Timestamps.Ordered,
			Paid:      p.Timestamps.Paid,
			Started:   p.Timestamps.Started,
			Completed: p.Timestamps.Completed,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type milestoneView struct {
	Step          string     `json:"step"`
	Title         string     `json:"title"`
	TitleEn       string     `json:"titleEn"`
	Description   string     `json:"description"`
	DescriptionEn string     `json:"descriptionEn"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Completed     bool       `json:"completed"`
}

type trackingView struct {
	Order    publicOrderView `json:"order"`
	Timeline []milestoneView `json:"timeline"`
}

func newTrackingView(t *tracking.Tracking) trackingView {
	steps := make([]milestoneView, len(t.Timeline))
	for i, m := range t.Timeline {
		steps[i] = milestoneView{
			Step:          m.Step,
			Title:         m.Title.TR,
			TitleEn:       m.Title.EN,
			Description:   m.Description.TR,
			DescriptionEn: m.Description.EN,
			Timestamp:     m.At,
			Completed:     m.Completed,
		}
	}
	return trackingView{Order: newPublicOrderView(t.Order), Timeline: steps}
}
