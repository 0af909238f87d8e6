package tracking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/engage-orders/internal/domain/order"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func newOrder() *order.Order {
	return &order.Order{
		ID:          "o1",
		Number:      "ORD-1749988800000-0001",
		UserID:      "u1",
		Product:     order.ProductRef{ID: "p1", Name: "1K Followers", Quantity: 1000},
		Service:     order.ServiceRef{ID: "s1", Name: "Instagram"},
		ProcessLink: "https://instagram.com/someone",
		Customer:    order.Customer{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+905551112233"},
		Pricing: order.Pricing{
			OriginalPrice:  decimal.NewFromInt(1000),
			DiscountAmount: decimal.NewFromInt(150),
			FinalPrice:     decimal.NewFromInt(850),
			Currency:       "₺",
		},
		Payment: order.Payment{
			Method: order.MethodCryptoCoinbase,
			Status: order.PaymentPending,
			Data:   []byte(`{"secret":"payload"}`),
		},
		Status:     order.StatusPending,
		AdminNotes: "vip",
		Timestamps: order.Timestamps{Ordered: testNow},
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

func steps(ms []Milestone) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Step
	}
	return out
}

func TestPublic_Redacts(t *testing.T) {
	o := newOrder()
	pub, err := Public(o)
	require.NoError(t, err)

	want := PublicOrder{
		Number:        o.Number,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		CustomerName:  "Ada Lovelace",
		Product:       PublicProduct{Name: "1K Followers", Quantity: 1000},
		Service:       PublicService{Name: "Instagram"},
		Pricing:       PublicPricing{FinalPrice: decimal.NewFromInt(850), Currency: "₺"},
		ProcessLink:   o.ProcessLink,
		Timestamps:    order.Timestamps{Ordered: testNow},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	if diff := cmp.Diff(want, pub, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("Public() mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeline(t *testing.T) {
	tests := []struct {
		name  string
		setup func(o *order.Order)
		want  []string
	}{
		{
			name: "fresh order",
			want: []string{StepOrdered, StepPaymentPending},
		},
		{
			name: "cancelled without payment",
			setup: func(o *order.Order) {
				o.Status = order.StatusCancelled
			},
			want: []string{StepOrdered, StepPaymentPending},
		},
		{
			name: "started but never paid",
			setup: func(o *order.Order) {
				o.Status = order.StatusCancelled
				o.Timestamps.Started = at(time.Hour)
			},
			want: []string{StepOrdered, StepPaymentPending},
		},
		{
			name: "paid",
			setup: func(o *order.Order) {
				o.Timestamps.Paid = at(time.Minute)
			},
			want: []string{StepOrdered, StepPaid, StepProcessingPending},
		},
		{
			name: "processing",
			setup: func(o *order.Order) {
				o.Timestamps.Paid = at(time.Minute)
				o.Timestamps.Started = at(time.Hour)
				o.Processing.Progress = 40
			},
			want: []string{StepOrdered, StepPaid, StepProcessing},
		},
		{
			name: "completed",
			setup: func(o *order.Order) {
				o.Timestamps.Paid = at(time.Minute)
				o.Timestamps.Started = at(time.Hour)
				o.Timestamps.Completed = at(2 * time.Hour)
				o.Processing.Progress = 100
			},
			want: []string{StepOrdered, StepPaid, StepProcessing, StepCompleted},
		},
		{
			name: "completed without payment",
			setup: func(o *order.Order) {
				o.Status = order.StatusCompleted
				o.Timestamps.Started = at(time.Hour)
				o.Timestamps.Completed = at(2 * time.Hour)
			},
			want: []string{StepOrdered, StepPaymentPending, StepCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder()
			if tt.setup != nil {
				tt.setup(o)
			}
			got := Timeline(o)
			if diff := cmp.Diff(tt.want, steps(got)); diff != "" {
				t.Errorf("Timeline() steps mismatch (-want +got):\n%s", diff)
			}
			assert.True(t, got[0].Completed)
			require.NotNil(t, got[0].At)
			assert.Equal(t, testNow, *got[0].At)
		})
	}
}

func TestTimeline_OperatorCompletesBankTransfer(t *testing.T) {
	o := newOrder()
	o.Payment.Method = order.MethodBankTransfer
	require.NoError(t, o.TransitionStatus(order.StatusUpdate{Status: order.StatusCompleted}, testNow.Add(time.Hour)))
	require.Nil(t, o.Timestamps.Paid)

	tl := Timeline(o)
	require.Len(t, tl, 3)
	last := tl[2]
	assert.Equal(t, StepCompleted, last.Step)
	assert.True(t, last.Completed)
	require.NotNil(t, last.At)
	assert.Equal(t, testNow.Add(time.Hour), *last.At)
}

func TestTimeline_ProcessingText(t *testing.T) {
	o := newOrder()
	o.Timestamps.Paid = at(time.Minute)
	o.Timestamps.Started = at(time.Hour)
	o.Processing.Progress = 40

	tl := Timeline(o)
	require.Len(t, tl, 3)
	p := tl[2]
	assert.Equal(t, "İşlem başladı (40% tamamlandı)", p.Description.TR)
	assert.Equal(t, "Processing started (40% completed)", p.Description.EN)
	assert.False(t, p.Completed)
	assert.Equal(t, "Payment Received", tl[1].Title.EN)
	assert.Equal(t, "Ödeme Alındı", tl[1].Title.TR)
}

func TestTrack(t *testing.T) {
	o := newOrder()
	o.Timestamps.Paid = at(time.Minute)
	o.Payment.Status = order.PaymentCompleted

	tr, err := Track(o)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, tr.Order.PaymentStatus)
	assert.Len(t, tr.Timeline, 3)
}
