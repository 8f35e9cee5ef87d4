package service

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
)

func simpleOrder(toolID, qty int32) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerInfo: domain.CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		DeliveryInfo: domain.DeliveryInfo{Address: "1 Main St"},
		StartDate:    day("2024-06-10"),
		EndDate:      day("2024-06-17"),
		Items:        []OrderItemRequest{{ToolID: toolID, Quantity: qty}},
		Actor:        "admin",
	}
}

func TestOrderService_Create(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Upright Bass", 2, 1000)

	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20240601-[0-9A-F]{8}$`), order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int32(7), order.Items[0].Days)
	assert.Equal(t, int64(5810), order.SubtotalCents)
	assert.Equal(t, int64(465), order.TaxCents)
	assert.Equal(t, int64(6275), order.TotalCents)
	assert.Equal(t, int64(1162), order.DepositCents)
	assert.Equal(t, int32(7), order.TotalDays)

	b, err := f.bookings.Get(f.ctx, order.Items[0].BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	require.NotNil(t, b.OrderID)
	assert.Equal(t, order.ID, *b.OrderID)

	history, err := f.orders.History(f.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OrderStatusPending, history[0].To)

	assert.Len(t, f.pub.Published(events.OrderCreated), 1)
	f.email.AssertCalled(t, "SendOrderConfirmation", mock.Anything, mock.Anything)
}

func TestOrderService_CreatePerItemRanges(t *testing.T) {
	f := newFixture(t)
	piano := f.addTool(t, "Grand Piano", 1, 10000)
	bench := f.addTool(t, "Piano Bench", 1, 500)

	start := day("2024-06-12")
	order, err := f.orders.Create(f.ctx, CreateOrderRequest{
		StartDate: day("2024-06-10"),
		EndDate:   day("2024-06-13"),
		Items: []OrderItemRequest{
			{ToolID: piano.ID, Quantity: 1},
			{ToolID: bench.ID, Quantity: 1, StartDate: &start, Days: 7},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, day("2024-06-10"), order.StartDate)
	assert.Equal(t, day("2024-06-19"), order.EndDate)
	assert.Equal(t, int32(9), order.TotalDays)
	assert.Equal(t, int32(3), order.Items[0].Days)
	assert.Equal(t, int32(7), order.Items[1].Days)
}

func TestOrderService_CreateAdoptsBooking(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Drum Kit", 1, 3000)

	b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-13", 1)
	require.NoError(t, err)

	req := CreateOrderRequest{Items: []OrderItemRequest{{BookingID: &b.ID}}}
	_, err = f.orders.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending bookings cannot be ordered")

	_, err = f.bookings.Confirm(f.ctx, b.ID)
	require.NoError(t, err)

	order, err := f.orders.Create(f.ctx, req)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, b.ID, order.Items[0].BookingID)
	assert.Equal(t, b.TotalPriceCents, order.SubtotalCents)

	// The adopted booking is not counted twice.
	avail, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-10"), day("2024-06-13"), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), avail.CommittedQuantity)

	_, err = f.orders.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "a booking belongs to one order")
}

func TestOrderService_CreateCapacityExceededRollsBack(t *testing.T) {
	f := newFixture(t)
	guitar := f.addTool(t, "Telecaster", 2, 1500)
	amp := f.addTool(t, "Tube Amp", 1, 2000)

	req := simpleOrder(guitar.ID, 1)
	req.Items = append(req.Items, OrderItemRequest{ToolID: amp.ID, Quantity: 2})
	_, err := f.orders.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	bookings, total, err := f.bookings.List(f.ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, bookings)

	orders, total, err := f.orders.List(f.ctx, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestOrderService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Ukulele", 1, 500)

	_, err := f.orders.Create(f.ctx, CreateOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	req := simpleOrder(tool.ID, 1)
	req.EndDate = req.StartDate
	_, err = f.orders.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = f.orders.Create(f.ctx, simpleOrder(999, 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderService_LifecycleRestoresInStock(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Marimba", 3, 5000)

	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 2))
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusConfirmed, "", "admin")
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.inStock(t, tool.ID))

	active, err := f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusActive, "picked up", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusActive, active.Status)
	assert.Equal(t, int32(1), f.inStock(t, tool.ID))

	// Active orders keep their bookings committed.
	avail, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-10"), day("2024-06-17"), 2)
	require.NoError(t, err)
	assert.False(t, avail.CanBook)

	completed, err := f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusCompleted, "", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, completed.Status)
	assert.Equal(t, int32(3), f.inStock(t, tool.ID))

	b, err := f.bookings.Get(f.ctx, order.Items[0].BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, b.Status)

	avail, err = f.avail.Check(f.ctx, tool.ID, day("2024-06-10"), day("2024-06-17"), 3)
	require.NoError(t, err)
	assert.True(t, avail.CanBook)

	history, err := f.orders.History(f.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.OrderStatusActive, history[2].To)
	assert.Equal(t, "picked up", history[2].Note)

	movements, total, err := f.tools.StockMovements(f.ctx, tool.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), total)
	assert.Equal(t, domain.StockReasonRentalReturned, movements[0].Reason)
	assert.Equal(t, int32(2), movements[0].Delta)

	_, err = f.orders.Cancel(f.ctx, order.ID, "too late", "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, f.pub.Published(events.OrderStatusChanged), 3)
}

func TestOrderService_PendingToActiveRejected(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Banjo", 2, 700)
	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusActive, "", "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, int32(2), f.inStock(t, tool.ID))

	stored, err := f.orders.Get(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)

	_, err = f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusOverdue, "", "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOrderService_CancelActiveRestoresStock(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Accordion", 2, 1200)
	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 2))
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusConfirmed, "", "admin")
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(f.ctx, order.ID, domain.OrderStatusActive, "", "admin")
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.inStock(t, tool.ID))

	cancelled, err := f.orders.Cancel(f.ctx, order.ID, "customer returned early", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, int32(2), f.inStock(t, tool.ID))

	b, err := f.bookings.Get(f.ctx, order.Items[0].BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	assert.Equal(t, "customer returned early", b.CancelReason)
}

func TestOrderService_CancelPendingFreesCapacity(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Mandolin", 1, 900)
	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)

	_, err = f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.orders.Cancel(f.ctx, order.ID, "", "admin")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.inStock(t, tool.ID))

	_, err = f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	assert.NoError(t, err)
}

func TestOrderService_PaymentAndDelivery(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Synth", 1, 2200)
	order, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	paid, err := f.orders.UpdatePaymentStatus(f.ctx, order.ID, domain.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	assert.True(t, paid.UpdatedOn.After(order.UpdatedOn))

	delivered, err := f.orders.UpdateDeliveryStatus(f.ctx, order.ID, domain.DeliveryStatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusScheduled, delivered.DeliveryStatus)
	assert.Equal(t, domain.PaymentStatusPaid, delivered.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, delivered.Status)

	_, err = f.orders.UpdatePaymentStatus(f.ctx, 999, domain.PaymentStatusPaid)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderService_OverdueAndStatistics(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Trumpet", 3, 1000)

	first, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)
	second, err := f.orders.Create(f.ctx, simpleOrder(tool.ID, 1))
	require.NoError(t, err)
	for _, to := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusActive} {
		_, err = f.orders.UpdateStatus(f.ctx, first.ID, to, "", "admin")
		require.NoError(t, err)
	}
	_, err = f.orders.Cancel(f.ctx, second.ID, "", "admin")
	require.NoError(t, err)

	overdue, err := f.orders.ListOverdue(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.Advance(17 * 24 * time.Hour)
	overdue, err = f.orders.ListOverdue(f.ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, first.ID, overdue[0].ID)
	assert.Equal(t, domain.OrderStatusOverdue, overdue[0].DisplayStatus(f.clock.Now()))

	stats, err := f.orders.Statistics(f.ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stats.TotalOrders)
	assert.Equal(t, int32(1), stats.StatusCount[domain.OrderStatusActive])
	assert.Equal(t, int32(1), stats.StatusCount[domain.OrderStatusCancelled])
	assert.Equal(t, first.TotalCents, stats.RevenueCents)
	assert.Equal(t, int32(1), stats.OverdueCount)

	from, to := day("2024-07-01"), day("2024-06-01")
	_, err = f.orders.Statistics(f.ctx, &from, &to)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestNewOrderNumber(t *testing.T) {
	n := NewOrderNumber(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^ORD-20241231-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, NewOrderNumber(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
}
