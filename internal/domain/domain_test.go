package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusConfirmed, OrderStatusActive, true},
		{OrderStatusActive, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusActive, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusActive, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusConfirmed, OrderStatusCompleted, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusActive, OrderStatusOverdue, false},
		{OrderStatusActive, OrderStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			err := CheckTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("active")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusActive, st)

	_, err = ParseOrderStatus("overdue")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = ParseOrderStatus("shipped")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_IsOverdue(t *testing.T) {
	o := &Order{Status: OrderStatusActive, EndDate: day("2024-06-05")}

	assert.False(t, o.IsOverdue(day("2024-06-05")))
	assert.True(t, o.IsOverdue(day("2024-06-05").Add(time.Hour)))
	assert.Equal(t, OrderStatusOverdue, o.DisplayStatus(day("2024-06-06")))

	o.Status = OrderStatusConfirmed
	assert.False(t, o.IsOverdue(day("2024-07-01")))
	assert.Equal(t, OrderStatusConfirmed, o.DisplayStatus(day("2024-07-01")))
}

func TestOrder_ToolIDs(t *testing.T) {
	o := &Order{Items: []OrderItem{{ToolID: 3}, {ToolID: 1}, {ToolID: 3}}}
	assert.Equal(t, []int32{3, 1}, o.ToolIDs())
}

func TestBooking_Commits(t *testing.T) {
	now := day("2024-06-01").Add(10 * time.Minute)
	expires := day("2024-06-01").Add(30 * time.Minute)

	pending := Booking{Status: BookingStatusPending, ExpiresAt: &expires}
	assert.True(t, pending.Commits(now))
	assert.False(t, pending.HoldLapsed(now))
	assert.False(t, pending.Commits(expires), "hold ends exactly at expiresAt")
	assert.True(t, pending.HoldLapsed(expires))

	for _, st := range []BookingStatus{BookingStatusCancelled, BookingStatusExpired, BookingStatusCompleted} {
		b := Booking{Status: st}
		assert.False(t, b.Commits(now), st)
	}
	assert.True(t, (&Booking{Status: BookingStatusConfirmed}).Commits(now))
}

func TestOverlaps_HalfOpen(t *testing.T) {
	assert.True(t, Overlaps(day("2024-06-01"), day("2024-06-05"), day("2024-06-03"), day("2024-06-04")))
	assert.False(t, Overlaps(day("2024-06-01"), day("2024-06-05"), day("2024-06-05"), day("2024-06-06")))
	assert.False(t, Overlaps(day("2024-06-05"), day("2024-06-06"), day("2024-06-01"), day("2024-06-05")))
}

func TestComputeAvailability(t *testing.T) {
	now := day("2024-05-01")
	tool := &Tool{ID: 1, TotalStock: 2, InStock: 2, Status: ToolStatusAvailable}
	bookings := []Booking{
		{ToolID: 1, Status: BookingStatusConfirmed, Quantity: 2, StartDate: day("2024-06-01"), EndDate: day("2024-06-05")},
		{ToolID: 1, Status: BookingStatusCancelled, Quantity: 2, StartDate: day("2024-06-05"), EndDate: day("2024-06-06")},
	}

	t.Run("Overlapping range is full", func(t *testing.T) {
		a, err := ComputeAvailability(tool, bookings, day("2024-06-03"), day("2024-06-04"), 1, now)
		require.NoError(t, err)
		assert.Equal(t, int32(2), a.CommittedQuantity)
		assert.Equal(t, int32(0), a.FreeQuantity)
		assert.False(t, a.IsAvailable)
		assert.False(t, a.CanBook)
	})

	t.Run("Adjacent range is free", func(t *testing.T) {
		a, err := ComputeAvailability(tool, bookings, day("2024-06-05"), day("2024-06-06"), 2, now)
		require.NoError(t, err)
		assert.Equal(t, int32(0), a.CommittedQuantity)
		assert.Equal(t, int32(2), a.FreeQuantity)
		assert.True(t, a.CanBook)
	})

	t.Run("Free never negative", func(t *testing.T) {
		small := &Tool{ID: 1, TotalStock: 1, Status: ToolStatusAvailable}
		a, err := ComputeAvailability(small, bookings, day("2024-06-01"), day("2024-06-02"), 1, now)
		require.NoError(t, err)
		assert.Equal(t, int32(0), a.FreeQuantity)
	})

	t.Run("Retired tool cannot be booked", func(t *testing.T) {
		retired := &Tool{ID: 1, TotalStock: 5, Status: ToolStatusRetired}
		a, err := ComputeAvailability(retired, nil, day("2024-07-01"), day("2024-07-02"), 1, now)
		require.NoError(t, err)
		assert.Equal(t, int32(5), a.FreeQuantity)
		assert.False(t, a.CanBook)
		assert.False(t, a.IsAvailable)
	})

	t.Run("Invalid range", func(t *testing.T) {
		_, err := ComputeAvailability(tool, nil, day("2024-06-05"), day("2024-06-05"), 1, now)
		assert.True(t, errors.Is(err, ErrInvalidRange))
	})

	t.Run("Invalid quantity", func(t *testing.T) {
		_, err := ComputeAvailability(tool, nil, day("2024-06-01"), day("2024-06-05"), 0, now)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPeakCommitted(t *testing.T) {
	now := day("2024-05-01")
	bookings := []Booking{
		{Status: BookingStatusConfirmed, Quantity: 2, StartDate: day("2024-06-01"), EndDate: day("2024-06-05")},
		{Status: BookingStatusConfirmed, Quantity: 1, StartDate: day("2024-06-05"), EndDate: day("2024-06-08")},
		{Status: BookingStatusConfirmed, Quantity: 1, StartDate: day("2024-06-06"), EndDate: day("2024-06-07")},
		{Status: BookingStatusCancelled, Quantity: 9, StartDate: day("2024-06-01"), EndDate: day("2024-06-30")},
		{Status: BookingStatusConfirmed, Quantity: 7, StartDate: day("2024-04-01"), EndDate: day("2024-04-05")},
	}

	assert.Equal(t, int32(2), PeakCommitted(bookings, now, now))
	assert.Equal(t, int32(2), PeakCommitted(bookings, day("2024-06-05"), now))
	assert.Equal(t, int32(0), PeakCommitted(bookings, day("2024-06-08"), now))
	assert.Equal(t, int32(0), PeakCommitted(nil, now, now))
}

func TestTool_Validate(t *testing.T) {
	valid := Tool{Name: "Stage Monitor", PricePerDayCents: 1500, TotalStock: 3, InStock: 3, Status: ToolStatusAvailable}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.InStock = 4
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = valid
	bad.PricePerDayCents = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = valid
	bad.Status = "lost"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "CAPACITY_EXCEEDED", ErrorKind(fmt.Errorf("%w: tool 1", ErrCapacityExceeded)))
	assert.Equal(t, "NOT_FOUND", ErrorKind(ErrNotFound))
	assert.Equal(t, "", ErrorKind(errors.New("boom")))
}
