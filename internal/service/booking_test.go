package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
)

func TestBookingService_Reserve(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Stage Piano", 2, 1000)

	t.Run("Success", func(t *testing.T) {
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-17", 1)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, b.Status)
		assert.Equal(t, int64(5810), b.TotalPriceCents)
		require.NotNil(t, b.ExpiresAt)
		assert.Equal(t, f.clock.Now().Add(30*time.Minute), *b.ExpiresAt)
		assert.Len(t, f.pub.Published(events.BookingReserved), 1)
	})

	t.Run("Invalid range", func(t *testing.T) {
		_, err := f.reserve(tool.ID, "2024-06-17", "2024-06-17", 1)
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})

	t.Run("Invalid quantity", func(t *testing.T) {
		_, err := f.reserve(tool.ID, "2024-06-10", "2024-06-17", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Unknown tool", func(t *testing.T) {
		_, err := f.reserve(999, "2024-06-10", "2024-06-17", 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingService_TwoUnitScenario(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Cello", 2, 2500)

	_, err := f.reserve(tool.ID, "2024-06-10", "2024-06-15", 1)
	require.NoError(t, err)
	_, err = f.reserve(tool.ID, "2024-06-12", "2024-06-20", 1)
	require.NoError(t, err)

	avail, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-12"), day("2024-06-14"), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), avail.CommittedQuantity)
	assert.Equal(t, int32(0), avail.FreeQuantity)
	assert.False(t, avail.IsAvailable)
	assert.False(t, avail.CanBook)

	_, err = f.reserve(tool.ID, "2024-06-13", "2024-06-14", 1)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	// Adjacent to the first booking's end, inside the second one.
	avail, err = f.avail.Check(f.ctx, tool.ID, day("2024-06-15"), day("2024-06-16"), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), avail.FreeQuantity)
	_, err = f.reserve(tool.ID, "2024-06-15", "2024-06-16", 1)
	assert.NoError(t, err)

	// Availability reads are repeatable.
	again, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-12"), day("2024-06-14"), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), again.CommittedQuantity)
}

func TestBookingService_ConcurrentReserveLastUnit(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Harp", 1, 9000)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reserve(tool.ID, "2024-07-01", "2024-07-04", 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrCapacityExceeded):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	bookings, err := f.store.Repos().Bookings.ListOverlapping(f.ctx, tool.ID, day("2024-07-01"), day("2024-07-04"))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestBookingService_ConcurrentConfirmNeverExceedsStock(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Timpani", 3, 4000)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := day("2024-08-01").AddDate(0, 0, i%4)
			b, err := f.bookings.Reserve(f.ctx, ReserveRequest{ToolID: tool.ID, StartDate: start, EndDate: start.AddDate(0, 0, 3), Quantity: 1})
			if err != nil {
				return
			}
			_, _ = f.bookings.Confirm(f.ctx, b.ID)
		}(i)
	}
	wg.Wait()

	bookings, err := f.store.Repos().Bookings.ListOpenFrom(f.ctx, tool.ID, day("2024-08-01"))
	require.NoError(t, err)
	assert.LessOrEqual(t, domain.PeakCommitted(bookings, day("2024-08-01"), f.clock.Now()), tool.TotalStock)
}

func TestBookingService_Confirm(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		tool := f.addTool(t, "Violin", 1, 1500)
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)

		confirmed, err := f.bookings.Confirm(f.ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
		assert.Nil(t, confirmed.ExpiresAt)
		assert.NotNil(t, confirmed.ConfirmedOn)

		// A confirmed booking never lapses.
		f.clock.Advance(2 * time.Hour)
		avail, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-10"), day("2024-06-12"), 1)
		require.NoError(t, err)
		assert.False(t, avail.CanBook)

		_, err = f.bookings.Confirm(f.ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
	})

	t.Run("Lapsed hold is expired and frees capacity", func(t *testing.T) {
		f := newFixture(t)
		tool := f.addTool(t, "Viola", 1, 1500)
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)

		f.clock.Advance(31 * time.Minute)
		_, err = f.bookings.Confirm(f.ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyExpired)

		stored, err := f.bookings.Get(f.ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusExpired, stored.Status)

		avail, err := f.avail.Check(f.ctx, tool.ID, day("2024-06-10"), day("2024-06-12"), 1)
		require.NoError(t, err)
		assert.True(t, avail.CanBook)
		assert.Len(t, f.pub.Published(events.BookingExpired), 1)

		_, err = f.bookings.Confirm(f.ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyExpired)
	})

	t.Run("Capacity taken by another commitment", func(t *testing.T) {
		f := newFixture(t)
		tool := f.addTool(t, "Oboe", 1, 1200)
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)

		now := f.clock.Now()
		require.NoError(t, f.store.Repos().Bookings.Create(f.ctx, &domain.Booking{
			ToolID: tool.ID, StartDate: day("2024-06-11"), EndDate: day("2024-06-13"), Quantity: 1,
			Status: domain.BookingStatusConfirmed, CreatedOn: now, UpdatedOn: now,
		}))

		_, err = f.bookings.Confirm(f.ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
		stored, _ := f.bookings.Get(f.ctx, b.ID)
		assert.Equal(t, domain.BookingStatusPending, stored.Status)
	})

	t.Run("Unknown booking", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.bookings.Confirm(f.ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingService_Cancel(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Flute", 2, 800)

	t.Run("Pending", func(t *testing.T) {
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)
		cancelled, err := f.bookings.Cancel(f.ctx, b.ID, "changed plans")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
		assert.Equal(t, "changed plans", cancelled.CancelReason)

		_, err = f.bookings.Cancel(f.ctx, b.ID, "again")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Expired", func(t *testing.T) {
		b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)
		f.clock.Advance(31 * time.Minute)
		_, err = f.bookings.Expire(f.ctx, b.ID)
		require.NoError(t, err)
		_, err = f.bookings.Cancel(f.ctx, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyExpired)
	})

	t.Run("Owned by an order", func(t *testing.T) {
		order, err := f.orders.Create(f.ctx, CreateOrderRequest{
			StartDate: day("2024-06-20"), EndDate: day("2024-06-22"),
			Items: []OrderItemRequest{{ToolID: tool.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		_, err = f.bookings.Cancel(f.ctx, order.Items[0].BookingID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestBookingService_ExpireIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Tuba", 1, 2000)
	b, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	require.NoError(t, err)

	held, err := f.bookings.Expire(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, held.Status, "a hold inside its window is left alone")
	assert.Empty(t, f.pub.Published(events.BookingExpired))

	f.clock.Advance(30 * time.Minute)
	first, err := f.bookings.Expire(f.ctx, b.ID)
	require.NoError(t, err)
	second, err := f.bookings.Expire(f.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusExpired, first.Status)
	assert.Equal(t, first, second)
	assert.Len(t, f.pub.Published(events.BookingExpired), 1)

	confirmed, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	require.NoError(t, err)
	_, err = f.bookings.Confirm(f.ctx, confirmed.ID)
	require.NoError(t, err)
	_, err = f.bookings.Expire(f.ctx, confirmed.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_ExpireHolds(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Bassoon", 2, 1800)

	old, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	fresh, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)

	n, err := f.bookings.ExpireHolds(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := f.bookings.Get(f.ctx, old.ID)
	assert.Equal(t, domain.BookingStatusExpired, stored.Status)
	stored, _ = f.bookings.Get(f.ctx, fresh.ID)
	assert.Equal(t, domain.BookingStatusPending, stored.Status)

	n, err = f.bookings.ExpireHolds(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The reaper and confirm serialize: whoever loses sees the final state.
	_, err = f.bookings.Confirm(f.ctx, old.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExpired)
}

func TestBookingService_List(t *testing.T) {
	f := newFixture(t)
	tool := f.addTool(t, "Sitar", 3, 1000)
	for i := 0; i < 3; i++ {
		_, err := f.reserve(tool.ID, "2024-06-10", "2024-06-12", 1)
		require.NoError(t, err)
	}

	bookings, total, err := f.bookings.List(f.ctx, domain.BookingFilter{ToolID: tool.ID, Status: domain.BookingStatusPending, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(3), total)
	assert.Len(t, bookings, 2)
}
