package memory

import (
	"context"
	"sort"
	"time"

	"instrument-rental-backend/internal/domain"
)

type bookingRepository struct {
	s *Store
	j *journal
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyInt32(v *int32) *int32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyBooking(b domain.Booking) *domain.Booking {
	b.CustomerID = copyInt32(b.CustomerID)
	b.OrderID = copyInt32(b.OrderID)
	b.ExpiresAt = copyTime(b.ExpiresAt)
	b.ConfirmedOn = copyTime(b.ConfirmedOn)
	return &b
}

func isOpen(b *domain.Booking) bool {
	return b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusConfirmed
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.booking++
	b.ID = r.s.seq.booking
	r.s.bookings[b.ID] = *copyBooking(*b)
	id := b.ID
	r.j.add(func() { delete(r.s.bookings, id) })
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return copyBooking(b), nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.bookings[b.ID]
	if !ok {
		return notFound("booking", b.ID)
	}
	r.s.bookings[b.ID] = *copyBooking(*b)
	r.j.add(func() { r.s.bookings[old.ID] = old })
	return nil
}

func (r *bookingRepository) collect(keep func(b *domain.Booking) bool) []domain.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Booking
	for _, b := range r.s.bookings {
		if keep(&b) {
			out = append(out, *copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *bookingRepository) ListOverlapping(ctx context.Context, toolID int32, start, end time.Time) ([]domain.Booking, error) {
	return r.collect(func(b *domain.Booking) bool {
		return b.ToolID == toolID && isOpen(b) && b.Overlaps(start, end)
	}), nil
}

func (r *bookingRepository) ListOpenFrom(ctx context.Context, toolID int32, from time.Time) ([]domain.Booking, error) {
	return r.collect(func(b *domain.Booking) bool {
		return b.ToolID == toolID && isOpen(b) && b.EndDate.After(from)
	}), nil
}

func (r *bookingRepository) ListLapsedHolds(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	return r.collect(func(b *domain.Booking) bool { return b.HoldLapsed(now) }), nil
}

func (r *bookingRepository) ListByOrder(ctx context.Context, orderID int32) ([]domain.Booking, error) {
	return r.collect(func(b *domain.Booking) bool {
		return b.OrderID != nil && *b.OrderID == orderID
	}), nil
}

func (r *bookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int32, error) {
	matched := r.collect(func(b *domain.Booking) bool {
		if f.Status != "" && b.Status != f.Status {
			return false
		}
		if f.ToolID != 0 && b.ToolID != f.ToolID {
			return false
		}
		if f.CustomerID != 0 && (b.CustomerID == nil || *b.CustomerID != f.CustomerID) {
			return false
		}
		return true
	})
	// newest first
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, f.Page, f.PageSize), int32(len(matched)), nil
}
