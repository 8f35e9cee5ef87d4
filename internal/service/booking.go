package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
	"instrument-rental-backend/internal/utils"
)

const DefaultHoldTimeout = 30 * time.Minute

type bookingService struct {
	store       repository.Store
	pricing     *utils.PriceCalculator
	publisher   events.Publisher
	holdTimeout time.Duration
	now         Clock
}

func NewBookingService(store repository.Store, pricing *utils.PriceCalculator, publisher events.Publisher, holdTimeout time.Duration, now Clock) BookingService {
	if holdTimeout <= 0 {
		holdTimeout = DefaultHoldTimeout
	}
	return &bookingService{
		store:       store,
		pricing:     pricing,
		publisher:   publisher,
		holdTimeout: holdTimeout,
		now:         now,
	}
}

// publish runs after commit. A broker failure never undoes a committed change.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "type", e.Type, "key", e.Key, "error", err)
	}
}

func bookingEvent(t events.EventType, b *domain.Booking, at time.Time) events.Event {
	e := events.Event{
		Type:       t,
		Key:        b.ToolID,
		ToolID:     b.ToolID,
		BookingID:  b.ID,
		Status:     string(b.Status),
		OccurredOn: at,
	}
	if b.OrderID != nil {
		e.OrderID = *b.OrderID
	}
	return e
}

func (s *bookingService) Reserve(ctx context.Context, req ReserveRequest) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.Reserve", "tool_id", req.ToolID, "quantity", req.Quantity)
	start, end := utils.TruncateDay(req.StartDate), utils.TruncateDay(req.EndDate)
	if err := domain.ValidateRange(start, end); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	var booking *domain.Booking
	err := s.store.WithinToolLocks(ctx, []int32{req.ToolID}, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		tool, err := repos.Tools.GetByID(ctx, req.ToolID)
		if err != nil {
			return err
		}
		if err := checkCapacity(ctx, repos, tool, start, end, req.Quantity, now); err != nil {
			return err
		}

		days := utils.DaysBetween(start, end)
		unit, err := s.pricing.Price(tool.PricePerDayCents, days)
		if err != nil {
			return err
		}
		expiresAt := now.Add(s.holdTimeout)
		booking = &domain.Booking{
			ToolID:           tool.ID,
			CustomerID:       req.CustomerID,
			StartDate:        start,
			EndDate:          end,
			Quantity:         req.Quantity,
			Status:           domain.BookingStatusPending,
			PricePerDayCents: tool.PricePerDayCents,
			TotalPriceCents:  unit * int64(req.Quantity),
			ExpiresAt:        &expiresAt,
			Notes:            req.Notes,
			CreatedOn:        now,
			UpdatedOn:        now,
		}
		return repos.Bookings.Create(ctx, booking)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.Reserve", err, "tool_id", req.ToolID)
		return nil, err
	}

	logger.Info("Booking reserved", "booking_id", booking.ID, "tool_id", booking.ToolID, "quantity", booking.Quantity, "expires_at", booking.ExpiresAt)
	publish(ctx, s.publisher, bookingEvent(events.BookingReserved, booking, booking.CreatedOn))
	return booking, nil
}

// checkCapacity must run under the tool's lock.
func checkCapacity(ctx context.Context, repos repository.Repositories, tool *domain.Tool, start, end time.Time, quantity int32, now time.Time) error {
	bookings, err := repos.Bookings.ListOverlapping(ctx, tool.ID, start, end)
	if err != nil {
		return err
	}
	avail, err := domain.ComputeAvailability(tool, bookings, start, end, quantity, now)
	if err != nil {
		return err
	}
	if !tool.Bookable() {
		return fmt.Errorf("%w: tool %d is not bookable", domain.ErrCapacityExceeded, tool.ID)
	}
	if !avail.CanBook {
		return fmt.Errorf("%w: tool %d has %d of %d units free for %s to %s", domain.ErrCapacityExceeded,
			tool.ID, avail.FreeQuantity, quantity, utils.FormatDate(start), utils.FormatDate(end))
	}
	return nil
}

func (s *bookingService) toolOf(ctx context.Context, id int32) (int32, error) {
	b, err := s.store.Repos().Bookings.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return b.ToolID, nil
}

func expireBooking(ctx context.Context, repos repository.Repositories, b *domain.Booking, now time.Time) error {
	b.Status = domain.BookingStatusExpired
	b.UpdatedOn = now
	return repos.Bookings.Update(ctx, b)
}

func (s *bookingService) Confirm(ctx context.Context, id int32) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.Confirm", "booking_id", id)
	toolID, err := s.toolOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	lapsed := false
	err = s.store.WithinToolLocks(ctx, []int32{toolID}, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		b, err := repos.Bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		booking = b

		switch b.Status {
		case domain.BookingStatusConfirmed:
			return fmt.Errorf("%w: booking %d", domain.ErrAlreadyConfirmed, id)
		case domain.BookingStatusExpired:
			return fmt.Errorf("%w: booking %d", domain.ErrAlreadyExpired, id)
		case domain.BookingStatusPending:
		default:
			return fmt.Errorf("%w: booking %d is %s", domain.ErrInvalidTransition, id, b.Status)
		}

		if b.HoldLapsed(now) {
			// Persist the expiry and commit; the caller still gets AlreadyExpired.
			lapsed = true
			return expireBooking(ctx, repos, b, now)
		}

		tool, err := repos.Tools.GetByID(ctx, b.ToolID)
		if err != nil {
			return err
		}
		if !tool.Bookable() {
			return fmt.Errorf("%w: tool %d is not bookable", domain.ErrCapacityExceeded, tool.ID)
		}
		overlapping, err := repos.Bookings.ListOverlapping(ctx, b.ToolID, b.StartDate, b.EndDate)
		if err != nil {
			return err
		}
		others := make([]domain.Booking, 0, len(overlapping))
		for _, o := range overlapping {
			if o.ID != b.ID {
				others = append(others, o)
			}
		}
		committed := domain.CommittedQuantity(others, b.StartDate, b.EndDate, now)
		if tool.TotalStock-committed < b.Quantity {
			return fmt.Errorf("%w: tool %d has %d units left, booking %d needs %d", domain.ErrCapacityExceeded,
				tool.ID, max(tool.TotalStock-committed, 0), id, b.Quantity)
		}

		b.Status = domain.BookingStatusConfirmed
		b.ExpiresAt = nil
		b.ConfirmedOn = &now
		b.UpdatedOn = now
		return repos.Bookings.Update(ctx, b)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.Confirm", err, "booking_id", id)
		return nil, err
	}
	if lapsed {
		publish(ctx, s.publisher, bookingEvent(events.BookingExpired, booking, booking.UpdatedOn))
		return nil, fmt.Errorf("%w: hold of booking %d lapsed at %s", domain.ErrAlreadyExpired, id, booking.ExpiresAt.Format(time.RFC3339))
	}

	logger.Info("Booking confirmed", "booking_id", id, "tool_id", booking.ToolID)
	publish(ctx, s.publisher, bookingEvent(events.BookingConfirmed, booking, booking.UpdatedOn))
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, id int32, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.Cancel", "booking_id", id)
	toolID, err := s.toolOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = s.store.WithinToolLocks(ctx, []int32{toolID}, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		b, err := repos.Bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch b.Status {
		case domain.BookingStatusExpired:
			return fmt.Errorf("%w: booking %d", domain.ErrAlreadyExpired, id)
		case domain.BookingStatusPending, domain.BookingStatusConfirmed:
		default:
			return fmt.Errorf("%w: booking %d is %s", domain.ErrInvalidTransition, id, b.Status)
		}
		if b.OrderID != nil {
			return fmt.Errorf("%w: booking %d belongs to order %d, cancel the order instead", domain.ErrInvalidTransition, id, *b.OrderID)
		}

		b.Status = domain.BookingStatusCancelled
		b.CancelReason = reason
		b.UpdatedOn = now
		booking = b
		return repos.Bookings.Update(ctx, b)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.Cancel", err, "booking_id", id)
		return nil, err
	}

	logger.Info("Booking cancelled", "booking_id", id, "reason", reason)
	publish(ctx, s.publisher, bookingEvent(events.BookingCancelled, booking, booking.UpdatedOn))
	return booking, nil
}

// Expire moves a pending booking whose hold has lapsed to expired. A pending
// booking still inside its hold is returned unchanged, and expiring an expired
// booking is a no-op.
func (s *bookingService) Expire(ctx context.Context, id int32) (*domain.Booking, error) {
	toolID, err := s.toolOf(ctx, id)
	if err != nil {
		return nil, err
	}
	booking, _, err := s.expireIfLapsed(ctx, toolID, id, s.now())
	if err != nil {
		return nil, err
	}
	switch booking.Status {
	case domain.BookingStatusPending, domain.BookingStatusExpired:
		return booking, nil
	}
	return nil, fmt.Errorf("%w: booking %d is %s", domain.ErrInvalidTransition, id, booking.Status)
}

// expireIfLapsed expires the booking under its tool lock when the hold lapsed
// at or before now. Any other booking is returned untouched.
func (s *bookingService) expireIfLapsed(ctx context.Context, toolID, id int32, now time.Time) (*domain.Booking, bool, error) {
	var booking *domain.Booking
	changed := false
	err := s.store.WithinToolLocks(ctx, []int32{toolID}, func(ctx context.Context, repos repository.Repositories) error {
		b, err := repos.Bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		booking = b
		if !b.HoldLapsed(now) {
			return nil
		}
		changed = true
		return expireBooking(ctx, repos, b, now)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		publish(ctx, s.publisher, bookingEvent(events.BookingExpired, booking, booking.UpdatedOn))
	}
	return booking, changed, nil
}

// ExpireHolds expires every pending booking whose hold lapsed at or before now.
// Each booking is handled in its own transaction; one failure does not stop the rest.
func (s *bookingService) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	lapsed, err := s.store.Repos().Bookings.ListLapsedHolds(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, candidate := range lapsed {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		// Bookings confirmed or cancelled since the scan come back unchanged.
		_, changed, err := s.expireIfLapsed(ctx, candidate.ToolID, candidate.ID, now)
		if err != nil {
			logger.Error("Failed to expire booking hold", "booking_id", candidate.ID, "error", err)
			errs = append(errs, fmt.Errorf("booking %d: %w", candidate.ID, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

func (s *bookingService) Get(ctx context.Context, id int32) (*domain.Booking, error) {
	return s.store.Repos().Bookings.GetByID(ctx, id)
}

func (s *bookingService) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error) {
	return s.store.Repos().Bookings.List(ctx, filter)
}
