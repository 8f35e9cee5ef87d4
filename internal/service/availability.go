package service

import (
	"context"
	"time"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
	"instrument-rental-backend/internal/utils"
)

type availabilityService struct {
	store repository.Store
	now   Clock
}

func NewAvailabilityService(store repository.Store, now Clock) AvailabilityService {
	return &availabilityService{store: store, now: now}
}

// Check is a lock-free read; the answer may be stale by the time a reserve
// runs, which re-checks under the tool lock.
func (s *availabilityService) Check(ctx context.Context, toolID int32, start, end time.Time, quantity int32) (*domain.Availability, error) {
	logger.EnterMethod("availabilityService.Check", "tool_id", toolID, "start", start, "end", end, "quantity", quantity)
	start, end = utils.TruncateDay(start), utils.TruncateDay(end)
	if err := domain.ValidateRange(start, end); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	tool, err := repos.Tools.GetByID(ctx, toolID)
	if err != nil {
		return nil, err
	}
	bookings, err := repos.Bookings.ListOverlapping(ctx, toolID, start, end)
	if err != nil {
		return nil, err
	}
	avail, err := domain.ComputeAvailability(tool, bookings, start, end, quantity, s.now())
	if err != nil {
		return nil, err
	}
	logger.ExitMethod("availabilityService.Check", "tool_id", toolID, "free", avail.FreeQuantity, "can_book", avail.CanBook)
	return avail, nil
}
