package service

import (
	"context"
	"fmt"
	"time"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
	"instrument-rental-backend/internal/utils"
)

type toolService struct {
	store     repository.Store
	pricing   *utils.PriceCalculator
	publisher events.Publisher
	now       Clock
}

func NewToolService(store repository.Store, pricing *utils.PriceCalculator, publisher events.Publisher, now Clock) ToolService {
	return &toolService{
		store:     store,
		pricing:   pricing,
		publisher: publisher,
		now:       now,
	}
}

func stockEvent(t *domain.Tool, at time.Time) events.Event {
	return events.Event{
		Type:       events.ToolStockChanged,
		Key:        t.ID,
		ToolID:     t.ID,
		Status:     string(t.Status),
		OccurredOn: at,
		Attributes: map[string]string{
			"inStock":    fmt.Sprint(t.InStock),
			"totalStock": fmt.Sprint(t.TotalStock),
		},
	}
}

func (s *toolService) Create(ctx context.Context, tool *domain.Tool) error {
	if tool.Status == "" {
		tool.Status = domain.ToolStatusAvailable
	}
	if err := tool.Validate(); err != nil {
		return err
	}

	err := s.store.WithinToolLocks(ctx, nil, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		tool.CreatedOn = now
		tool.UpdatedOn = now
		tool.DeletedOn = nil
		if err := repos.Tools.Create(ctx, tool); err != nil {
			return err
		}
		return repos.Stock.Record(ctx, &domain.StockMovement{
			ToolID:          tool.ID,
			Delta:           tool.InStock,
			TotalDelta:      tool.TotalStock,
			InStockAfter:    tool.InStock,
			TotalStockAfter: tool.TotalStock,
			Reason:          domain.StockReasonToolCreated,
			CreatedOn:       now,
		})
	})
	if err != nil {
		return err
	}
	logger.Info("Tool created", "tool_id", tool.ID, "name", tool.Name, "total_stock", tool.TotalStock)
	return nil
}

// Get hides soft-deleted tools.
func (s *toolService) Get(ctx context.Context, id int32) (*domain.Tool, error) {
	tool, err := s.store.Repos().Tools.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tool.DeletedOn != nil {
		return nil, fmt.Errorf("%w: tool %d", domain.ErrNotFound, id)
	}
	return tool, nil
}

func applyDescriptive(t *domain.Tool, upd ToolUpdate) {
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Brand != nil {
		t.Brand = *upd.Brand
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.Subcategory != nil {
		t.Subcategory = *upd.Subcategory
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Condition != nil {
		t.Condition = *upd.Condition
	}
	if upd.PricePerDayCents != nil {
		t.PricePerDayCents = *upd.PricePerDayCents
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
}

// Update applies a partial update. A stock correction is checked against the
// units rented out on active orders and the peak future commitment, and the
// whole update is rejected when it would leave a promise uncovered.
func (s *toolService) Update(ctx context.Context, id int32, upd ToolUpdate) (*domain.Tool, error) {
	logger.EnterMethod("toolService.Update", "tool_id", id)
	var tool *domain.Tool
	stockChanged := false
	err := s.store.WithinToolLocks(ctx, []int32{id}, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		t, err := repos.Tools.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.DeletedOn != nil {
			return fmt.Errorf("%w: tool %d", domain.ErrNotFound, id)
		}
		oldIn, oldTotal := t.InStock, t.TotalStock

		applyDescriptive(t, upd)
		if upd.TotalStock != nil {
			t.TotalStock = *upd.TotalStock
			if upd.InStock == nil {
				t.InStock = oldIn + (t.TotalStock - oldTotal)
			}
		}
		if upd.InStock != nil {
			t.InStock = *upd.InStock
		}
		if err := t.Validate(); err != nil {
			return err
		}

		stockChanged = t.InStock != oldIn || t.TotalStock != oldTotal
		if stockChanged {
			rentedOut, err := repos.Orders.UnitsRentedOut(ctx, id)
			if err != nil {
				return err
			}
			if t.TotalStock < rentedOut {
				return fmt.Errorf("%w: %d units of tool %d are rented out, total stock cannot drop to %d",
					domain.ErrCapacityExceeded, rentedOut, id, t.TotalStock)
			}
			if t.UnitsOut() < rentedOut {
				return fmt.Errorf("%w: %d units of tool %d are rented out, at most %d can be in stock",
					domain.ErrCapacityExceeded, rentedOut, id, t.TotalStock-rentedOut)
			}
			today := utils.TruncateDay(now)
			open, err := repos.Bookings.ListOpenFrom(ctx, id, today)
			if err != nil {
				return err
			}
			if peak := domain.PeakCommitted(open, today, now); t.TotalStock < peak {
				return fmt.Errorf("%w: up to %d units of tool %d are committed from %s, total stock cannot drop to %d",
					domain.ErrCapacityExceeded, peak, id, utils.FormatDate(today), t.TotalStock)
			}
		}

		t.UpdatedOn = now
		if err := repos.Tools.Update(ctx, t); err != nil {
			return err
		}
		tool = t
		if !stockChanged {
			return nil
		}
		return repos.Stock.Record(ctx, &domain.StockMovement{
			ToolID:          id,
			Delta:           t.InStock - oldIn,
			TotalDelta:      t.TotalStock - oldTotal,
			InStockAfter:    t.InStock,
			TotalStockAfter: t.TotalStock,
			Reason:          domain.StockReasonCorrection,
			Note:            upd.Note,
			CreatedOn:       now,
		})
	})
	if err != nil {
		logger.ExitMethodWithError("toolService.Update", err, "tool_id", id)
		return nil, err
	}
	if stockChanged {
		logger.Info("Tool stock corrected", "tool_id", id, "in_stock", tool.InStock, "total_stock", tool.TotalStock)
		publish(ctx, s.publisher, stockEvent(tool, tool.UpdatedOn))
	}
	return tool, nil
}

// Delete soft-deletes a tool that has no units out and no live commitments.
func (s *toolService) Delete(ctx context.Context, id int32) error {
	return s.store.WithinToolLocks(ctx, []int32{id}, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		t, err := repos.Tools.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.DeletedOn != nil {
			return fmt.Errorf("%w: tool %d", domain.ErrNotFound, id)
		}
		rentedOut, err := repos.Orders.UnitsRentedOut(ctx, id)
		if err != nil {
			return err
		}
		if rentedOut > 0 {
			return fmt.Errorf("%w: %d units of tool %d are rented out", domain.ErrInvalidTransition, rentedOut, id)
		}
		open, err := repos.Bookings.ListOpenFrom(ctx, id, utils.TruncateDay(now))
		if err != nil {
			return err
		}
		for _, b := range open {
			if b.Commits(now) {
				return fmt.Errorf("%w: tool %d has open booking %d", domain.ErrInvalidTransition, id, b.ID)
			}
		}
		if err := repos.Tools.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		logger.Info("Tool deleted", "tool_id", id)
		return nil
	})
}

func (s *toolService) List(ctx context.Context, filter domain.ToolFilter) ([]domain.Tool, int32, error) {
	return s.store.Repos().Tools.List(ctx, filter)
}

// ListPopular returns up to limit tools ranked by rental count.
func (s *toolService) ListPopular(ctx context.Context, limit int32) ([]domain.PopularTool, error) {
	if limit <= 0 || limit > repository.MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, repository.MaxPageSize)
	}
	return s.store.Repos().Tools.ListPopular(ctx, limit)
}

func (s *toolService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.Repos().Tools.ListCategories(ctx)
}

func (s *toolService) ListLowStock(ctx context.Context, threshold int32) ([]domain.Tool, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", domain.ErrInvalidInput)
	}
	return s.store.Repos().Tools.ListLowStock(ctx, threshold)
}

func (s *toolService) Pricing(ctx context.Context, id int32, days, quantity int32) (*ToolPricing, error) {
	tool, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Quote(tool.PricePerDayCents, days, quantity)
	if err != nil {
		return nil, err
	}
	periods, err := s.pricing.Periods(tool.PricePerDayCents)
	if err != nil {
		return nil, err
	}
	return &ToolPricing{Quote: quote, Periods: periods}, nil
}

func (s *toolService) StockMovements(ctx context.Context, id int32, page, pageSize int32) ([]domain.StockMovement, int32, error) {
	if _, err := s.store.Repos().Tools.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.store.Repos().Stock.ListByTool(ctx, id, page, pageSize)
}
