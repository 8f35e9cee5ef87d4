package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
	"instrument-rental-backend/internal/utils"
)

type OrderRates struct {
	TaxBP     int64
	DepositBP int64
}

type orderService struct {
	store     repository.Store
	pricing   *utils.PriceCalculator
	publisher events.Publisher
	email     EmailService
	rates     OrderRates
	now       Clock
}

func NewOrderService(store repository.Store, pricing *utils.PriceCalculator, publisher events.Publisher, email EmailService, rates OrderRates, now Clock) OrderService {
	return &orderService{
		store:     store,
		pricing:   pricing,
		publisher: publisher,
		email:     email,
		rates:     rates,
		now:       now,
	}
}

// NewOrderNumber renders ORD-yyyymmdd-XXXXXXXX.
func NewOrderNumber(at time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), id[:8])
}

func orderEvent(o *domain.Order, t events.EventType, at time.Time, from domain.OrderStatus) events.Event {
	e := events.Event{
		Type:       t,
		Key:        o.ID,
		OrderID:    o.ID,
		Status:     string(o.Status),
		OccurredOn: at,
		Attributes: map[string]string{"orderNumber": o.OrderNumber},
	}
	if from != "" {
		e.Attributes["from"] = string(from)
	}
	return e
}

type plannedItem struct {
	req     OrderItemRequest
	booking *domain.Booking
	start   time.Time
	end     time.Time
}

// planItems resolves the range of every item and the tool of adopted
// bookings, without locking. Everything is re-validated under the lock.
func (s *orderService) planItems(ctx context.Context, req CreateOrderRequest) ([]plannedItem, []int32, error) {
	if len(req.Items) == 0 {
		return nil, nil, fmt.Errorf("%w: an order needs at least one item", domain.ErrInvalidInput)
	}
	orderStart, orderEnd := utils.TruncateDay(req.StartDate), utils.TruncateDay(req.EndDate)

	planned := make([]plannedItem, 0, len(req.Items))
	toolIDs := make([]int32, 0, len(req.Items))
	for i, it := range req.Items {
		p := plannedItem{req: it}
		if it.BookingID != nil {
			b, err := s.store.Repos().Bookings.GetByID(ctx, *it.BookingID)
			if err != nil {
				return nil, nil, err
			}
			if it.ToolID != 0 && it.ToolID != b.ToolID {
				return nil, nil, fmt.Errorf("%w: item %d names tool %d but booking %d is for tool %d",
					domain.ErrInvalidInput, i, it.ToolID, b.ID, b.ToolID)
			}
			p.req.ToolID = b.ToolID
			toolIDs = append(toolIDs, b.ToolID)
			planned = append(planned, p)
			continue
		}

		if it.ToolID == 0 {
			return nil, nil, fmt.Errorf("%w: item %d needs a toolId or a bookingId", domain.ErrInvalidInput, i)
		}
		if it.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: item %d quantity must be positive", domain.ErrInvalidInput, i)
		}
		p.start = orderStart
		if it.StartDate != nil {
			p.start = utils.TruncateDay(*it.StartDate)
		}
		switch {
		case it.Days > 0:
			p.end = utils.AddDays(p.start, it.Days)
		case it.Days < 0:
			return nil, nil, fmt.Errorf("%w: item %d days must be positive", domain.ErrInvalidInput, i)
		default:
			p.end = orderEnd
		}
		if err := domain.ValidateRange(p.start, p.end); err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		toolIDs = append(toolIDs, it.ToolID)
		planned = append(planned, p)
	}
	return planned, toolIDs, nil
}

func (s *orderService) Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	logger.EnterMethod("orderService.Create", "items", len(req.Items))
	planned, toolIDs, err := s.planItems(ctx, req)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.store.WithinToolLocks(ctx, toolIDs, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		items := make([]domain.OrderItem, 0, len(planned))
		bookings := make([]*domain.Booking, 0, len(planned))
		adopted := make(map[int32]bool)

		for i := range planned {
			p := &planned[i]
			tool, err := repos.Tools.GetByID(ctx, p.req.ToolID)
			if err != nil {
				return err
			}

			var b *domain.Booking
			if p.req.BookingID != nil {
				b, err = s.adoptBooking(ctx, repos, *p.req.BookingID, p.req.Quantity, now)
				if err != nil {
					return err
				}
				if adopted[b.ID] {
					return fmt.Errorf("%w: booking %d is listed twice", domain.ErrInvalidInput, b.ID)
				}
				adopted[b.ID] = true
			} else {
				if err := checkCapacity(ctx, repos, tool, p.start, p.end, p.req.Quantity, now); err != nil {
					return err
				}
				unit, err := s.pricing.Price(tool.PricePerDayCents, utils.DaysBetween(p.start, p.end))
				if err != nil {
					return err
				}
				b = &domain.Booking{
					ToolID:           tool.ID,
					CustomerID:       req.CustomerID,
					StartDate:        p.start,
					EndDate:          p.end,
					Quantity:         p.req.Quantity,
					Status:           domain.BookingStatusConfirmed,
					PricePerDayCents: tool.PricePerDayCents,
					TotalPriceCents:  unit * int64(p.req.Quantity),
					ConfirmedOn:      &now,
					CreatedOn:        now,
					UpdatedOn:        now,
				}
				if err := repos.Bookings.Create(ctx, b); err != nil {
					return err
				}
			}

			bookings = append(bookings, b)
			items = append(items, domain.OrderItem{
				BookingID:        b.ID,
				ToolID:           tool.ID,
				ToolName:         tool.Name,
				Quantity:         b.Quantity,
				PricePerDayCents: b.PricePerDayCents,
				Days:             utils.DaysBetween(b.StartDate, b.EndDate),
				StartDate:        b.StartDate,
				EndDate:          b.EndDate,
				TotalCents:       b.TotalPriceCents,
			})
		}

		order = buildOrder(req, items, s.rates, now)
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}
		for _, b := range bookings {
			b.OrderID = &order.ID
			b.UpdatedOn = now
			if err := repos.Bookings.Update(ctx, b); err != nil {
				return err
			}
		}
		return repos.Orders.AppendStatusChange(ctx, &domain.OrderStatusChange{
			OrderID:   order.ID,
			To:        domain.OrderStatusPending,
			Note:      "order created",
			Actor:     req.Actor,
			CreatedOn: now,
		})
	})
	if err != nil {
		logger.ExitMethodWithError("orderService.Create", err)
		return nil, err
	}

	logger.Info("Order created", "order_id", order.ID, "order_number", order.OrderNumber, "total_cents", order.TotalCents)
	publish(ctx, s.publisher, orderEvent(order, events.OrderCreated, order.CreatedOn, ""))
	if err := s.email.SendOrderConfirmation(ctx, order); err != nil {
		logger.ErrorContext(ctx, "Failed to send order confirmation", "order_id", order.ID, "error", err)
	}
	return order, nil
}

// adoptBooking checks that the booking may back a new order item.
func (s *orderService) adoptBooking(ctx context.Context, repos repository.Repositories, id, quantity int32, now time.Time) (*domain.Booking, error) {
	b, err := repos.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case b.Status == domain.BookingStatusExpired || b.HoldLapsed(now):
		return nil, fmt.Errorf("%w: booking %d", domain.ErrAlreadyExpired, id)
	case b.Status != domain.BookingStatusConfirmed:
		return nil, fmt.Errorf("%w: booking %d is %s, only confirmed bookings can be ordered", domain.ErrInvalidTransition, id, b.Status)
	case b.OrderID != nil:
		return nil, fmt.Errorf("%w: booking %d already belongs to order %d", domain.ErrInvalidTransition, id, *b.OrderID)
	case quantity != 0 && quantity != b.Quantity:
		return nil, fmt.Errorf("%w: item quantity %d does not match booking %d quantity %d", domain.ErrInvalidInput, quantity, id, b.Quantity)
	}
	return b, nil
}

func buildOrder(req CreateOrderRequest, items []domain.OrderItem, rates OrderRates, now time.Time) *domain.Order {
	o := &domain.Order{
		OrderNumber:    NewOrderNumber(now),
		CustomerID:     req.CustomerID,
		CustomerInfo:   req.CustomerInfo,
		DeliveryInfo:   req.DeliveryInfo,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		Items:          items,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		DeliveryStatus: domain.DeliveryStatusPending,
		CreatedOn:      now,
		UpdatedOn:      now,
	}
	for i, it := range items {
		if i == 0 || it.StartDate.Before(o.StartDate) {
			o.StartDate = it.StartDate
		}
		if i == 0 || it.EndDate.After(o.EndDate) {
			o.EndDate = it.EndDate
		}
		o.SubtotalCents += it.TotalCents
	}
	o.TotalDays = utils.DaysBetween(o.StartDate, o.EndDate)
	o.TaxCents = utils.ApplyRate(o.SubtotalCents, rates.TaxBP)
	o.DepositCents = utils.ApplyRate(o.SubtotalCents, rates.DepositBP)
	o.TotalCents = o.SubtotalCents + o.TaxCents
	return o
}

func (s *orderService) Get(ctx context.Context, id int32) (*domain.Order, error) {
	return s.store.Repos().Orders.GetByID(ctx, id)
}

func (s *orderService) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int32, error) {
	return s.store.Repos().Orders.List(ctx, filter)
}

// withOrderLocks re-reads the order under the locks of all of its tools.
func (s *orderService) withOrderLocks(ctx context.Context, id int32, fn func(ctx context.Context, repos repository.Repositories, o *domain.Order) error) (*domain.Order, error) {
	current, err := s.store.Repos().Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var order *domain.Order
	err = s.store.WithinToolLocks(ctx, current.ToolIDs(), func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		order = o
		return fn(ctx, repos, o)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id int32, to domain.OrderStatus, note, actor string) (*domain.Order, error) {
	logger.EnterMethod("orderService.UpdateStatus", "order_id", id, "to", to)
	var from domain.OrderStatus
	order, err := s.withOrderLocks(ctx, id, func(ctx context.Context, repos repository.Repositories, o *domain.Order) error {
		now := s.now()
		from = o.Status
		if err := domain.CheckTransition(o.Status, to); err != nil {
			return fmt.Errorf("order %d: %w", id, err)
		}

		switch to {
		case domain.OrderStatusActive:
			if err := s.moveStock(ctx, repos, o, -1, domain.StockReasonRentalStarted, now); err != nil {
				return err
			}
		case domain.OrderStatusCompleted:
			if err := s.moveStock(ctx, repos, o, 1, domain.StockReasonRentalReturned, now); err != nil {
				return err
			}
			if err := settleBookings(ctx, repos, o.ID, domain.BookingStatusCompleted, "", now); err != nil {
				return err
			}
		case domain.OrderStatusCancelled:
			if err := settleBookings(ctx, repos, o.ID, domain.BookingStatusCancelled, note, now); err != nil {
				return err
			}
			if from == domain.OrderStatusActive {
				if err := s.moveStock(ctx, repos, o, 1, domain.StockReasonRentalCancelled, now); err != nil {
					return err
				}
			}
		}

		o.Status = to
		o.UpdatedOn = now
		if err := repos.Orders.Update(ctx, o); err != nil {
			return err
		}
		return repos.Orders.AppendStatusChange(ctx, &domain.OrderStatusChange{
			OrderID:   o.ID,
			From:      from,
			To:        to,
			Note:      note,
			Actor:     actor,
			CreatedOn: now,
		})
	})
	if err != nil {
		logger.ExitMethodWithError("orderService.UpdateStatus", err, "order_id", id)
		return nil, err
	}

	logger.Info("Order status changed", "order_id", id, "from", from, "to", to)
	publish(ctx, s.publisher, orderEvent(order, events.OrderStatusChanged, order.UpdatedOn, from))
	if err := s.email.SendOrderStatusUpdate(ctx, order, from); err != nil {
		logger.ErrorContext(ctx, "Failed to send order status email", "order_id", id, "error", err)
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, id int32, reason, actor string) (*domain.Order, error) {
	return s.UpdateStatus(ctx, id, domain.OrderStatusCancelled, reason, actor)
}

// moveStock applies sign*quantity to the in-stock counter of each item's tool
// and records one stock movement per item.
func (s *orderService) moveStock(ctx context.Context, repos repository.Repositories, o *domain.Order, sign int32, reason domain.StockMovementReason, now time.Time) error {
	for _, it := range o.Items {
		tool, err := repos.Tools.GetByID(ctx, it.ToolID)
		if err != nil {
			return err
		}
		next := tool.InStock + sign*it.Quantity
		if next < 0 {
			return fmt.Errorf("%w: tool %d has %d units in stock, order %d needs %d", domain.ErrCapacityExceeded,
				tool.ID, tool.InStock, o.ID, it.Quantity)
		}
		if next > tool.TotalStock {
			return fmt.Errorf("%w: returning %d units of tool %d would put %d in stock, total stock is %d",
				domain.ErrCapacityExceeded, it.Quantity, tool.ID, next, tool.TotalStock)
		}
		delta := next - tool.InStock
		tool.InStock = next
		tool.UpdatedOn = now
		if err := repos.Tools.Update(ctx, tool); err != nil {
			return err
		}
		orderID := o.ID
		if err := repos.Stock.Record(ctx, &domain.StockMovement{
			ToolID:          tool.ID,
			OrderID:         &orderID,
			Delta:           delta,
			InStockAfter:    tool.InStock,
			TotalStockAfter: tool.TotalStock,
			Reason:          reason,
			Note:            o.OrderNumber,
			CreatedOn:       now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// settleBookings closes the order's open bookings.
func settleBookings(ctx context.Context, repos repository.Repositories, orderID int32, status domain.BookingStatus, reason string, now time.Time) error {
	bookings, err := repos.Bookings.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for i := range bookings {
		b := &bookings[i]
		if b.Status != domain.BookingStatusConfirmed && b.Status != domain.BookingStatusPending {
			continue
		}
		b.Status = status
		if status == domain.BookingStatusCancelled {
			b.CancelReason = reason
		}
		b.UpdatedOn = now
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, id int32, status domain.PaymentStatus) (*domain.Order, error) {
	return s.withOrderLocks(ctx, id, func(ctx context.Context, repos repository.Repositories, o *domain.Order) error {
		o.PaymentStatus = status
		o.UpdatedOn = s.now()
		return repos.Orders.Update(ctx, o)
	})
}

func (s *orderService) UpdateDeliveryStatus(ctx context.Context, id int32, status domain.DeliveryStatus) (*domain.Order, error) {
	return s.withOrderLocks(ctx, id, func(ctx context.Context, repos repository.Repositories, o *domain.Order) error {
		o.DeliveryStatus = status
		o.UpdatedOn = s.now()
		return repos.Orders.Update(ctx, o)
	})
}

func (s *orderService) History(ctx context.Context, id int32) ([]domain.OrderStatusChange, error) {
	repos := s.store.Repos()
	if _, err := repos.Orders.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return repos.Orders.ListStatusChanges(ctx, id)
}

func (s *orderService) Statistics(ctx context.Context, from, to *time.Time) (*domain.OrderStatistics, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return nil, fmt.Errorf("%w: statistics window start must be before its end", domain.ErrInvalidRange)
	}
	return s.store.Repos().Orders.Statistics(ctx, from, to, s.now())
}

func (s *orderService) ListOverdue(ctx context.Context) ([]domain.Order, error) {
	return s.store.Repos().Orders.ListActiveEndedBefore(ctx, s.now())
}
