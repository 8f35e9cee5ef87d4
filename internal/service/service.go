package service

import (
	"context"
	"time"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/utils"
)

// Clock returns the current instant. Services take it as a dependency so
// hold expiry can be driven by tests.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

type AvailabilityService interface {
	Check(ctx context.Context, toolID int32, start, end time.Time, quantity int32) (*domain.Availability, error)
}

type ReserveRequest struct {
	ToolID     int32
	CustomerID *int32
	StartDate  time.Time
	EndDate    time.Time
	Quantity   int32
	Notes      string
}

type BookingService interface {
	Reserve(ctx context.Context, req ReserveRequest) (*domain.Booking, error)
	Confirm(ctx context.Context, id int32) (*domain.Booking, error)
	Cancel(ctx context.Context, id int32, reason string) (*domain.Booking, error)
	Expire(ctx context.Context, id int32) (*domain.Booking, error)
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, id int32) (*domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error)
}

type OrderItemRequest struct {
	ToolID    int32
	Quantity  int32
	Days      int32
	StartDate *time.Time
	BookingID *int32
}

type CreateOrderRequest struct {
	CustomerID    *int32
	CustomerInfo  domain.CustomerInfo
	DeliveryInfo  domain.DeliveryInfo
	PaymentMethod string
	Notes         string
	StartDate     time.Time
	EndDate       time.Time
	Items         []OrderItemRequest
	Actor         string
}

type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	Get(ctx context.Context, id int32) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int32, error)
	UpdateStatus(ctx context.Context, id int32, to domain.OrderStatus, note, actor string) (*domain.Order, error)
	Cancel(ctx context.Context, id int32, reason, actor string) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, id int32, status domain.PaymentStatus) (*domain.Order, error)
	UpdateDeliveryStatus(ctx context.Context, id int32, status domain.DeliveryStatus) (*domain.Order, error)
	History(ctx context.Context, id int32) ([]domain.OrderStatusChange, error)
	Statistics(ctx context.Context, from, to *time.Time) (*domain.OrderStatistics, error)
	ListOverdue(ctx context.Context) ([]domain.Order, error)
}

// ToolUpdate carries the fields of a partial tool update; nil means unchanged.
type ToolUpdate struct {
	Name             *string
	Brand            *string
	Category         *string
	Subcategory      *string
	Description      *string
	Condition        *string
	PricePerDayCents *int64
	TotalStock       *int32
	InStock          *int32
	Status           *domain.ToolStatus
	Note             string
}

type ToolPricing struct {
	Quote   *utils.RentalQuote   `json:"quote"`
	Periods []utils.RentalPeriod `json:"periods"`
}

type ToolService interface {
	Create(ctx context.Context, tool *domain.Tool) error
	Get(ctx context.Context, id int32) (*domain.Tool, error)
	Update(ctx context.Context, id int32, upd ToolUpdate) (*domain.Tool, error)
	Delete(ctx context.Context, id int32) error
	List(ctx context.Context, filter domain.ToolFilter) ([]domain.Tool, int32, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListLowStock(ctx context.Context, threshold int32) ([]domain.Tool, error)
	ListPopular(ctx context.Context, limit int32) ([]domain.PopularTool, error)
	Pricing(ctx context.Context, id int32, days, quantity int32) (*ToolPricing, error)
	StockMovements(ctx context.Context, id int32, page, pageSize int32) ([]domain.StockMovement, int32, error)
}

type EmailService interface {
	SendOrderConfirmation(ctx context.Context, order *domain.Order) error
	SendOrderStatusUpdate(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
	SendAdminReport(ctx context.Context, subject, body string) error
}
