package repository

import (
	"context"
	"sort"
	"time"

	"instrument-rental-backend/internal/domain"
)

// All lookups by id return an error wrapping domain.ErrNotFound when the row is absent.

type ToolRepository interface {
	Create(ctx context.Context, tool *domain.Tool) error
	GetByID(ctx context.Context, id int32) (*domain.Tool, error)
	Update(ctx context.Context, tool *domain.Tool) error
	SoftDelete(ctx context.Context, id int32, at time.Time) error
	List(ctx context.Context, filter domain.ToolFilter) ([]domain.Tool, int32, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListLowStock(ctx context.Context, threshold int32) ([]domain.Tool, error)
	// ListPopular ranks live, non-retired tools by the number of order items
	// on orders that were not cancelled.
	ListPopular(ctx context.Context, limit int32) ([]domain.PopularTool, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int32) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	// ListOverlapping returns pending and confirmed bookings of the tool whose
	// range overlaps [start, end). Hold expiry is left to the caller.
	ListOverlapping(ctx context.Context, toolID int32, start, end time.Time) ([]domain.Booking, error)
	// ListOpenFrom returns pending and confirmed bookings of the tool ending after from.
	ListOpenFrom(ctx context.Context, toolID int32, from time.Time) ([]domain.Booking, error)
	ListLapsedHolds(ctx context.Context, now time.Time) ([]domain.Booking, error)
	ListByOrder(ctx context.Context, orderID int32) ([]domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error)
}

type OrderRepository interface {
	// Create inserts the order and its items, filling in generated ids.
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int32) (*domain.Order, error)
	// Update persists the mutable fields: statuses, notes and updated_on.
	Update(ctx context.Context, order *domain.Order) error
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int32, error)
	ListActiveEndedBefore(ctx context.Context, at time.Time) ([]domain.Order, error)
	// UnitsRentedOut sums item quantities of the tool on active orders.
	UnitsRentedOut(ctx context.Context, toolID int32) (int32, error)
	AppendStatusChange(ctx context.Context, change *domain.OrderStatusChange) error
	ListStatusChanges(ctx context.Context, orderID int32) ([]domain.OrderStatusChange, error)
	Statistics(ctx context.Context, from, to *time.Time, now time.Time) (*domain.OrderStatistics, error)
}

type StockRepository interface {
	Record(ctx context.Context, movement *domain.StockMovement) error
	ListByTool(ctx context.Context, toolID int32, page, pageSize int32) ([]domain.StockMovement, int32, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Tools    ToolRepository
	Bookings BookingRepository
	Orders   OrderRepository
	Stock    StockRepository
}

// Transactor runs fn atomically while holding an exclusive lock on each listed
// tool. Locks are taken in ascending id order. If fn returns an error every
// write made through the supplied Repositories is rolled back. An unknown tool
// id fails with domain.ErrNotFound before fn runs.
type Transactor interface {
	WithinToolLocks(ctx context.Context, toolIDs []int32, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a storage backend: plain repositories for reads plus the transactor
// for every check-then-act write.
type Store interface {
	Transactor
	Repos() Repositories
	Ping(ctx context.Context) error
	Close() error
}

// LockOrder returns the distinct ids in ascending order.
func LockOrder(ids []int32) []int32 {
	seen := make(map[int32]struct{}, len(ids))
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

const (
	DefaultPageSize int32 = 20
	MaxPageSize     int32 = 100
)

// Paging turns a 1-based page and a page size into limit and offset.
func Paging(page, pageSize int32) (limit, offset int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
