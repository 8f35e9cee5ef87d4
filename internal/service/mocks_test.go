package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/events"
	"instrument-rental-backend/internal/repository/memory"
	"instrument-rental-backend/internal/utils"
)

// MockPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// Published returns the published events of type t in call order.
func (m *MockPublisher) Published(t events.EventType) []events.Event {
	var out []events.Event
	for _, c := range m.Calls {
		if c.Method != "Publish" {
			continue
		}
		if e := c.Arguments.Get(1).(events.Event); e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendOrderConfirmation(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockEmailService) SendOrderStatusUpdate(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	return m.Called(ctx, order, from).Error(0)
}

func (m *MockEmailService) SendAdminReport(ctx context.Context, subject, body string) error {
	return m.Called(ctx, subject, body).Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *fakeClock
	pub      *MockPublisher
	email    *MockEmailService
	avail    AvailabilityService
	bookings BookingService
	orders   OrderService
	tools    ToolService
}

var testRates = OrderRates{TaxBP: 800, DepositBP: 2000}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: memory.NewStore(),
		clock: &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		pub:   new(MockPublisher),
		email: new(MockEmailService),
	}
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	f.email.On("SendOrderConfirmation", mock.Anything, mock.Anything).Return(nil)
	f.email.On("SendOrderStatusUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	pricing := utils.MustPriceCalculator(utils.DefaultTiers())
	f.avail = NewAvailabilityService(f.store, f.clock.Now)
	f.bookings = NewBookingService(f.store, pricing, f.pub, 30*time.Minute, f.clock.Now)
	f.orders = NewOrderService(f.store, pricing, f.pub, f.email, testRates, f.clock.Now)
	f.tools = NewToolService(f.store, pricing, f.pub, f.clock.Now)
	return f
}

func (f *fixture) addTool(t *testing.T, name string, stock int32, priceCents int64) *domain.Tool {
	t.Helper()
	tool := &domain.Tool{
		Name:             name,
		Brand:            "Yamaha",
		Category:         "Keys",
		PricePerDayCents: priceCents,
		TotalStock:       stock,
		InStock:          stock,
	}
	require.NoError(t, f.tools.Create(f.ctx, tool))
	return tool
}

func (f *fixture) reserve(toolID int32, start, end string, qty int32) (*domain.Booking, error) {
	return f.bookings.Reserve(f.ctx, ReserveRequest{ToolID: toolID, StartDate: day(start), EndDate: day(end), Quantity: qty})
}

func (f *fixture) inStock(t *testing.T, toolID int32) int32 {
	t.Helper()
	tool, err := f.store.Repos().Tools.GetByID(f.ctx, toolID)
	require.NoError(t, err)
	return tool.InStock
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
