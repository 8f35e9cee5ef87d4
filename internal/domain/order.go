package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"

	// OrderStatusOverdue is only ever a display value, see Order.DisplayStatus.
	OrderStatusOverdue OrderStatus = "overdue"
)

// ParseOrderStatus accepts the stored statuses only; "overdue" cannot be set.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusActive, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidTransition, s)
}

// orderTransitions is the complete set of legal single-step moves.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusActive, OrderStatusCancelled},
	OrderStatusActive:    {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from -> to is not in the table.
func CheckTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: order cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartial, PaymentStatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, s)
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusReturned  DeliveryStatus = "returned"
)

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch st := DeliveryStatus(s); st {
	case DeliveryStatusPending, DeliveryStatusScheduled, DeliveryStatusDelivered, DeliveryStatusReturned:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, s)
}

type CustomerInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company,omitempty"`
}

type DeliveryInfo struct {
	Address      string `json:"address"`
	Date         string `json:"date,omitempty"`
	TimeSlot     string `json:"timeSlot,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// OrderItem is one line of an order. Each item is backed by exactly one
// booking, which is what the availability computation counts.
type OrderItem struct {
	ID               int32     `json:"id"`
	OrderID          int32     `json:"orderId"`
	BookingID        int32     `json:"bookingId"`
	ToolID           int32     `json:"toolId"`
	ToolName         string    `json:"toolName"`
	Quantity         int32     `json:"quantity"`
	PricePerDayCents int64     `json:"pricePerDayCents"`
	Days             int32     `json:"days"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	TotalCents       int64     `json:"totalCents"`
}

type Order struct {
	ID             int32          `json:"id"`
	OrderNumber    string         `json:"orderNumber"`
	CustomerID     *int32         `json:"customerId,omitempty"`
	CustomerInfo   CustomerInfo   `json:"customerInfo"`
	DeliveryInfo   DeliveryInfo   `json:"deliveryInfo"`
	PaymentMethod  string         `json:"paymentMethod"`
	Items          []OrderItem    `json:"items"`
	StartDate      time.Time      `json:"startDate"`
	EndDate        time.Time      `json:"endDate"`
	TotalDays      int32          `json:"totalDays"`
	SubtotalCents  int64          `json:"subtotalCents"`
	TaxCents       int64          `json:"taxCents"`
	TotalCents     int64          `json:"totalCents"`
	DepositCents   int64          `json:"depositCents"`
	Status         OrderStatus    `json:"status"`
	PaymentStatus  PaymentStatus  `json:"paymentStatus"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	Notes          string         `json:"notes"`
	CreatedOn      time.Time      `json:"createdOn"`
	UpdatedOn      time.Time      `json:"updatedOn"`
}

// IsOverdue is derived, never stored: an active rental whose end date has passed.
func (o *Order) IsOverdue(now time.Time) bool {
	return o.Status == OrderStatusActive && now.After(o.EndDate)
}

func (o *Order) DisplayStatus(now time.Time) OrderStatus {
	if o.IsOverdue(now) {
		return OrderStatusOverdue
	}
	return o.Status
}

// ToolIDs returns the distinct tools referenced by the order's items.
func (o *Order) ToolIDs() []int32 {
	seen := make(map[int32]struct{}, len(o.Items))
	ids := make([]int32, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.ToolID]; ok {
			continue
		}
		seen[it.ToolID] = struct{}{}
		ids = append(ids, it.ToolID)
	}
	return ids
}

// OrderStatusChange is one append-only audit trail entry.
type OrderStatusChange struct {
	ID        int32       `json:"id"`
	OrderID   int32       `json:"orderId"`
	From      OrderStatus `json:"from,omitempty"`
	To        OrderStatus `json:"to"`
	Note      string      `json:"note,omitempty"`
	Actor     string      `json:"actor,omitempty"`
	CreatedOn time.Time   `json:"createdOn"`
}

type OrderFilter struct {
	Status     OrderStatus
	CustomerID int32
	From       *time.Time
	To         *time.Time
	Page       int32
	PageSize   int32
}

type OrderStatistics struct {
	TotalOrders  int32                 `json:"totalOrders"`
	StatusCount  map[OrderStatus]int32 `json:"statusCount"`
	RevenueCents int64                 `json:"revenueCents"`
	AverageCents int64                 `json:"averageCents"`
	OverdueCount int32                 `json:"overdueCount"`
}
