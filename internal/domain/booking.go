package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusCompleted BookingStatus = "completed"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired, BookingStatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidInput, s)
}

// Booking is a hold on Quantity units of one tool for [StartDate, EndDate).
type Booking struct {
	ID               int32         `json:"id"`
	ToolID           int32         `json:"toolId"`
	CustomerID       *int32        `json:"customerId,omitempty"`
	OrderID          *int32        `json:"orderId,omitempty"`
	StartDate        time.Time     `json:"startDate"`
	EndDate          time.Time     `json:"endDate"`
	Quantity         int32         `json:"quantity"`
	Status           BookingStatus `json:"status"`
	PricePerDayCents int64         `json:"pricePerDayCents"`
	TotalPriceCents  int64         `json:"totalPriceCents"`
	ExpiresAt        *time.Time    `json:"expiresAt,omitempty"`
	Notes            string        `json:"notes"`
	CancelReason     string        `json:"cancelReason,omitempty"`
	ConfirmedOn      *time.Time    `json:"confirmedOn,omitempty"`
	CreatedOn        time.Time     `json:"createdOn"`
	UpdatedOn        time.Time     `json:"updatedOn"`
}

// HoldLapsed reports whether a pending booking's hold window has passed.
func (b *Booking) HoldLapsed(now time.Time) bool {
	return b.Status == BookingStatusPending && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Commits reports whether the booking currently consumes capacity.
func (b *Booking) Commits(now time.Time) bool {
	switch b.Status {
	case BookingStatusConfirmed:
		return true
	case BookingStatusPending:
		return !b.HoldLapsed(now)
	}
	return false
}

// Overlaps is the half-open interval test [start, end) against the booking range.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.StartDate, b.EndDate, start, end)
}

func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

type BookingFilter struct {
	Status     BookingStatus
	ToolID     int32
	CustomerID int32
	Page       int32
	PageSize   int32
}
