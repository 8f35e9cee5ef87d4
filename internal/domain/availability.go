package domain

import (
	"fmt"
	"sort"
	"time"
)

// Availability is the answer to "how many units of a tool are free over a range".
type Availability struct {
	ToolID            int32     `json:"toolId"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	Requested         int32     `json:"requested"`
	TotalStock        int32     `json:"totalStock"`
	CommittedQuantity int32     `json:"committedQuantity"`
	FreeQuantity      int32     `json:"freeQuantity"`
	IsAvailable       bool      `json:"isAvailable"`
	CanBook           bool      `json:"canBook"`
}

// ValidateRange rejects empty or inverted half-open ranges.
func ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start date %s must be before end date %s", ErrInvalidRange,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return nil
}

// CommittedQuantity sums the quantity of bookings that hold capacity at now
// and overlap [start, end). The sum is over overlapping bookings, not the
// instantaneous peak, so it never understates what is promised.
func CommittedQuantity(bookings []Booking, start, end, now time.Time) int32 {
	var committed int32
	for i := range bookings {
		b := &bookings[i]
		if b.Commits(now) && b.Overlaps(start, end) {
			committed += b.Quantity
		}
	}
	return committed
}

// ComputeAvailability derives free capacity for the tool from its bookings.
// The caller supplies every booking of the tool that may overlap the range.
func ComputeAvailability(tool *Tool, bookings []Booking, start, end time.Time, quantity int32, now time.Time) (*Availability, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	committed := CommittedQuantity(bookings, start, end, now)
	free := tool.TotalStock - committed
	if free < 0 {
		free = 0
	}

	a := &Availability{
		ToolID:            tool.ID,
		StartDate:         start,
		EndDate:           end,
		Requested:         quantity,
		TotalStock:        tool.TotalStock,
		CommittedQuantity: committed,
		FreeQuantity:      free,
		IsAvailable:       free > 0,
		CanBook:           free >= quantity,
	}
	if !tool.Bookable() {
		a.IsAvailable = false
		a.CanBook = false
	}
	return a, nil
}

// PeakCommitted returns the largest quantity committed at any single instant
// at or after from. It is the lower bound a stock correction must respect.
func PeakCommitted(bookings []Booking, from, now time.Time) int32 {
	type edge struct {
		at    time.Time
		delta int32
	}
	var edges []edge
	for i := range bookings {
		b := &bookings[i]
		if !b.Commits(now) || !b.EndDate.After(from) {
			continue
		}
		start := b.StartDate
		if start.Before(from) {
			start = from
		}
		edges = append(edges, edge{start, b.Quantity}, edge{b.EndDate, -b.Quantity})
	}
	// Ends sort before starts at the same instant: ranges are half-open.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	var current, peak int32
	for _, e := range edges {
		current += e.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}
