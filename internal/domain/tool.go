package domain

import (
	"fmt"
	"time"
)

type ToolStatus string

const (
	ToolStatusAvailable   ToolStatus = "available"
	ToolStatusRented      ToolStatus = "rented"
	ToolStatusMaintenance ToolStatus = "maintenance"
	ToolStatusRetired     ToolStatus = "retired"
)

// ParseToolStatus rejects anything outside the closed set of tool statuses.
func ParseToolStatus(s string) (ToolStatus, error) {
	switch st := ToolStatus(s); st {
	case ToolStatusAvailable, ToolStatusRented, ToolStatusMaintenance, ToolStatusRetired:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown tool status %q", ErrInvalidInput, s)
}

// Tool is a rentable item type with a pooled unit count.
//
// Status is advisory display state. Whether units can be promised for a date
// range is decided by the availability computation, never by Status or
// InStock alone.
type Tool struct {
	ID               int32      `json:"id"`
	Name             string     `json:"name"`
	Brand            string     `json:"brand"`
	Category         string     `json:"category"`
	Subcategory      string     `json:"subcategory"`
	Description      string     `json:"description"`
	Condition        string     `json:"condition"`
	PricePerDayCents int64      `json:"pricePerDayCents"`
	TotalStock       int32      `json:"totalStock"`
	InStock          int32      `json:"inStock"`
	Status           ToolStatus `json:"status"`
	CreatedOn        time.Time  `json:"createdOn"`
	UpdatedOn        time.Time  `json:"updatedOn"`
	DeletedOn        *time.Time `json:"deletedOn,omitempty"`
}

// Bookable reports whether new commitments may be made against the tool.
func (t *Tool) Bookable() bool {
	return t.Status != ToolStatusRetired && t.DeletedOn == nil
}

// Validate checks the static invariants of a tool record.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: tool name is required", ErrInvalidInput)
	}
	if t.PricePerDayCents <= 0 {
		return fmt.Errorf("%w: price per day must be positive", ErrInvalidInput)
	}
	if t.TotalStock < 0 {
		return fmt.Errorf("%w: total stock must not be negative", ErrInvalidInput)
	}
	if t.InStock < 0 || t.InStock > t.TotalStock {
		return fmt.Errorf("%w: in stock must be between 0 and total stock (%d)", ErrInvalidInput, t.TotalStock)
	}
	if _, err := ParseToolStatus(string(t.Status)); err != nil {
		return err
	}
	return nil
}

// PopularTool is a catalog entry ranked by how often it was rented.
type PopularTool struct {
	Tool
	RentalCount int32 `json:"rentalCount"`
}

type Category struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

type ToolFilter struct {
	Category      string
	Brand         string
	Search        string
	MinPriceCents int64
	MaxPriceCents int64
	OnlyInStock   bool
	Sort          string // name, price, created_on
	Descending    bool
	Page          int32
	PageSize      int32
}
