package domain

import "time"

type StockMovementReason string

const (
	StockReasonToolCreated     StockMovementReason = "tool_created"
	StockReasonRentalStarted   StockMovementReason = "rental_started"
	StockReasonRentalReturned  StockMovementReason = "rental_returned"
	StockReasonRentalCancelled StockMovementReason = "rental_cancelled"
	StockReasonCorrection      StockMovementReason = "stock_correction"
)

// StockMovement is an append-only entry of the inventory ledger. Tool.InStock
// always equals InStockAfter of the newest movement for that tool.
type StockMovement struct {
	ID              int32               `json:"id"`
	ToolID          int32               `json:"toolId"`
	OrderID         *int32              `json:"orderId,omitempty"`
	Delta           int32               `json:"delta"`
	TotalDelta      int32               `json:"totalDelta"`
	InStockAfter    int32               `json:"inStockAfter"`
	TotalStockAfter int32               `json:"totalStockAfter"`
	Reason          StockMovementReason `json:"reason"`
	Note            string              `json:"note,omitempty"`
	CreatedOn       time.Time           `json:"createdOn"`
}

// UnitsOut is the number of units not on the shelf: rented out or held back.
func (t *Tool) UnitsOut() int32 {
	return t.TotalStock - t.InStock
}

// LowStock reports tools at or below the threshold of free units.
func (t *Tool) LowStock(threshold int32) bool {
	return t.DeletedOn == nil && t.InStock <= threshold
}
