package jobs

import (
	"context"
	"fmt"
	"strings"

	"instrument-rental-backend/internal/logger"
)

// ReportLowStock mails the admin the tools at or below the low stock threshold.
func (jr *JobRunner) ReportLowStock() {
	jr.runWithRecovery("ReportLowStock", func(ctx context.Context) {
		threshold := jr.config.Orders.LowStockThreshold
		tools, err := jr.services.Tools.ListLowStock(ctx, threshold)
		if err != nil {
			logger.Error("Failed to list low stock tools", "error", err)
			return
		}
		if len(tools) == 0 {
			logger.Info("No tools below stock threshold", "threshold", threshold)
			return
		}

		var b strings.Builder
		for _, t := range tools {
			fmt.Fprintf(&b, "#%d %s (%s)  in stock %d of %d\n", t.ID, t.Name, t.Category, t.InStock, t.TotalStock)
		}

		subject := fmt.Sprintf("%d tools at or below %d units in stock", len(tools), threshold)
		if err := jr.services.Email.SendAdminReport(ctx, subject, b.String()); err != nil {
			logger.Error("Failed to send low stock report", "error", err)
			return
		}
		logger.Info("Reported low stock tools", "count", len(tools))
	})
}
