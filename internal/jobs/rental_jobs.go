package jobs

import (
	"context"
	"fmt"
	"strings"

	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/utils"
)

// ExpireBookingHolds expires every pending booking whose hold has lapsed,
// releasing its capacity. Failures are retried by the next run.
func (jr *JobRunner) ExpireBookingHolds() {
	jr.runWithRecovery("ExpireBookingHolds", func(ctx context.Context) {
		expired, err := jr.services.Bookings.ExpireHolds(ctx, jr.now())
		if err != nil {
			logger.Error("Failed to expire some booking holds", "expired", expired, "error", err)
			return
		}
		logger.Info("Expired booking holds", "count", expired)
	})
}

// ReportOverdueOrders mails the admin a list of active orders past their end
// date. Overdue is never stored; the report is derived on each run.
func (jr *JobRunner) ReportOverdueOrders() {
	jr.runWithRecovery("ReportOverdueOrders", func(ctx context.Context) {
		now := jr.now()
		orders, err := jr.services.Orders.ListOverdue(ctx)
		if err != nil {
			logger.Error("Failed to list overdue orders", "error", err)
			return
		}
		if len(orders) == 0 {
			logger.Info("No overdue orders")
			return
		}

		var b strings.Builder
		for _, o := range orders {
			late := utils.DaysBetween(o.EndDate, now)
			fmt.Fprintf(&b, "%s  %s %s <%s>  due %s  (%d days late)\n",
				o.OrderNumber, o.CustomerInfo.FirstName, o.CustomerInfo.LastName, o.CustomerInfo.Email,
				utils.FormatDate(o.EndDate), late)
			logger.Debug("Overdue order", "order_id", o.ID, "order_number", o.OrderNumber, "end_date", utils.FormatDate(o.EndDate))
		}

		subject := fmt.Sprintf("%d overdue rental orders", len(orders))
		if err := jr.services.Email.SendAdminReport(ctx, subject, b.String()); err != nil {
			logger.Error("Failed to send overdue report", "error", err)
			return
		}
		logger.Info("Reported overdue orders", "count", len(orders))
	})
}
