package jobs

import (
	"context"
	"fmt"
	"time"

	"instrument-rental-backend/internal/config"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/service"
)

// Job names accepted by Run.
const (
	JobExpireBookingHolds  = "expire-booking-holds"
	JobReportOverdueOrders = "report-overdue-orders"
	JobReportLowStock      = "report-low-stock"
	JobAll                 = "all"
)

const jobTimeout = 5 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	now      service.Clock
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Bookings service.BookingService
	Orders   service.OrderService
	Tools    service.ToolService
	Email    service.EmailService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config, now service.Clock) *JobRunner {
	if now == nil {
		now = service.SystemClock
	}
	return &JobRunner{
		services: services,
		config:   cfg,
		now:      now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("Starting job", "job", jobName)
	jobFunc(ctx)
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ExpireBookingHolds()
	jr.ReportOverdueOrders()
	jr.ReportLowStock()
}

// Run executes the named job once.
func (jr *JobRunner) Run(name string) error {
	switch name {
	case JobExpireBookingHolds:
		jr.ExpireBookingHolds()
	case JobReportOverdueOrders:
		jr.ReportOverdueOrders()
	case JobReportLowStock:
		jr.ReportLowStock()
	case JobAll:
		jr.RunAll()
	default:
		return fmt.Errorf("unknown job %q", name)
	}
	return nil
}
