// Package app wires configuration into the storage backend, the event
// publisher and the services shared by the server and the cron runner.
package app

import (
	"context"
	"errors"
	"fmt"

	"instrument-rental-backend/internal/config"
	"instrument-rental-backend/internal/events"
	"instrument-rental-backend/internal/jobs"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
	"instrument-rental-backend/internal/repository/memory"
	"instrument-rental-backend/internal/repository/postgres"
	"instrument-rental-backend/internal/service"
	"instrument-rental-backend/internal/utils"
)

type App struct {
	Config    *config.Config
	Store     repository.Store
	Publisher events.Publisher
	Email     service.EmailService

	Tools        service.ToolService
	Bookings     service.BookingService
	Orders       service.OrderService
	Availability service.AvailabilityService
	Jobs         *jobs.JobRunner
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pricing, err := utils.NewPriceCalculator(cfg.Pricing.Tiers)
	if err != nil {
		return nil, fmt.Errorf("pricing tiers: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	email := service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Email.AdminEmail)
	clock := service.Clock(service.SystemClock)
	rates := service.OrderRates{TaxBP: cfg.Orders.TaxRateBP, DepositBP: cfg.Orders.DepositRateBP}

	a := &App{
		Config:       cfg,
		Store:        store,
		Publisher:    publisher,
		Email:        email,
		Tools:        service.NewToolService(store, pricing, publisher, clock),
		Bookings:     service.NewBookingService(store, pricing, publisher, cfg.Booking.HoldTimeout, clock),
		Orders:       service.NewOrderService(store, pricing, publisher, email, rates, clock),
		Availability: service.NewAvailabilityService(store, clock),
	}
	a.Jobs = jobs.NewJobRunner(&jobs.Services{
		Bookings: a.Bookings,
		Orders:   a.Orders,
		Tools:    a.Tools,
		Email:    email,
	}, cfg, clock)
	return a, nil
}

// Close flushes the publisher and releases the store.
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.Store.Close())
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database migrations applied")
	}
	return postgres.NewStore(db), nil
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if len(cfg.Events.Brokers) == 0 {
		logger.Info("No Kafka brokers configured; lifecycle events are logged only")
		return events.NewLogPublisher(), nil
	}
	producer, err := events.NewProducer(events.KafkaConfig{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	logger.Info("Publishing lifecycle events to Kafka", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	return events.NewKafkaPublisher(producer, cfg.Events.Topic), nil
}
