package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	httpapi "instrument-rental-backend/internal/api/http"
	"instrument-rental-backend/internal/app"
	"instrument-rental-backend/internal/config"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/scheduler"
	"instrument-rental-backend/internal/security"
	"instrument-rental-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to YAML configuration file (environment only when empty)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Instrument Rental Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "auth_enabled", cfg.Auth.Enabled, "rate_limit_rps", cfg.Server.RateLimitRPS)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("Failed to release resources", "error", err)
		}
	}()

	// Initialize HTTP layer
	handler := httpapi.NewHandler(httpapi.HandlerDeps{
		Tools:             application.Tools,
		Bookings:          application.Bookings,
		Orders:            application.Orders,
		Availability:      application.Availability,
		Store:             application.Store,
		Now:               service.SystemClock,
		LowStockThreshold: cfg.Orders.LowStockThreshold,
	})
	auth := httpapi.NewAuth(security.NewTokenManager(cfg.Auth.Secret), cfg.Auth.Enabled)
	var limiter *httpapi.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = httpapi.NewRateLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, cfg.Server.TrustProxy)
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      httpapi.NewRouter(handler, auth, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		cronScheduler, err := scheduler.NewScheduler(application.Jobs)
		if err != nil {
			logger.Error("Failed to initialize scheduler", "error", err)
			log.Fatalf("Failed to initialize scheduler: %v", err)
		}
		g.Go(func() error {
			cronScheduler.Start()
			<-gctx.Done()
			cronScheduler.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return
	}
	logger.Info("Server stopped. Goodbye!")
}
