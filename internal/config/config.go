package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"instrument-rental-backend/internal/utils"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	DefaultTaxRateBP     int64 = 800
	DefaultDepositRateBP int64 = 2000
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Booking   BookingConfig   `yaml:"booking"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Orders    OrdersConfig    `yaml:"orders"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
	Email     EmailConfig     `yaml:"email"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port            int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"` // 0 disables
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
	TrustProxy      bool          `yaml:"trust_proxy" envconfig:"SERVER_TRUST_PROXY"` // key rate limits by X-Forwarded-For
}

// DatabaseConfig contains storage settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DB_DRIVER"` // "postgres" or "memory"
	Host            string        `yaml:"host" envconfig:"DB_HOST"`
	Port            int           `yaml:"port" envconfig:"DB_PORT"`
	User            string        `yaml:"user" envconfig:"DB_USER"`
	Password        string        `yaml:"password" envconfig:"DB_PASSWORD"`
	Database        string        `yaml:"database" envconfig:"DB_NAME"`
	SSLMode         string        `yaml:"ssl_mode" envconfig:"DB_SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" envconfig:"DB_AUTO_MIGRATE"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // "json" or "text"
}

// AuthConfig controls bearer token verification at the edge
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"AUTH_ENABLED"`
	Secret  string `yaml:"secret" envconfig:"AUTH_SECRET"`
}

type BookingConfig struct {
	HoldTimeout time.Duration `yaml:"hold_timeout" envconfig:"BOOKING_HOLD_TIMEOUT"`
}

type PricingConfig struct {
	Tiers []utils.PriceTier `yaml:"tiers" ignored:"true"`
}

type OrdersConfig struct {
	TaxRateBP         int64 `yaml:"tax_rate_bp" envconfig:"ORDER_TAX_RATE_BP"`
	DepositRateBP     int64 `yaml:"deposit_rate_bp" envconfig:"ORDER_DEPOSIT_RATE_BP"`
	LowStockThreshold int32 `yaml:"low_stock_threshold" envconfig:"LOW_STOCK_THRESHOLD"`
}

// SchedulerConfig contains cron schedule settings (six fields, seconds first)
type SchedulerConfig struct {
	Enabled             bool   `yaml:"enabled" envconfig:"SCHEDULER_ENABLED"`
	ExpireBookingHolds  string `yaml:"expire_booking_holds" envconfig:"CRON_EXPIRE_BOOKING_HOLDS"`
	ReportOverdueOrders string `yaml:"report_overdue_orders" envconfig:"CRON_REPORT_OVERDUE_ORDERS"`
	ReportLowStock      string `yaml:"report_low_stock" envconfig:"CRON_REPORT_LOW_STOCK"`
}

// EventsConfig enables the Kafka publisher when brokers are set
type EventsConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"KAFKA_TOPIC"`
}

// EmailConfig enables SendGrid delivery when an API key is set
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key" envconfig:"SENDGRID_API_KEY"`
	FromEmail      string `yaml:"from_email" envconfig:"EMAIL_FROM"`
	FromName       string `yaml:"from_name" envconfig:"EMAIL_FROM_NAME"`
	AdminEmail     string `yaml:"admin_email" envconfig:"EMAIL_ADMIN"`
}

// LoadDotEnv loads variables from the given .env files, skipping missing ones.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML file, then applies environment
// overrides. An empty path configures from the environment alone.
func Load(configPath string) (*Config, error) {
	// Zero is a valid rate, so these defaults go in before decoding.
	cfg := Config{
		Orders: OrdersConfig{
			TaxRateBP:     DefaultTaxRateBP,
			DepositRateBP: DefaultDepositRateBP,
		},
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate fills defaults and checks if the configuration is valid
func (c *Config) Validate() error {
	// Server
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = int(c.Server.RateLimitRPS) + 1
	}

	// Database
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Database.MaxOpenConns == 0 {
			c.Database.MaxOpenConns = 20
		}
		if c.Database.MaxIdleConns == 0 {
			c.Database.MaxIdleConns = 5
		}
		if c.Database.ConnMaxLifetime == 0 {
			c.Database.ConnMaxLifetime = 30 * time.Minute
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Auth
	if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 characters")
	}

	// Booking
	if c.Booking.HoldTimeout == 0 {
		c.Booking.HoldTimeout = 30 * time.Minute
	}
	if c.Booking.HoldTimeout < 0 {
		return fmt.Errorf("booking hold timeout must be positive")
	}

	// Pricing
	if len(c.Pricing.Tiers) == 0 {
		c.Pricing.Tiers = utils.DefaultTiers()
	}
	if _, err := utils.NewPriceCalculator(c.Pricing.Tiers); err != nil {
		return fmt.Errorf("pricing tiers: %w", err)
	}

	// Orders
	if c.Orders.TaxRateBP < 0 || c.Orders.TaxRateBP > 10000 {
		return fmt.Errorf("tax rate must be between 0 and 10000 basis points: %d", c.Orders.TaxRateBP)
	}
	if c.Orders.DepositRateBP < 0 || c.Orders.DepositRateBP > 10000 {
		return fmt.Errorf("deposit rate must be between 0 and 10000 basis points: %d", c.Orders.DepositRateBP)
	}
	if c.Orders.LowStockThreshold == 0 {
		c.Orders.LowStockThreshold = 2
	}
	if c.Orders.LowStockThreshold < 0 {
		return fmt.Errorf("low stock threshold must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.ExpireBookingHolds == "" {
		c.Scheduler.ExpireBookingHolds = "0 * * * * *" // Every minute
	}
	if c.Scheduler.ReportOverdueOrders == "" {
		c.Scheduler.ReportOverdueOrders = "0 0 8 * * *" // 8 AM UTC
	}
	if c.Scheduler.ReportLowStock == "" {
		c.Scheduler.ReportLowStock = "0 0 7 * * *" // 7 AM UTC
	}

	// Events
	if c.Events.Topic == "" {
		c.Events.Topic = "rental-events"
	}

	// Email
	if c.Email.SendGridAPIKey != "" && c.Email.FromEmail == "" {
		return fmt.Errorf("email from address is required with a SendGrid API key")
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Rental Desk"
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
