package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // Limit and fee amounts
	"github.com/spf13/viper"        // Typed environment lookups with defaults
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBDriver   string // mysql, postgres or sqlite
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	DBDSN      string // Full DSN, overrides the individual DB_* fields
	JWTSecret  string // JWT secret key
	JWTTTL     time.Duration
	RedisAddr  string        // Redis server address
	RedisPass  string        // Redis password
	RedisDB    int           // Redis database number
	CacheTTL   time.Duration // Read cache lifetime
	RabbitURL  string        // Empty disables event publishing
	Exchange   string        // Topic exchange for domain events
	IsProd     bool          // Is production environment

	DefaultCurrency     string
	DefaultTimeZone     string
	DefaultDailyLimit   decimal.Decimal
	DefaultMonthlyLimit decimal.Decimal
	DefaultPerTxLimit   decimal.Decimal

	WithdrawalFeePercent decimal.Decimal
	TransferFeePercent   decimal.Decimal
	ConflictRetries      int

	PendingTTL            time.Duration // PENDING top-ups older than this are failed
	ReconcileSchedule     string        // cron spec
	ExpirePendingSchedule string        // cron spec

	// Superuser created by cmd/migrate when all three are set
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_NAME", "wallet_ledger")
	v.SetDefault("JWT_TTL", 24*time.Hour)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", 60*time.Second)
	v.SetDefault("EVENTS_EXCHANGE", "wallet.events")
	v.SetDefault("IS_PROD", false)
	v.SetDefault("DEFAULT_CURRENCY", "PKR")
	v.SetDefault("DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_DAILY_LIMIT", "50000")
	v.SetDefault("DEFAULT_MONTHLY_LIMIT", "500000")
	v.SetDefault("DEFAULT_PER_TX_LIMIT", "25000")
	v.SetDefault("WITHDRAWAL_FEE_PERCENT", "0")
	v.SetDefault("TRANSFER_FEE_PERCENT", "0")
	v.SetDefault("CONFLICT_RETRIES", 3)
	v.SetDefault("PENDING_TTL", 24*time.Hour)
	v.SetDefault("RECONCILE_SCHEDULE", "@every 1h")
	v.SetDefault("EXPIRE_PENDING_SCHEDULE", "@every 5m")
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:               v.GetString("APP_PORT"),
		DBDriver:              strings.ToLower(v.GetString("DB_DRIVER")),
		DBUser:                v.GetString("DB_USER"),
		DBPassword:            v.GetString("DB_PASSWORD"),
		DBHost:                v.GetString("DB_HOST"),
		DBPort:                v.GetString("DB_PORT"),
		DBName:                v.GetString("DB_NAME"),
		DBDSN:                 v.GetString("DB_DSN"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		JWTTTL:                v.GetDuration("JWT_TTL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPass:             v.GetString("REDIS_PASS"),
		RedisDB:               v.GetInt("REDIS_DB"),
		CacheTTL:              v.GetDuration("CACHE_TTL"),
		RabbitURL:             v.GetString("RABBITMQ_URL"),
		Exchange:              v.GetString("EVENTS_EXCHANGE"),
		IsProd:                v.GetBool("IS_PROD"),
		DefaultCurrency:       strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
		DefaultTimeZone:       v.GetString("DEFAULT_TIMEZONE"),
		ConflictRetries:       v.GetInt("CONFLICT_RETRIES"),
		PendingTTL:            v.GetDuration("PENDING_TTL"),
		ReconcileSchedule:     v.GetString("RECONCILE_SCHEDULE"),
		ExpirePendingSchedule: v.GetString("EXPIRE_PENDING_SCHEDULE"),
		AdminUsername:         v.GetString("ADMIN_USERNAME"),
		AdminEmail:            v.GetString("ADMIN_EMAIL"),
		AdminPassword:         v.GetString("ADMIN_PASSWORD"),
	}

	amounts := []struct {
		key  string
		dest *decimal.Decimal
	}{
		{"DEFAULT_DAILY_LIMIT", &cfg.DefaultDailyLimit},
		{"DEFAULT_MONTHLY_LIMIT", &cfg.DefaultMonthlyLimit},
		{"DEFAULT_PER_TX_LIMIT", &cfg.DefaultPerTxLimit},
		{"WITHDRAWAL_FEE_PERCENT", &cfg.WithdrawalFeePercent},
		{"TRANSFER_FEE_PERCENT", &cfg.TransferFeePercent},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(v.GetString(a.key))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", a.key, err)
		}
		*a.dest = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.IsProd && c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required in production")
	}
	if _, err := time.LoadLocation(c.DefaultTimeZone); err != nil {
		return fmt.Errorf("config: DEFAULT_TIMEZONE: %w", err)
	}
	if c.DefaultPerTxLimit.IsNegative() || c.DefaultPerTxLimit.GreaterThan(c.DefaultDailyLimit) ||
		c.DefaultDailyLimit.GreaterThan(c.DefaultMonthlyLimit) {
		return fmt.Errorf("config: default limits must satisfy 0 <= per-transaction <= daily <= monthly")
	}
	if c.WithdrawalFeePercent.IsNegative() || c.TransferFeePercent.IsNegative() {
		return fmt.Errorf("config: fee percentages must not be negative")
	}
	if c.ConflictRetries < 0 {
		return fmt.Errorf("config: CONFLICT_RETRIES must not be negative")
	}
	return nil
}

// DSN builds the driver specific connection string.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
	case "sqlite":
		return c.DBName + ".db"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName) // MySQL DSN
	}
}
