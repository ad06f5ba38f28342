package main

import (
	"context"       // context package is needed for Redis operations
	"time"          // Shutdown timeout
	_ "time/tzdata" // Wallet time zones on hosts without zoneinfo

	"wallet_ledger/internal/admin"     // Administrative controller and accounts
	"wallet_ledger/internal/api"       // Custom package for API handlers
	"wallet_ledger/internal/config"    // Custom package for configuration
	"wallet_ledger/internal/db"        // Database connection and schema
	"wallet_ledger/internal/engine"    // Transaction Engine
	"wallet_ledger/internal/events"    // Domain event publishing
	"wallet_ledger/internal/jobs"      // Background jobs
	"wallet_ledger/internal/ledger"    // Ledger Store
	"wallet_ledger/internal/limits"    // Limit Tracker
	"wallet_ledger/internal/reporting" // Read-only queries
	"wallet_ledger/internal/utils"     // Redis cache

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Setup logger
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	// Connect to the database and bring the schema up to date
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate DB: %v", err)
	}

	// Setup Redis client. Without Redis the service runs uncached.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	cache := utils.NewCache(redisClient, cfg.CacheTTL)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, caching disabled")
		cache = nil
	}

	publisher := events.Connect(cfg.RabbitURL, cfg.Exchange)
	defer publisher.Close()

	store := ledger.NewStore(gdb, ledger.WithConflictRetries(cfg.ConflictRetries))
	tracker := limits.NewTracker(nil)
	eng := engine.New(store, tracker, engine.FeePolicy{
		WithdrawalPercent: cfg.WithdrawalFeePercent,
		TransferPercent:   cfg.TransferFeePercent,
	}, publisher)
	reports := reporting.New(gdb, nil)
	accounts := admin.NewAccounts(gdb, store, cfg.JWTSecret, cfg.JWTTTL, admin.WalletDefaults{
		Currency:            cfg.DefaultCurrency,
		TimeZone:            cfg.DefaultTimeZone,
		DailyLimit:          cfg.DefaultDailyLimit,
		MonthlyLimit:        cfg.DefaultMonthlyLimit,
		PerTransactionLimit: cfg.DefaultPerTxLimit,
	})

	// Background jobs: expire stale pending top-ups and reconcile balances
	scheduler := jobs.NewScheduler(jobs.NewJobs(eng, reports, cfg.PendingTTL))
	if err := scheduler.Start(cfg.ReconcileSchedule, cfg.ExpirePendingSchedule); err != nil {
		logrus.Fatalf("failed to start scheduler: %v", err)
	}
	defer func() {
		select {
		case <-scheduler.Stop().Done():
		case <-time.After(10 * time.Second):
			logrus.Warn("Scheduled jobs still running at shutdown")
		}
	}()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.RegisterRoutes(r, &api.Deps{
		Engine:   eng,
		Store:    store,
		Limits:   tracker,
		Admin:    admin.NewController(gdb, store, publisher),
		Accounts: accounts,
		Reports:  reports,
		Cache:    cache,
	})

	logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
	// Start the server on port cfg.AppPort
	if err := r.Run(":" + cfg.AppPort); err != nil {
		logrus.Errorf("server stopped: %v", err)
	}
}
