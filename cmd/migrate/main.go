package main

import (
	"context" // Bootstrap context

	"wallet_ledger/internal/admin"  // Superuser bootstrap
	"wallet_ledger/internal/config" // Custom import path (Config)
	"wallet_ledger/internal/db"     // Custom import path (Database)
	"wallet_ledger/internal/ledger" // Wallet creation for the superuser

	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main entry point for migration
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate DB: %v", err)
	}

	if cfg.AdminUsername == "" || cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logrus.Info("ADMIN_USERNAME, ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping superuser")
		return
	}
	accounts := admin.NewAccounts(gdb, ledger.NewStore(gdb), cfg.JWTSecret, cfg.JWTTTL, admin.WalletDefaults{
		Currency:            cfg.DefaultCurrency,
		TimeZone:            cfg.DefaultTimeZone,
		DailyLimit:          cfg.DefaultDailyLimit,
		MonthlyLimit:        cfg.DefaultMonthlyLimit,
		PerTransactionLimit: cfg.DefaultPerTxLimit,
	})
	err = accounts.EnsureSuperuser(context.Background(), admin.Registration{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: "System Administrator",
	})
	if err != nil {
		logrus.Fatalf("failed to create superuser: %v", err)
	}
}
