package db

import (
	"wallet_ledger/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Models lists every table owned by the service.
func Models() []any {
	return []any{&domain.User{}, &domain.Wallet{}, &domain.Transaction{}, &domain.PaymentMethod{}}
}

// Migrate performs automatic migration for the database schema
func Migrate(gdb *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
