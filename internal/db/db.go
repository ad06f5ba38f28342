package db

import (
	"fmt"
	"time"

	"wallet_ledger/internal/config" // Connection settings

	"github.com/sirupsen/logrus" // Sink for GORM's logger
	"gorm.io/driver/mysql"       // MySQL driver for GORM
	"gorm.io/driver/postgres"    // PostgreSQL driver for GORM
	"gorm.io/driver/sqlite"      // SQLite driver for GORM, used by tests and local runs
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/logger"
)

// Open connects to the configured database.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return OpenDialect(cfg.DBDriver, cfg.DSN())
}

// OpenDialect connects with an explicit driver name and DSN.
func OpenDialect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true, // Unique violations surface as gorm.ErrDuplicatedKey
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite allows one writer; a single connection keeps in-memory databases shared.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}
