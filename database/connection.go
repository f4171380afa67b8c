package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ananth-NQI/chatdesk-backend/internal/config"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

const defaultSQLitePath = "chatdesk.db"

// Connect opens the configured store and migrates its schema. The returned
// close func releases the connection pool and is safe to call for every
// driver.
func Connect(cfg *config.Config) (storage.Store, func() error, error) {
	if cfg.DBDriver == "memory" {
		logger.Warn("⚠️  Using in-memory storage (not for production!)")
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}

	db, err := Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewDatabaseStore(db)
	logger.Info("🔄 Running database migrations...")
	if err := store.AutoMigrate(); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("✅ Database migrations completed")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return store, sqlDB.Close, nil
}

// Open connects GORM to postgres or sqlite
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	logger.Info("✅ Database connected", zap.String("driver", driver))
	return db, nil
}
