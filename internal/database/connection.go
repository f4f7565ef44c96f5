package database

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/thereayou/unimeet/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connect открывает базу и прогоняет AutoMigrate для всех моделей.
func Connect(driver, dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres, "":
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite не умеет FOR UPDATE: одно соединение сериализует транзакции
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
	}

	err = db.AutoMigrate(&models.User{}, &models.Event{}, &models.Registration{})
	if err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return NewDatabase(db), nil
}
