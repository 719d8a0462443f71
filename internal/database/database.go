// Package database opens the inventory store and keeps its schema current,
// including the notify trigger the change bridge listens on.
package database

import (
	"fmt"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/munkholm-systems/lagerpuls/internal/inventory"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open establishes a database connection for the configured driver and
// performs schema migrations. sqlite is used for local development and
// tests; postgres is the production store and additionally receives the
// change-notification trigger.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = githubsqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&inventory.Beholdning{},
		&inventory.Kategori{},
		&inventory.Lokation{},
		&inventory.Enhed{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if driver == "postgres" {
		if err := applyMigrations(db, logger); err != nil {
			return nil, err
		}
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driver))
	}

	return db, nil
}
