package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sync-engine/internal/models"
)

// Connect opens the postgres connection and tunes the pool.
func Connect(databaseURL, environment string, log *zap.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if environment == "development" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database connected")
	return db, nil
}

// Migrate runs auto-migration for all engine models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.PlatformConnection{},
		&models.Product{},
		&models.ProductVariant{},
		&models.ProductImage{},
		&models.InventoryLevel{},
		&models.PlatformProductMapping{},
		&models.ActivityLog{},
	)
}
