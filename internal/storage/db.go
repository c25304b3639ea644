package storage

import (
	"fmt"

	"tss-custody/internal/config"
	"tss-custody/internal/logger"
	"tss-custody/internal/storage/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the orchestrator database connection.
func InitDB(cfg config.DBConfig) {
	DB = open(cfg)

	err := DB.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.TssSession{},
		&models.TssStage{},
		&models.KeyShareNode{},
		&models.WalletKSNode{},
		&models.KeyShareNodeMeta{},
	)
	if err != nil {
		logger.Log.Fatalf("Failed to auto-migrate database: %v", err)
	}
	logger.Log.Info("Database schema migrated.")
}

// InitNodeDB initializes a custodian node's local database connection.
func InitNodeDB(cfg config.DBConfig) {
	DB = open(cfg)

	if err := DB.AutoMigrate(&models.StoredShare{}); err != nil {
		logger.Log.Fatalf("Failed to auto-migrate node database: %v", err)
	}
	logger.Log.Info("Node database schema migrated.")
}

func open(cfg config.DBConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successfully established.")
	return db
}
