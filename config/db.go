package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ovalbet/bingo-engine/models"
)

// SetupDatabase connects to Postgres, runs migrations and seeds the
// singleton pool row.
func SetupDatabase(cfg *Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("config: connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the engine's tables and the pool row if missing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Round{},
		&models.Card{},
		&models.Pool{},
	); err != nil {
		return fmt.Errorf("config: migrate: %w", err)
	}
	pool := models.Pool{ID: models.PoolID}
	if err := db.FirstOrCreate(&pool, models.Pool{ID: models.PoolID}).Error; err != nil {
		return fmt.Errorf("config: seed pool: %w", err)
	}
	return nil
}
