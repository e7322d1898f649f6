package database

import (
	"errors"
	"fmt"

	"playbook/internal/config"
	"playbook/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema and promotes the configured admin
// account if it already exists.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Trade{},
		&models.InteractionRecord{},
		&models.Comment{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// The admin account is designated by email in config. The user may not
	// have signed up yet; promotion also happens at signup time.
	if cfg.Auth.AdminEmail != "" {
		var admin models.User
		err := db.Where("email = ?", cfg.Auth.AdminEmail).First(&admin).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Nothing to promote yet.
		case err != nil:
			return fmt.Errorf("failed to look up admin account: %w", err)
		case admin.Role != models.RoleAdmin:
			if err := db.Model(&admin).Update("role", models.RoleAdmin).Error; err != nil {
				return fmt.Errorf("failed to promote admin account: %w", err)
			}
		}
	}

	return nil
}
