package database

import (
	"fmt"

	"github.com/andrepetsch/secret-library/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Invitation{},
		&models.Media{},
		&models.MediaFile{},
		&models.Tag{},
		&models.MediaTag{},
		&models.Collection{},
		&models.CollectionMedia{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
