package db

import (
	"fmt"

	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Repository{},
		&models.Build{},
		&models.BuildLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// RecoverInterrupted marks builds left queued or running by a previous
// process as aborted. Called once on startup, before the scheduler accepts
// triggers; a build that was mid-flight when the server died cannot be
// resumed.
func RecoverInterrupted(db *gorm.DB) (int64, error) {
	result := db.Model(&models.Build{}).
		Where("status IN ?", []string{models.BuildQueued, models.BuildRunning}).
		Updates(map[string]interface{}{
			"status": models.BuildAborted,
			"cause":  "interrupted by server restart",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("db: recover interrupted builds: %w", result.Error)
	}
	return result.RowsAffected, nil
}
