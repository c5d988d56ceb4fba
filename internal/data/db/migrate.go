package db

import (
	"fmt"

	types "github.com/yungbote/processing-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.AllModels()...)
}

// EnsureProcessingIndexes adds Postgres-only partial indexes that gorm tags cannot express.
func EnsureProcessingIndexes(db *gorm.DB) error {
	// One open reminder per (family, step).
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_reminder_active_step_family
		ON reminder (family, processing_step_id)
		WHERE status <> 'completed';
	`).Error; err != nil {
		return fmt.Errorf("create idx_reminder_active_step_family: %w", err)
	}

	// "My reminders" pagination.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reminder_assignee_status_scheduled
		ON reminder (assigned_to, status, scheduled_for);
	`).Error; err != nil {
		return fmt.Errorf("create idx_reminder_assignee_status_scheduled: %w", err)
	}

	// Next-step selection.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processing_step_candidate_status_order
		ON processing_step (processing_candidate_id, status, step_order);
	`).Error; err != nil {
		return fmt.Errorf("create idx_processing_step_candidate_status_order: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processing_history_candidate_created
		ON processing_history (processing_candidate_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_processing_history_candidate_created: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureProcessingIndexes(s.db); err != nil {
		s.log.Error("Processing index migration failed", "error", err)
		return err
	}
	return nil
}
