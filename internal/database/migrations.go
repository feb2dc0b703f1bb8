package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillTipQuality     = "2026-06-18_backfill_tip_source_quality"
	migrationNormalizeReminderTypes = "2026-07-02_normalize_reminder_types"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTipQuality, apply: backfillTipSourceQuality},
		{name: migrationNormalizeReminderTypes, apply: normalizeReminderTypes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before source quality was stored carry a zero; retrieval treats
// quality as a multiplier, so they would never surface. Restore the default.
func backfillTipSourceQuality(db *gorm.DB) error {
	return db.Model(&assistant.ExpertTip{}).
		Where("source_quality <= 0").
		Update("source_quality", assistant.DefaultTipQuality).Error
}

// Early clients wrote reminder types with mixed case.
func normalizeReminderTypes(db *gorm.DB) error {
	return db.Exec("UPDATE reminders SET type = lower(type) WHERE type <> lower(type);").Error
}
