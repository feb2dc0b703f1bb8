package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/health"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&plants.Plant{},
		&plants.CareLog{},
		&plants.Reminder{},
		&plants.Prediction{},
		&health.Snapshot{},
		&weather.Snapshot{},
		&reminders.SmartEvent{},
		&reminders.Notification{},
		&assistant.Session{},
		&assistant.Message{},
		&assistant.RetrievedChunkLog{},
		&assistant.AdviceAudit{},
		&assistant.ExpertTip{},
		&assistant.ExpertPost{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
