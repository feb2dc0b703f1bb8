package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newMigrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:verdant_migrations_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&assistant.ExpertTip{}, &plants.Reminder{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestApplyMigrationsBackfillsTipQuality(t *testing.T) {
	db := newMigrationTestDB(t)

	tips := []assistant.ExpertTip{
		{TipID: "tip-zeroed", Title: "Old tip", Content: "Legacy content.", SourceQuality: 0.5, IsActive: true},
		{TipID: "tip-scored", Title: "New tip", Content: "Recent content.", SourceQuality: 0.9, IsActive: true},
	}
	for i := range tips {
		if err := db.Create(&tips[i]).Error; err != nil {
			t.Fatalf("failed to seed tip: %v", err)
		}
	}
	// The column default would swallow a zero on insert; force the legacy state.
	if err := db.Model(&assistant.ExpertTip{}).Where("tip_id = ?", "tip-zeroed").Update("source_quality", 0).Error; err != nil {
		t.Fatalf("failed to zero tip quality: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var backfilled assistant.ExpertTip
	if err := db.Take(&backfilled, "tip_id = ?", "tip-zeroed").Error; err != nil {
		t.Fatalf("failed to load tip: %v", err)
	}
	if backfilled.SourceQuality != assistant.DefaultTipQuality {
		t.Fatalf("expected default quality, got %v", backfilled.SourceQuality)
	}

	var untouched assistant.ExpertTip
	if err := db.Take(&untouched, "tip_id = ?", "tip-scored").Error; err != nil {
		t.Fatalf("failed to load tip: %v", err)
	}
	if untouched.SourceQuality != 0.9 {
		t.Fatalf("expected quality preserved, got %v", untouched.SourceQuality)
	}
}

func TestApplyMigrationsNormalizesReminderTypes(t *testing.T) {
	db := newMigrationTestDB(t)

	reminder := plants.Reminder{
		ReminderID:    "reminder-1",
		UserID:        "user-1",
		PlantID:       "plant-1",
		Type:          "Watering",
		FrequencyDays: 3,
		NextRun:       time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := db.Create(&reminder).Error; err != nil {
		t.Fatalf("failed to seed reminder: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var normalized plants.Reminder
	if err := db.Take(&normalized, "reminder_id = ?", "reminder-1").Error; err != nil {
		t.Fatalf("failed to load reminder: %v", err)
	}
	if normalized.Type != "watering" {
		t.Fatalf("expected lowered type, got %q", normalized.Type)
	}
}

func TestApplyMigrationsSkipsAppliedEntries(t *testing.T) {
	db := newMigrationTestDB(t)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var firstRun int64
	if err := db.Model(&migrationRecord{}).Count(&firstRun).Error; err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if firstRun != 2 {
		t.Fatalf("expected two applied migrations, got %d", firstRun)
	}

	// A tip zeroed after the first run keeps its zero quality: the backfill
	// must not run twice.
	tip := assistant.ExpertTip{TipID: "tip-late", Title: "Late tip", Content: "Content.", SourceQuality: 0.5, IsActive: true}
	if err := db.Create(&tip).Error; err != nil {
		t.Fatalf("failed to seed tip: %v", err)
	}
	if err := db.Model(&assistant.ExpertTip{}).Where("tip_id = ?", "tip-late").Update("source_quality", 0).Error; err != nil {
		t.Fatalf("failed to zero tip quality: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var secondRun int64
	if err := db.Model(&migrationRecord{}).Count(&secondRun).Error; err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if secondRun != 2 {
		t.Fatalf("expected no new records, got %d", secondRun)
	}

	var late assistant.ExpertTip
	if err := db.Take(&late, "tip_id = ?", "tip-late").Error; err != nil {
		t.Fatalf("failed to load tip: %v", err)
	}
	if late.SourceQuality != 0 {
		t.Fatalf("expected untouched quality, got %v", late.SourceQuality)
	}
}
