package health

import "time"

// Snapshot is an immutable, versioned record of a computed health score.
// Created only by the scoring engine and never mutated.
type Snapshot struct {
	SnapshotID          string    `gorm:"column:snapshot_id;primaryKey;size:190;not null"`
	PlantID             string    `gorm:"column:plant_id;size:190;not null;index:idx_health_plant_computed,priority:1"`
	UserID              string    `gorm:"column:user_id;size:190;not null"`
	Score               int       `gorm:"column:score;not null"`
	WindowDays          int       `gorm:"column:window_days;not null"`
	WateringSubscore    float64   `gorm:"column:watering_subscore;not null"`
	FertilizingSubscore float64   `gorm:"column:fertilizing_subscore;not null"`
	DiseaseSubscore     float64   `gorm:"column:disease_subscore;not null"`
	GrowthSubscore      float64   `gorm:"column:growth_subscore;not null"`
	MissedSubscore      float64   `gorm:"column:missed_subscore;not null"`
	Version             string    `gorm:"column:version;size:32;not null"`
	ExplanationJSON     string    `gorm:"column:explanation_json;type:text;not null;default:''"`
	ComputedAt          time.Time `gorm:"column:computed_at;not null;index:idx_health_plant_computed,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "plant_health_snapshots"
}
