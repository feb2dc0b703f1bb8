package plants

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidPlantID indicates that a plant identifier is empty or exceeds storage bounds.
	ErrInvalidPlantID = errors.New("plants: invalid plant id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("plants: invalid user id")
)

// PlantID represents a validated plant identifier.
type PlantID string

// NewPlantID validates raw input and returns a PlantID.
func NewPlantID(rawInput string) (PlantID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPlantID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPlantID, maxIdentifierLength)
	}
	return PlantID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PlantID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Plant models a tracked plant with its care intervals and weather settings.
// DynamicWateringIntervalDays is written only by the weather policy.
type Plant struct {
	PlantID                     string     `gorm:"column:plant_id;primaryKey;size:190;not null"`
	UserID                      string     `gorm:"column:user_id;size:190;not null;index:idx_plants_user"`
	Name                        string     `gorm:"column:name;size:100;not null"`
	Category                    string     `gorm:"column:category;size:50;not null;default:''"`
	Location                    string     `gorm:"column:location;size:100;not null;default:''"`
	Latitude                    *float64   `gorm:"column:latitude"`
	Longitude                   *float64   `gorm:"column:longitude"`
	LocationTimezone            string     `gorm:"column:location_timezone;size:64;not null;default:''"`
	ImageURL                    string     `gorm:"column:image_url;size:512;not null;default:''"`
	WateringIntervalDays        int        `gorm:"column:watering_interval_days;not null;default:3"`
	SunlightIntervalDays        int        `gorm:"column:sunlight_interval_days;not null;default:1"`
	DynamicWateringIntervalDays int        `gorm:"column:dynamic_watering_interval_days;not null;default:0"`
	WeatherOptIn                bool       `gorm:"column:weather_opt_in;not null;default:false"`
	LastWateredAt               *time.Time `gorm:"column:last_watered_at"`
	LastFertilizedAt            *time.Time `gorm:"column:last_fertilized_at"`
	LastWeatherAdjustedAt       *time.Time `gorm:"column:last_weather_adjusted_at"`
	CreatedAt                   time.Time  `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Plant) TableName() string {
	return "plants"
}

// HasImage reports whether any image is attached to the plant.
func (p Plant) HasImage() bool {
	return strings.TrimSpace(p.ImageURL) != ""
}

// EffectiveWateringInterval returns the interval the care policy should use:
// the dynamic interval when the weather policy has set one, otherwise the
// static interval, otherwise the 3-day default.
func (p Plant) EffectiveWateringInterval() int {
	if p.DynamicWateringIntervalDays > 0 {
		return p.DynamicWateringIntervalDays
	}
	if p.WateringIntervalDays > 0 {
		return p.WateringIntervalDays
	}
	return 3
}

// CareLog is an append-only care event. Rows are created and deleted, never updated.
type CareLog struct {
	CareLogID string    `gorm:"column:care_log_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_care_logs_user_plant,priority:1"`
	PlantID   string    `gorm:"column:plant_id;size:190;not null;index:idx_care_logs_user_plant,priority:2"`
	Action    string    `gorm:"column:action;size:50;not null"`
	Notes     string    `gorm:"column:notes;type:text;not null;default:''"`
	LoggedAt  time.Time `gorm:"column:logged_at;not null;index:idx_care_logs_user_plant,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (CareLog) TableName() string {
	return "care_logs"
}

// Reminder is a per-plant recurring schedule.
type Reminder struct {
	ReminderID    string    `gorm:"column:reminder_id;primaryKey;size:190;not null"`
	UserID        string    `gorm:"column:user_id;size:190;not null;index:idx_reminders_user_plant,priority:1"`
	PlantID       string    `gorm:"column:plant_id;size:190;not null;index:idx_reminders_user_plant,priority:2"`
	Type          string    `gorm:"column:type;size:50;not null"`
	FrequencyDays int       `gorm:"column:frequency_days;not null;default:1"`
	NextRun       time.Time `gorm:"column:next_run;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reminder) TableName() string {
	return "reminders"
}

// Prediction statuses.
const (
	PredictionStatusPending = "pending"
	PredictionStatusDone    = "done"
	PredictionStatusFailed  = "failed"
)

// DiseaseCodeHealthy is the classification code for a healthy plant.
const DiseaseCodeHealthy = "healthy"

// Prediction records a disease classification result for a plant image.
type Prediction struct {
	PredictionID            string    `gorm:"column:prediction_id;primaryKey;size:190;not null"`
	UserID                  string    `gorm:"column:user_id;size:190;not null;index:idx_predictions_user_plant,priority:1"`
	PlantID                 string    `gorm:"column:plant_id;size:190;not null;index:idx_predictions_user_plant,priority:2"`
	Status                  string    `gorm:"column:status;size:20;not null;default:'pending'"`
	DiseaseCode             string    `gorm:"column:disease_code;size:64;not null;default:''"`
	DiseaseName             string    `gorm:"column:disease_name;size:128;not null;default:''"`
	ConfidenceScore         float64   `gorm:"column:confidence_score;not null;default:0"`
	UrgencyLevel            string    `gorm:"column:urgency_level;size:20;not null;default:''"`
	TreatmentRecommendation string    `gorm:"column:treatment_recommendation;type:text;not null;default:''"`
	ModelVersion            string    `gorm:"column:model_version;size:64;not null;default:''"`
	RawTopKJSON             string    `gorm:"column:raw_topk_json;type:text;not null;default:''"`
	CreatedAt               time.Time `gorm:"column:created_at;not null;index:idx_predictions_user_plant,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Prediction) TableName() string {
	return "predictions"
}
