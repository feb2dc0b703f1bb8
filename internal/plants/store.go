package plants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrPlantNotFound indicates the requested plant does not exist.
	ErrPlantNotFound = errors.New("plants: plant not found")
)

// StoreConfig describes the dependencies required by the plant store.
type StoreConfig struct {
	Database *gorm.DB
}

// Store provides owner-scoped queries over plants, care logs, reminders and predictions.
type Store struct {
	db *gorm.DB
}

// NewStore constructs the plant store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("plants: %w", errMissingDatabase)
	}
	return &Store{db: cfg.Database}, nil
}

// Get loads a plant by identifier.
func (s *Store) Get(ctx context.Context, plantID PlantID) (Plant, error) {
	var plant Plant
	err := s.db.WithContext(ctx).
		Where("plant_id = ?", plantID.String()).
		Take(&plant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Plant{}, ErrPlantNotFound
	}
	if err != nil {
		return Plant{}, err
	}
	return plant, nil
}

// GetOwned loads a plant and verifies ownership.
func (s *Store) GetOwned(ctx context.Context, userID UserID, plantID PlantID) (Plant, error) {
	plant, err := s.Get(ctx, plantID)
	if err != nil {
		return Plant{}, err
	}
	if plant.UserID != userID.String() {
		return Plant{}, ErrPlantNotFound
	}
	return plant, nil
}

// ListForUser returns up to limit plants owned by the user, newest first.
// When plantID is non-empty the result is narrowed to that single plant.
func (s *Store) ListForUser(ctx context.Context, userID UserID, plantID string, limit int) ([]Plant, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID.String())
	if plantID != "" {
		query = query.Where("plant_id = ?", plantID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var result []Plant
	if err := query.Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ListWeatherOptedIn returns every plant that opted into weather-driven care.
func (s *Store) ListWeatherOptedIn(ctx context.Context) ([]Plant, error) {
	var result []Plant
	if err := s.db.WithContext(ctx).
		Where("weather_opt_in = ?", true).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// Create persists a new plant.
func (s *Store) Create(ctx context.Context, plant *Plant) error {
	return s.db.WithContext(ctx).Create(plant).Error
}

// UpdateCoordinates stores resolved geocoding results on the plant.
func (s *Store) UpdateCoordinates(ctx context.Context, plantID PlantID, latitude, longitude float64, timezone string) error {
	return s.db.WithContext(ctx).
		Model(&Plant{}).
		Where("plant_id = ?", plantID.String()).
		Updates(map[string]interface{}{
			"latitude":          latitude,
			"longitude":         longitude,
			"location_timezone": timezone,
		}).Error
}

// CreateCareLog appends a care event. Care logs are never updated.
func (s *Store) CreateCareLog(ctx context.Context, log *CareLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// DeleteCareLog removes a care event owned by the user.
func (s *Store) DeleteCareLog(ctx context.Context, userID UserID, careLogID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND care_log_id = ?", userID.String(), careLogID).
		Delete(&CareLog{}).Error
}

// CountCareLogsMatching counts care logs for the plant since the given time
// whose action contains the provided fragment (case-insensitive).
func (s *Store) CountCareLogsMatching(ctx context.Context, userID UserID, plantID PlantID, since time.Time, actionFragment string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&CareLog{}).
		Where("user_id = ? AND plant_id = ? AND logged_at >= ?", userID.String(), plantID.String(), since).
		Where("LOWER(action) LIKE ?", "%"+actionFragment+"%").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListReminders returns every reminder attached to the plant.
func (s *Store) ListReminders(ctx context.Context, userID UserID, plantID PlantID) ([]Reminder, error) {
	var result []Reminder
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND plant_id = ?", userID.String(), plantID.String()).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// CreateReminder persists a new reminder schedule.
func (s *Store) CreateReminder(ctx context.Context, reminder *Reminder) error {
	return s.db.WithContext(ctx).Create(reminder).Error
}

// ListCompletedPredictions returns completed predictions for the plant created
// at or after the given time, newest first.
func (s *Store) ListCompletedPredictions(ctx context.Context, userID UserID, plantID PlantID, since time.Time) ([]Prediction, error) {
	var result []Prediction
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND plant_id = ? AND status = ? AND created_at >= ?",
			userID.String(), plantID.String(), PredictionStatusDone, since).
		Order("created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// CreatePrediction persists a classification result.
func (s *Store) CreatePrediction(ctx context.Context, prediction *Prediction) error {
	return s.db.WithContext(ctx).Create(prediction).Error
}
