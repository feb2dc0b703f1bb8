package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultWindowDays is the trailing window scoring uses unless told otherwise.
const DefaultWindowDays = 30

const (
	opServiceNew      = "health.service.new"
	opComputeAndStore = "health.compute_and_store"
	opLatestSnapshot  = "health.latest_snapshot"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingPlantStore = errors.New("plant store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNoSnapshot indicates no health snapshot exists yet for the plant.
	ErrNoSnapshot = errors.New("health: no snapshot for plant")
)

// ServiceError carries an operation-coded failure from the health service.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of the health scoring service.
type ServiceConfig struct {
	Database   *gorm.DB
	Plants     *plants.Store
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service computes and persists plant health snapshots.
type Service struct {
	db         *gorm.DB
	plants     *plants.Store
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the health service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Plants == nil {
		return nil, newServiceError(opServiceNew, "missing_plant_store", errMissingPlantStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		plants:     cfg.Plants,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ComputeComponents evaluates the five subscores for the plant over a trailing
// window anchored at now.
func (s *Service) ComputeComponents(ctx context.Context, plant plants.Plant, windowDays int, now time.Time) (Components, error) {
	userID := plants.UserID(plant.UserID)
	plantID := plants.PlantID(plant.PlantID)
	since := now.AddDate(0, 0, -windowDays)

	wateringCount, err := s.plants.CountCareLogsMatching(ctx, userID, plantID, since, "water")
	if err != nil {
		return Components{}, newServiceError(opComputeAndStore, "watering_count_failed", err)
	}
	fertilizingCount, err := s.plants.CountCareLogsMatching(ctx, userID, plantID, since, "fertiliz")
	if err != nil {
		return Components{}, newServiceError(opComputeAndStore, "fertilizing_count_failed", err)
	}
	predictions, err := s.plants.ListCompletedPredictions(ctx, userID, plantID, since)
	if err != nil {
		return Components{}, newServiceError(opComputeAndStore, "predictions_query_failed", err)
	}
	reminders, err := s.plants.ListReminders(ctx, userID, plantID)
	if err != nil {
		return Components{}, newServiceError(opComputeAndStore, "reminders_query_failed", err)
	}

	return Components{
		Watering:    WateringSubscore(windowDays, plant.EffectiveWateringInterval(), wateringCount),
		Fertilizing: FertilizingSubscore(windowDays, fertilizingCount),
		Disease:     DiseaseSubscore(predictions, now),
		Growth:      GrowthSubscore(predictions, plant.HasImage()),
		Missed:      MissedSubscore(reminders, windowDays, now),
	}, nil
}

// ComputeAndStore computes the plant's health score and persists an immutable
// snapshot. Each call appends a new snapshot; identical inputs at the same
// instant yield identical scores but distinct rows.
func (s *Service) ComputeAndStore(ctx context.Context, plantID plants.PlantID, windowDays int) (Snapshot, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	plant, err := s.plants.Get(ctx, plantID)
	if err != nil {
		if errors.Is(err, plants.ErrPlantNotFound) {
			return Snapshot{}, err
		}
		return Snapshot{}, newServiceError(opComputeAndStore, "plant_load_failed", err)
	}

	now := s.clock().UTC()
	components, err := s.ComputeComponents(ctx, plant, windowDays, now)
	if err != nil {
		return Snapshot{}, err
	}

	score := ComputeScore(components)
	explanation, err := BuildExplanation(components)
	if err != nil {
		return Snapshot{}, newServiceError(opComputeAndStore, "explanation_encode_failed", err)
	}

	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		return Snapshot{}, newServiceError(opComputeAndStore, "id_generation_failed", err)
	}

	snapshot := Snapshot{
		SnapshotID:          snapshotID,
		PlantID:             plant.PlantID,
		UserID:              plant.UserID,
		Score:               score,
		WindowDays:          windowDays,
		WateringSubscore:    components.Watering,
		FertilizingSubscore: components.Fertilizing,
		DiseaseSubscore:     components.Disease,
		GrowthSubscore:      components.Growth,
		MissedSubscore:      components.Missed,
		Version:             EngineVersion,
		ExplanationJSON:     explanation,
		ComputedAt:          now,
	}

	if err := s.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		s.logger.Error("health snapshot insert failed",
			zap.String("operation", opComputeAndStore),
			zap.String("plant_id", plant.PlantID),
			zap.Error(err))
		return Snapshot{}, newServiceError(opComputeAndStore, "snapshot_insert_failed", err)
	}

	s.logger.Info("health snapshot stored",
		zap.String("plant_id", plant.PlantID),
		zap.Int("score", score),
		zap.Int("window_days", windowDays))

	return snapshot, nil
}

// LatestSnapshot returns the most recent snapshot for an owned plant.
func (s *Service) LatestSnapshot(ctx context.Context, userID plants.UserID, plantID plants.PlantID) (Snapshot, error) {
	var snapshot Snapshot
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND plant_id = ?", userID.String(), plantID.String()).
		Order("computed_at DESC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, newServiceError(opLatestSnapshot, "query_failed", err)
	}
	return snapshot, nil
}
