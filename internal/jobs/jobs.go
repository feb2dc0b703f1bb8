// Package jobs holds the bodies of the scheduled background tasks. Scheduling,
// retry, and backoff belong to the external scheduler invoking them; every job
// is safe to re-run.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/health"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opRunnerNew = "jobs.runner.new"

	expertPostSyncCap = 300

	// expertPostTipQuality is the stored quality for tips synced from posts.
	expertPostTipQuality = 0.8
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingPlantStore = errors.New("plant store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ForecastProvider is the slice of the weather client the jobs consume.
type ForecastProvider interface {
	Geocode(ctx context.Context, locationText string) (weather.Coordinates, error)
	FetchForecastSummary(ctx context.Context, latitude, longitude float64, timezoneName string) (weather.Observation, error)
}

// RunnerConfig describes the dependencies of the job runner.
type RunnerConfig struct {
	Database     *gorm.DB
	Plants       *plants.Store
	WeatherStore *weather.Store
	Forecast     ForecastProvider
	Reminders    *reminders.Service
	Health       *health.Service
	Clock        func() time.Time
	IDProvider   ids.Provider
	Logger       *zap.Logger
}

// Runner executes the background job bodies.
type Runner struct {
	db           *gorm.DB
	plants       *plants.Store
	weatherStore *weather.Store
	forecast     ForecastProvider
	reminders    *reminders.Service
	health       *health.Service
	clock        func() time.Time
	idProvider   ids.Provider
	logger       *zap.Logger
}

// NewRunner constructs the job runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opRunnerNew, errMissingDatabase)
	}
	if cfg.Plants == nil {
		return nil, fmt.Errorf("%s: %w", opRunnerNew, errMissingPlantStore)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("%s: %w", opRunnerNew, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Runner{
		db:           cfg.Database,
		plants:       cfg.Plants,
		weatherStore: cfg.WeatherStore,
		forecast:     cfg.Forecast,
		reminders:    cfg.Reminders,
		health:       cfg.Health,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
	}, nil
}

// SyncWeatherSnapshotForPlant refreshes the cached forecast for one plant,
// geocoding its location text first when coordinates are missing. Plants that
// opted out or cannot be located are skipped, not failed.
func (r *Runner) SyncWeatherSnapshotForPlant(ctx context.Context, plantID plants.PlantID) error {
	plant, err := r.plants.Get(ctx, plantID)
	if err != nil {
		return err
	}
	if !plant.WeatherOptIn {
		return nil
	}

	latitude := plant.Latitude
	longitude := plant.Longitude
	timezoneName := plant.LocationTimezone

	if latitude == nil || longitude == nil {
		coords, err := r.forecast.Geocode(ctx, plant.Location)
		if err != nil {
			if errors.Is(err, weather.ErrLocationNotFound) {
				r.logger.Info("weather sync skipped, location not resolvable",
					zap.String("plant_id", plant.PlantID))
				return nil
			}
			return err
		}
		latitude = &coords.Latitude
		longitude = &coords.Longitude
		timezoneName = coords.Timezone
		if err := r.plants.UpdateCoordinates(ctx, plantID, coords.Latitude, coords.Longitude, coords.Timezone); err != nil {
			return err
		}
	}

	observation, err := r.forecast.FetchForecastSummary(ctx, *latitude, *longitude, timezoneName)
	if err != nil {
		return err
	}

	snapshotID, err := r.idProvider.NewID()
	if err != nil {
		return err
	}

	snapshot := weather.Snapshot{
		SnapshotID:         snapshotID,
		LocationKey:        weather.BuildLocationKey(*latitude, *longitude),
		Latitude:           *latitude,
		Longitude:          *longitude,
		Timezone:           observation.Timezone,
		Next24hRainProbMax: observation.Summary.Next24hRainProbMax,
		Next24hRainMmSum:   observation.Summary.Next24hRainMmSum,
		Next48hTempMax:     observation.Summary.Next48hTempMax,
		Next48hTempMin:     observation.Summary.Next48hTempMin,
		FrostRisk:          observation.FrostRisk,
		HeatwaveRisk:       observation.HeatwaveRisk,
		Provider:           observation.Provider,
		PayloadJSON:        observation.PayloadJSON,
		ForecastAt:         observation.ForecastAt,
		ExpiresAt:          observation.ExpiresAt,
	}
	if err := r.weatherStore.Create(ctx, &snapshot); err != nil {
		return err
	}

	r.logger.Info("weather snapshot synced",
		zap.String("plant_id", plant.PlantID),
		zap.String("location_key", snapshot.LocationKey))
	return nil
}

// EvaluateSmartReminders applies the weather policy to every opted-in plant
// with a fresh snapshot. Plants without coordinates or a fresh snapshot get a
// sync attempt and are picked up on the next pass. Returns the number of
// plants processed.
func (r *Runner) EvaluateSmartReminders(ctx context.Context) (int, error) {
	optedIn, err := r.plants.ListWeatherOptedIn(ctx)
	if err != nil {
		return 0, err
	}

	now := r.clock().UTC()
	processed := 0
	for i := range optedIn {
		plant := &optedIn[i]

		if plant.Latitude == nil || plant.Longitude == nil {
			if err := r.SyncWeatherSnapshotForPlant(ctx, plants.PlantID(plant.PlantID)); err != nil {
				r.logger.Warn("weather sync failed during evaluation",
					zap.String("plant_id", plant.PlantID), zap.Error(err))
			}
			continue
		}

		locationKey := weather.BuildLocationKey(*plant.Latitude, *plant.Longitude)
		snapshot, err := r.weatherStore.LatestFresh(ctx, locationKey, now)
		if errors.Is(err, weather.ErrNoFreshSnapshot) {
			if err := r.SyncWeatherSnapshotForPlant(ctx, plants.PlantID(plant.PlantID)); err != nil {
				r.logger.Warn("weather sync failed during evaluation",
					zap.String("plant_id", plant.PlantID), zap.Error(err))
			}
			continue
		}
		if err != nil {
			return processed, err
		}

		if _, err := r.reminders.ApplyWeatherToPlantReminders(ctx, plant, &snapshot); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

// DispatchNotifications delivers pending smart events.
func (r *Runner) DispatchNotifications(ctx context.Context, limit int) (int, error) {
	return r.reminders.DispatchUnsentEvents(ctx, limit)
}

// RecomputePlantHealth refreshes the health snapshot for one plant.
func (r *Runner) RecomputePlantHealth(ctx context.Context, plantID plants.PlantID, windowDays int) (health.Snapshot, error) {
	return r.health.ComputeAndStore(ctx, plantID, windowDays)
}

// RecomputeAllHealthScores refreshes health snapshots for every plant and
// returns the number processed.
func (r *Runner) RecomputeAllHealthScores(ctx context.Context, windowDays int) (int, error) {
	var all []plants.Plant
	if err := r.db.WithContext(ctx).Find(&all).Error; err != nil {
		return 0, err
	}

	processed := 0
	for _, plant := range all {
		if _, err := r.health.ComputeAndStore(ctx, plants.PlantID(plant.PlantID), windowDays); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// SyncExpertTips mirrors expert posts into active assistant tips, creating
// missing tips and refreshing drifted content. Returns the number created.
func (r *Runner) SyncExpertTips(ctx context.Context) (int, error) {
	var posts []assistant.ExpertPost
	if err := r.db.WithContext(ctx).
		Limit(expertPostSyncCap).
		Find(&posts).Error; err != nil {
		return 0, err
	}

	created := 0
	for _, post := range posts {
		title := strings.TrimSpace(post.Title)
		content := strings.TrimSpace(post.Content)
		if title == "" || content == "" {
			continue
		}

		var tip assistant.ExpertTip
		err := r.db.WithContext(ctx).
			Where("source = ? AND title = ?", assistant.SourceExpertPost, title).
			Take(&tip).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tipID, err := r.idProvider.NewID()
			if err != nil {
				return created, err
			}
			tip = assistant.ExpertTip{
				TipID:         tipID,
				Source:        assistant.SourceExpertPost,
				Title:         title,
				Content:       content,
				TagsJSON:      `["expert_post"]`,
				SourceQuality: expertPostTipQuality,
				IsActive:      true,
			}
			if err := r.db.WithContext(ctx).Create(&tip).Error; err != nil {
				return created, err
			}
			created++
			continue
		}
		if err != nil {
			return created, err
		}

		if tip.Content != content {
			if err := r.db.WithContext(ctx).
				Model(&assistant.ExpertTip{}).
				Where("tip_id = ?", tip.TipID).
				Update("content", content).Error; err != nil {
				return created, err
			}
		}
	}

	return created, nil
}
