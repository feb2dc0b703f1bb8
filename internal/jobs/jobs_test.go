package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/health"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var jobsTestTime = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

type jobsIDGenerator struct {
	next int
}

func (g *jobsIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("jobs-id-%d", g.next), nil
}

type stubForecastProvider struct {
	coordinates   weather.Coordinates
	geocodeErr    error
	observation   weather.Observation
	forecastErr   error
	geocodeCalls  int
	forecastCalls int
}

func (s *stubForecastProvider) Geocode(_ context.Context, _ string) (weather.Coordinates, error) {
	s.geocodeCalls++
	return s.coordinates, s.geocodeErr
}

func (s *stubForecastProvider) FetchForecastSummary(_ context.Context, _, _ float64, _ string) (weather.Observation, error) {
	s.forecastCalls++
	return s.observation, s.forecastErr
}

func newTestRunner(t *testing.T, forecast ForecastProvider) (*Runner, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:verdant_jobs_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&plants.Plant{}, &plants.CareLog{}, &plants.Reminder{}, &plants.Prediction{},
		&health.Snapshot{}, &weather.Snapshot{},
		&reminders.SmartEvent{}, &reminders.Notification{},
		&assistant.ExpertTip{}, &assistant.ExpertPost{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return jobsTestTime }
	idProvider := &jobsIDGenerator{}

	plantStore, err := plants.NewStore(plants.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct plant store: %v", err)
	}
	weatherStore, err := weather.NewStore(weather.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct weather store: %v", err)
	}
	reminderService, err := reminders.NewService(reminders.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to construct reminder service: %v", err)
	}
	healthService, err := health.NewService(health.ServiceConfig{
		Database:   db,
		Plants:     plantStore,
		Clock:      clock,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to construct health service: %v", err)
	}

	runner, err := NewRunner(RunnerConfig{
		Database:     db,
		Plants:       plantStore,
		WeatherStore: weatherStore,
		Forecast:     forecast,
		Reminders:    reminderService,
		Health:       healthService,
		Clock:        clock,
		IDProvider:   idProvider,
	})
	if err != nil {
		t.Fatalf("failed to construct runner: %v", err)
	}
	return runner, db
}

func floatPointer(value float64) *float64 {
	return &value
}

func testObservation() weather.Observation {
	return weather.Observation{
		Timezone: "Asia/Jerusalem",
		Summary: weather.ForecastSummary{
			Next24hRainProbMax: 0.75,
			Next24hRainMmSum:   5.0,
			Next48hTempMax:     22.0,
			Next48hTempMin:     12.0,
		},
		Provider:   weather.ProviderOpenMeteo,
		ForecastAt: jobsTestTime,
		ExpiresAt:  jobsTestTime.Add(weather.SnapshotTTL),
	}
}

func TestSyncWeatherSnapshotForPlantWithCoordinates(t *testing.T) {
	forecast := &stubForecastProvider{observation: testObservation()}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:       "plant-1",
		UserID:        "user-1",
		Name:          "Basil",
		Latitude:      floatPointer(32.0853),
		Longitude:     floatPointer(34.7818),
		WeatherOptIn:  true,
		LastWateredAt: &jobsTestTime,
		CreatedAt:     jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}

	if err := runner.SyncWeatherSnapshotForPlant(context.Background(), "plant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forecast.geocodeCalls != 0 {
		t.Fatalf("expected no geocode call when coordinates are stored")
	}

	var snapshot weather.Snapshot
	if err := db.Take(&snapshot).Error; err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if snapshot.LocationKey != "32.09:34.78" {
		t.Fatalf("unexpected location key %q", snapshot.LocationKey)
	}
	if snapshot.Next24hRainProbMax != 0.75 {
		t.Fatalf("unexpected rain probability %v", snapshot.Next24hRainProbMax)
	}
}

func TestSyncWeatherSnapshotSkipsOptedOutPlant(t *testing.T) {
	forecast := &stubForecastProvider{observation: testObservation()}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:   "plant-1",
		UserID:    "user-1",
		Name:      "Basil",
		Latitude:  floatPointer(32.0853),
		Longitude: floatPointer(34.7818),
		CreatedAt: jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}

	if err := runner.SyncWeatherSnapshotForPlant(context.Background(), "plant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forecast.forecastCalls != 0 {
		t.Fatalf("expected no forecast call for opted-out plant")
	}

	var count int64
	if err := db.Model(&weather.Snapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshots, got %d", count)
	}
}

func TestSyncWeatherSnapshotGeocodesMissingCoordinates(t *testing.T) {
	forecast := &stubForecastProvider{
		coordinates: weather.Coordinates{Latitude: 32.0853, Longitude: 34.7818, Timezone: "Asia/Jerusalem"},
		observation: testObservation(),
	}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:      "plant-1",
		UserID:       "user-1",
		Name:         "Basil",
		Location:     "Tel Aviv",
		WeatherOptIn: true,
		CreatedAt:    jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}

	if err := runner.SyncWeatherSnapshotForPlant(context.Background(), "plant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forecast.geocodeCalls != 1 {
		t.Fatalf("expected one geocode call, got %d", forecast.geocodeCalls)
	}

	var updated plants.Plant
	if err := db.Take(&updated, "plant_id = ?", "plant-1").Error; err != nil {
		t.Fatalf("failed to reload plant: %v", err)
	}
	if updated.Latitude == nil || *updated.Latitude != 32.0853 {
		t.Fatalf("expected coordinates persisted, got %v", updated.Latitude)
	}
	if updated.LocationTimezone != "Asia/Jerusalem" {
		t.Fatalf("expected timezone persisted, got %q", updated.LocationTimezone)
	}
}

func TestSyncWeatherSnapshotSkipsUnresolvableLocation(t *testing.T) {
	forecast := &stubForecastProvider{geocodeErr: weather.ErrLocationNotFound}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:      "plant-1",
		UserID:       "user-1",
		Name:         "Basil",
		Location:     "nowhere in particular",
		WeatherOptIn: true,
		CreatedAt:    jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}

	if err := runner.SyncWeatherSnapshotForPlant(context.Background(), "plant-1"); err != nil {
		t.Fatalf("expected skip, got error: %v", err)
	}

	var count int64
	if err := db.Model(&weather.Snapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshots, got %d", count)
	}
}

func TestEvaluateSmartRemindersProcessesFreshSnapshots(t *testing.T) {
	forecast := &stubForecastProvider{observation: testObservation()}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:              "plant-1",
		UserID:               "user-1",
		Name:                 "Basil",
		Latitude:             floatPointer(32.0853),
		Longitude:            floatPointer(34.7818),
		WateringIntervalDays: 3,
		WeatherOptIn:         true,
		LastWateredAt:        &jobsTestTime,
		CreatedAt:            jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}
	snapshot := weather.Snapshot{
		SnapshotID:         "snap-1",
		LocationKey:        weather.BuildLocationKey(32.0853, 34.7818),
		Latitude:           32.0853,
		Longitude:          34.7818,
		Next24hRainProbMax: 0.75,
		Next24hRainMmSum:   5.0,
		Next48hTempMax:     22.0,
		Next48hTempMin:     12.0,
		ForecastAt:         jobsTestTime,
		ExpiresAt:          jobsTestTime.Add(weather.SnapshotTTL),
	}
	if err := db.Create(&snapshot).Error; err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}

	processed, err := runner.EvaluateSmartReminders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected one plant processed, got %d", processed)
	}

	var events int64
	if err := db.Model(&reminders.SmartEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if events == 0 {
		t.Fatalf("expected smart events for rainy forecast")
	}
}

func TestEvaluateSmartRemindersSyncsStalePlants(t *testing.T) {
	forecast := &stubForecastProvider{observation: testObservation()}
	runner, db := newTestRunner(t, forecast)

	plant := plants.Plant{
		PlantID:      "plant-1",
		UserID:       "user-1",
		Name:         "Basil",
		Latitude:     floatPointer(32.0853),
		Longitude:    floatPointer(34.7818),
		WeatherOptIn: true,
		CreatedAt:    jobsTestTime,
	}
	if err := db.Create(&plant).Error; err != nil {
		t.Fatalf("failed to seed plant: %v", err)
	}

	processed, err := runner.EvaluateSmartReminders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The plant is synced this pass and evaluated on the next one.
	if processed != 0 {
		t.Fatalf("expected zero processed on sync pass, got %d", processed)
	}
	if forecast.forecastCalls != 1 {
		t.Fatalf("expected inline sync, got %d forecast calls", forecast.forecastCalls)
	}

	var snapshots int64
	if err := db.Model(&weather.Snapshot{}).Count(&snapshots).Error; err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if snapshots != 1 {
		t.Fatalf("expected one snapshot after sync, got %d", snapshots)
	}

	processed, err = runner.EvaluateSmartReminders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected one plant processed on second pass, got %d", processed)
	}
}

func TestSyncExpertTipsCreatesAndRefreshes(t *testing.T) {
	runner, db := newTestRunner(t, nil)

	posts := []assistant.ExpertPost{
		{PostID: "post-1", Title: "Basil watering guide", Content: "Keep soil lightly moist.", CreatedAt: jobsTestTime},
		{PostID: "post-2", Title: "  ", Content: "orphaned content", CreatedAt: jobsTestTime},
	}
	for i := range posts {
		if err := db.Create(&posts[i]).Error; err != nil {
			t.Fatalf("failed to seed post: %v", err)
		}
	}

	created, err := runner.SyncExpertTips(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one tip created, got %d", created)
	}

	var tip assistant.ExpertTip
	if err := db.Take(&tip).Error; err != nil {
		t.Fatalf("failed to load tip: %v", err)
	}
	if tip.Source != assistant.SourceExpertPost {
		t.Fatalf("unexpected source %q", tip.Source)
	}
	if tip.SourceQuality != expertPostTipQuality {
		t.Fatalf("unexpected quality %v", tip.SourceQuality)
	}
	if !tip.IsActive {
		t.Fatalf("expected active tip")
	}

	// Re-running creates nothing but refreshes drifted content.
	if err := db.Model(&assistant.ExpertPost{}).
		Where("post_id = ?", "post-1").
		Update("content", "Keep soil lightly moist and mulch in summer.").Error; err != nil {
		t.Fatalf("failed to update post: %v", err)
	}
	created, err = runner.SyncExpertTips(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no new tips, got %d", created)
	}
	if err := db.Take(&tip, "tip_id = ?", tip.TipID).Error; err != nil {
		t.Fatalf("failed to reload tip: %v", err)
	}
	if tip.Content != "Keep soil lightly moist and mulch in summer." {
		t.Fatalf("expected refreshed content, got %q", tip.Content)
	}
}

func TestRecomputeAllHealthScores(t *testing.T) {
	runner, db := newTestRunner(t, nil)

	for i := 1; i <= 2; i++ {
		plant := plants.Plant{
			PlantID:              fmt.Sprintf("plant-%d", i),
			UserID:               "user-1",
			Name:                 fmt.Sprintf("Plant %d", i),
			WateringIntervalDays: 3,
			CreatedAt:            jobsTestTime.AddDate(0, -2, 0),
		}
		if err := db.Create(&plant).Error; err != nil {
			t.Fatalf("failed to seed plant: %v", err)
		}
	}

	processed, err := runner.RecomputeAllHealthScores(context.Background(), health.DefaultWindowDays)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected two plants processed, got %d", processed)
	}

	var snapshots int64
	if err := db.Model(&health.Snapshot{}).Count(&snapshots).Error; err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if snapshots != 2 {
		t.Fatalf("expected two snapshots, got %d", snapshots)
	}
}
