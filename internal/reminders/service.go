package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "reminders.service.new"
	opApplyWeather = "reminders.apply_weather"
	opDispatch     = "reminders.dispatch"

	eventValidityDays  = 1
	skipPushForward    = 24 * time.Hour
	wateringTypeNeedle = "watering"

	// DefaultDispatchLimit bounds one dispatch pass.
	DefaultDispatchLimit = 200
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// notificationTitles maps smart event types to the fixed delivery titles.
var notificationTitles = map[string]string{
	EventWateringSkippedRain: "Watering skipped due to expected rain ☔",
	EventHeatwaveAlert:       "Heatwave alert for your plant 🌡️",
	EventFrostWarning:        "Frost warning for your plant ❄️",
	EventIntervalAdjusted:    "Watering interval adjusted automatically",
}

const fallbackNotificationTitle = "Smart reminder update"

// ServiceError carries an operation-coded failure from the reminders service.
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

// ServiceConfig describes the dependencies of the smart reminder service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service applies weather decisions to reminders and dispatches pending events.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the smart reminder service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
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
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ApplyWeatherToPlantReminders runs the weather decision engine for the plant
// and records the resulting interval adjustments, alerts, and reminder shifts.
// A nil snapshot or an opted-out plant is a no-op returning a nil decision.
// Multiple reminders of the same type each generate their own event.
func (s *Service) ApplyWeatherToPlantReminders(ctx context.Context, plant *plants.Plant, snapshot *weather.Snapshot) (*weather.Decision, error) {
	if snapshot == nil || !plant.WeatherOptIn {
		return nil, nil
	}

	baseInterval := plant.WateringIntervalDays
	if baseInterval <= 0 {
		baseInterval = 3
	}
	decision := weather.Evaluate(baseInterval, snapshot.Summary())
	now := s.clock().UTC()

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if plant.DynamicWateringIntervalDays != decision.RecommendedIntervalDays {
			plant.DynamicWateringIntervalDays = decision.RecommendedIntervalDays
			plant.LastWeatherAdjustedAt = &now
			if err := tx.Model(&plants.Plant{}).
				Where("plant_id = ?", plant.PlantID).
				Updates(map[string]interface{}{
					"dynamic_watering_interval_days": decision.RecommendedIntervalDays,
					"last_weather_adjusted_at":       now,
				}).Error; err != nil {
				return newServiceError(opApplyWeather, "plant_update_failed", err)
			}
			if err := s.createEvent(tx, plant, EventIntervalAdjusted, SeverityLow, decision.Reason, now); err != nil {
				return err
			}
		}

		if decision.SendHeatwave {
			if err := s.createEvent(tx, plant, EventHeatwaveAlert, SeverityHigh, decision.Reason, now); err != nil {
				return err
			}
		}
		if decision.SendFrost {
			if err := s.createEvent(tx, plant, EventFrostWarning, SeverityHigh, decision.Reason, now); err != nil {
				return err
			}
		}

		var wateringReminders []plants.Reminder
		if err := tx.Where("plant_id = ? AND user_id = ? AND LOWER(type) = ?",
			plant.PlantID, plant.UserID, wateringTypeNeedle).
			Find(&wateringReminders).Error; err != nil {
			return newServiceError(opApplyWeather, "reminder_query_failed", err)
		}

		for _, reminder := range wateringReminders {
			if decision.SkipWatering {
				if err := tx.Model(&plants.Reminder{}).
					Where("reminder_id = ?", reminder.ReminderID).
					Update("next_run", reminder.NextRun.Add(skipPushForward)).Error; err != nil {
					return newServiceError(opApplyWeather, "reminder_shift_failed", err)
				}
				if err := s.createEvent(tx, plant, EventWateringSkippedRain, SeverityMedium, decision.Reason, now); err != nil {
					return err
				}
			} else {
				if err := tx.Model(&plants.Reminder{}).
					Where("reminder_id = ?", reminder.ReminderID).
					Update("frequency_days", decision.RecommendedIntervalDays).Error; err != nil {
					return newServiceError(opApplyWeather, "reminder_update_failed", err)
				}
			}
		}

		return nil
	})
	if txErr != nil {
		s.logger.Error("weather policy application failed",
			zap.String("operation", opApplyWeather),
			zap.String("plant_id", plant.PlantID),
			zap.Error(txErr))
		return nil, txErr
	}

	return &decision, nil
}

func (s *Service) createEvent(tx *gorm.DB, plant *plants.Plant, eventType, severity, reason string, now time.Time) error {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError(opApplyWeather, "id_generation_failed", err)
	}
	event := SmartEvent{
		EventID:        eventID,
		PlantID:        plant.PlantID,
		UserID:         plant.UserID,
		EventType:      eventType,
		Severity:       severity,
		DecisionReason: reason,
		EffectiveFrom:  now,
		EffectiveTo:    now.AddDate(0, 0, eventValidityDays),
		CreatedAt:      now,
	}
	if err := tx.Create(&event).Error; err != nil {
		return newServiceError(opApplyWeather, "event_insert_failed", err)
	}
	return nil
}

type notificationData struct {
	PlantID      string `json:"plant_id"`
	SmartEventID string `json:"smart_event_id"`
	EventType    string `json:"event_type"`
}

// DispatchUnsentEvents delivers up to limit pending smart events as
// notifications and flips each to sent. Delivery is at-least-once: a crash
// between the notification insert and the flag update redelivers on the next
// pass.
func (s *Service) DispatchUnsentEvents(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultDispatchLimit
	}

	var events []SmartEvent
	if err := s.db.WithContext(ctx).
		Where("is_sent = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return 0, newServiceError(opDispatch, "event_query_failed", err)
	}

	sent := 0
	for _, event := range events {
		var plant plants.Plant
		plantName := "Your plant"
		err := s.db.WithContext(ctx).
			Where("plant_id = ?", event.PlantID).
			Take(&plant).Error
		if err == nil {
			plantName = plant.Name
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return sent, newServiceError(opDispatch, "plant_load_failed", err)
		}

		title, ok := notificationTitles[event.EventType]
		if !ok {
			title = fallbackNotificationTitle
		}

		data, err := json.Marshal(notificationData{
			PlantID:      event.PlantID,
			SmartEventID: event.EventID,
			EventType:    event.EventType,
		})
		if err != nil {
			return sent, newServiceError(opDispatch, "data_encode_failed", err)
		}

		notificationID, err := s.idProvider.NewID()
		if err != nil {
			return sent, newServiceError(opDispatch, "id_generation_failed", err)
		}

		notification := Notification{
			NotificationID: notificationID,
			UserID:         event.UserID,
			Type:           "system",
			Title:          title,
			Body:           fmt.Sprintf("%s: %s", plantName, event.DecisionReason),
			DataJSON:       string(data),
			CreatedAt:      s.clock().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
			return sent, newServiceError(opDispatch, "notification_insert_failed", err)
		}

		if err := s.db.WithContext(ctx).
			Model(&SmartEvent{}).
			Where("event_id = ?", event.EventID).
			Update("is_sent", true).Error; err != nil {
			return sent, newServiceError(opDispatch, "event_flag_failed", err)
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("smart events dispatched", zap.Int("count", sent))
	}
	return sent, nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID plants.UserID, limit int) ([]Notification, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID.String())).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var result []Notification
	if err := query.Find(&result).Error; err != nil {
		return nil, newServiceError(opDispatch, "notification_query_failed", err)
	}
	return result, nil
}
