package reminders

import "time"

// Smart event types recorded by the weather policy.
const (
	EventIntervalAdjusted    = "interval_adjusted"
	EventHeatwaveAlert       = "heatwave_alert"
	EventFrostWarning        = "frost_warning"
	EventWateringSkippedRain = "watering_skipped_rain"
)

// Event severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// SmartEvent is an immutable weather-driven decision record pending delivery.
// The dispatcher flips IsSent exactly once; nothing else mutates the row.
type SmartEvent struct {
	EventID        string    `gorm:"column:event_id;primaryKey;size:190;not null"`
	PlantID        string    `gorm:"column:plant_id;size:190;not null;index:idx_smart_events_plant"`
	UserID         string    `gorm:"column:user_id;size:190;not null"`
	EventType      string    `gorm:"column:event_type;size:50;not null"`
	Severity       string    `gorm:"column:severity;size:20;not null"`
	DecisionReason string    `gorm:"column:decision_reason;size:255;not null"`
	EffectiveFrom  time.Time `gorm:"column:effective_from;not null"`
	EffectiveTo    time.Time `gorm:"column:effective_to;not null"`
	IsSent         bool      `gorm:"column:is_sent;not null;default:false;index:idx_smart_events_unsent"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SmartEvent) TableName() string {
	return "smart_reminder_events"
}

// Notification is a delivered message row. The engine treats delivery as
// fire-and-forget; creating the row is the delivery.
type Notification struct {
	NotificationID string    `gorm:"column:notification_id;primaryKey;size:190;not null"`
	UserID         string    `gorm:"column:user_id;size:190;not null;index:idx_notifications_user"`
	Type           string    `gorm:"column:type;size:50;not null"`
	Title          string    `gorm:"column:title;size:255;not null"`
	Body           string    `gorm:"column:body;type:text;not null;default:''"`
	DataJSON       string    `gorm:"column:data_json;type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}
