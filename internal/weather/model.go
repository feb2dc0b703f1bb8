package weather

import (
	"fmt"
	"time"
)

// SnapshotTTL bounds how long a forecast snapshot stays servable.
const SnapshotTTL = 6 * time.Hour

// ProviderOpenMeteo names the forecast provider backing snapshots.
const ProviderOpenMeteo = "open-meteo"

// Snapshot is a cached forecast summary keyed by rounded coordinates.
type Snapshot struct {
	SnapshotID         string    `gorm:"column:snapshot_id;primaryKey;size:190;not null"`
	LocationKey        string    `gorm:"column:location_key;size:64;not null;index:idx_weather_location_forecast,priority:1"`
	Latitude           float64   `gorm:"column:latitude;not null"`
	Longitude          float64   `gorm:"column:longitude;not null"`
	Timezone           string    `gorm:"column:timezone;size:64;not null;default:''"`
	Next24hRainProbMax float64   `gorm:"column:next24h_rain_prob_max;not null"`
	Next24hRainMmSum   float64   `gorm:"column:next24h_rain_mm_sum;not null"`
	Next48hTempMax     float64   `gorm:"column:next48h_temp_max;not null"`
	Next48hTempMin     float64   `gorm:"column:next48h_temp_min;not null"`
	FrostRisk          bool      `gorm:"column:frost_risk;not null;default:false"`
	HeatwaveRisk       bool      `gorm:"column:heatwave_risk;not null;default:false"`
	Provider           string    `gorm:"column:provider;size:32;not null;default:''"`
	PayloadJSON        string    `gorm:"column:payload_json;type:text;not null;default:''"`
	ForecastAt         time.Time `gorm:"column:forecast_at;not null;index:idx_weather_location_forecast,priority:2"`
	ExpiresAt          time.Time `gorm:"column:expires_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "weather_snapshots"
}

// Summary projects the snapshot onto the decision engine input.
func (s Snapshot) Summary() ForecastSummary {
	return ForecastSummary{
		Next24hRainProbMax: s.Next24hRainProbMax,
		Next24hRainMmSum:   s.Next24hRainMmSum,
		Next48hTempMax:     s.Next48hTempMax,
		Next48hTempMin:     s.Next48hTempMin,
	}
}

// BuildLocationKey rounds coordinates to two decimals so nearby plants share
// one cached forecast.
func BuildLocationKey(latitude, longitude float64) string {
	return fmt.Sprintf("%.2f:%.2f", latitude, longitude)
}
