package weather

import "fmt"

// Product-tuned decision thresholds. Preserved exactly; changing them requires
// product signoff.
const (
	rainProbSkipThreshold = 0.60
	rainMmSkipThreshold   = 2.0
	heatwaveCelsius       = 35.0
	frostCelsius          = 2.0
	intervalShrinkAtC     = 32.0
	intervalGrowAtC       = 10.0
	minIntervalDays       = 1
	maxIntervalDays       = 14
)

// ForecastSummary is the condensed forecast the decision engine consumes.
type ForecastSummary struct {
	Next24hRainProbMax float64
	Next24hRainMmSum   float64
	Next48hTempMax     float64
	Next48hTempMin     float64
}

// Decision is the watering/alert outcome for one plant.
type Decision struct {
	SkipWatering            bool
	SendHeatwave            bool
	SendFrost               bool
	RecommendedIntervalDays int
	Reason                  string
}

// Evaluate maps a forecast summary and base watering interval to a decision.
// Each rule is evaluated independently; the function is total over its domain.
func Evaluate(baseInterval int, summary ForecastSummary) Decision {
	rainProb := summary.Next24hRainProbMax
	rainMm := summary.Next24hRainMmSum
	tempMax := summary.Next48hTempMax
	tempMin := summary.Next48hTempMin

	recommended := baseInterval
	if tempMax >= intervalShrinkAtC {
		recommended = baseInterval - 1
		if recommended < minIntervalDays {
			recommended = minIntervalDays
		}
	} else if tempMax <= intervalGrowAtC {
		recommended = baseInterval + 1
		if recommended > maxIntervalDays {
			recommended = maxIntervalDays
		}
	}

	return Decision{
		SkipWatering:            rainProb >= rainProbSkipThreshold || rainMm >= rainMmSkipThreshold,
		SendHeatwave:            tempMax >= heatwaveCelsius,
		SendFrost:               tempMin <= frostCelsius,
		RecommendedIntervalDays: recommended,
		Reason:                  fmt.Sprintf("rain_prob=%.2f, rain_mm=%.2f, tmax=%.1f, tmin=%.1f", rainProb, rainMm, tempMax, tempMin),
	}
}
