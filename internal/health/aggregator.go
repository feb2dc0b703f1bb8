package health

import (
	"math"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
)

const (
	// epsilon guards the divisions in ratio-shaped subscores.
	epsilon = 1e-6

	// diseaseDecayDays controls how quickly old adverse predictions stop
	// counting. Product-tuned; keep in sync with the scoring version tag.
	diseaseDecayDays = 14.0

	fertilizingExpectedIntervalDays = 30.0

	growthBase   = 0.3
	growthSpread = 0.7

	neutralGrowthWithImage    = 0.6
	neutralGrowthWithoutImage = 0.5

	missedGraceHours = 24
)

// severityByUrgency maps prediction urgency levels to penalty weights.
// Unrecognized levels fall back to the low weight.
var severityByUrgency = map[string]float64{
	"low":      0.2,
	"medium":   0.5,
	"high":     0.8,
	"critical": 1.0,
}

func clamp01(value float64) float64 {
	return math.Max(0.0, math.Min(1.0, value))
}

// WateringSubscore compares the observed watering count over the window with
// the count the effective interval predicts. 1.0 means exactly on schedule.
func WateringSubscore(windowDays int, effectiveIntervalDays int, actualCount int64) float64 {
	interval := effectiveIntervalDays
	if interval < 1 {
		interval = 1
	}
	expected := math.Max(1.0, float64(windowDays)/float64(interval))
	actual := float64(actualCount)
	return clamp01(1.0 - math.Abs(actual-expected)/(expected+epsilon))
}

// FertilizingSubscore compares observed fertilizing events against a monthly
// expectation.
func FertilizingSubscore(windowDays int, actualCount int64) float64 {
	expected := math.Max(1.0, float64(windowDays)/fertilizingExpectedIntervalDays)
	actual := float64(actualCount)
	return clamp01(1.0 - math.Abs(actual-expected)/(expected+epsilon))
}

// DiseaseSubscore sums exponentially-decayed severity penalties over completed
// predictions inside the window. Older adverse predictions count less.
func DiseaseSubscore(predictions []plants.Prediction, now time.Time) float64 {
	penalty := 0.0
	for _, prediction := range predictions {
		severity, ok := severityByUrgency[normalizeUrgency(prediction.UrgencyLevel)]
		if !ok {
			severity = severityByUrgency["low"]
		}
		daysOld := math.Max(0.0, now.Sub(prediction.CreatedAt).Hours()/24.0)
		penalty += severity * math.Exp(-daysOld/diseaseDecayDays)
	}
	return clamp01(1.0 - math.Min(1.0, penalty))
}

func normalizeUrgency(level string) string {
	if level == "" {
		return "low"
	}
	return strings.ToLower(level)
}

// GrowthSubscore derives a growth outlook from the healthy share of completed
// predictions. With no predictions the score is a neutral prior, slightly
// higher when an image exists.
func GrowthSubscore(predictions []plants.Prediction, hasImage bool) float64 {
	if len(predictions) == 0 {
		if hasImage {
			return neutralGrowthWithImage
		}
		return neutralGrowthWithoutImage
	}

	healthy := 0
	for _, prediction := range predictions {
		if prediction.DiseaseCode == plants.DiseaseCodeHealthy {
			healthy++
		}
	}
	healthyRatio := float64(healthy) / float64(len(predictions))
	return clamp01(growthBase + growthSpread*healthyRatio)
}

// MissedSubscore compares overdue reminders against the number of scheduled
// occurrences the window implies. No reminders means nothing can be missed.
func MissedSubscore(reminders []plants.Reminder, windowDays int, now time.Time) float64 {
	if len(reminders) == 0 {
		return 1.0
	}

	scheduled := 0.0
	missed := 0.0
	grace := time.Duration(missedGraceHours) * time.Hour
	for _, reminder := range reminders {
		frequency := reminder.FrequencyDays
		if frequency < 1 {
			frequency = 1
		}
		scheduled += math.Max(1.0, float64(windowDays)/float64(frequency))
		if reminder.NextRun.Before(now.Add(-grace)) {
			missed += 1.0
		}
	}

	return clamp01(1.0 - math.Min(1.0, missed/(scheduled+epsilon)))
}
