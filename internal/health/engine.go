package health

import (
	"encoding/json"
	"math"
)

// EngineVersion tags snapshots with the scoring algorithm revision.
const EngineVersion = "health_v1"

// Subscore weights. They sum to 1.0; product-tuned, preserved exactly.
const (
	weightWatering    = 0.25
	weightFertilizing = 0.15
	weightDisease     = 0.25
	weightGrowth      = 0.20
	weightMissed      = 0.15
)

// Components holds the five [0,1] subscores combined into the overall score.
type Components struct {
	Watering    float64
	Fertilizing float64
	Disease     float64
	Growth      float64
	Missed      float64
}

// ComputeScore combines the weighted subscores into a 0-100 integer score.
func ComputeScore(components Components) int {
	raw := 100.0 * (components.Watering*weightWatering +
		components.Fertilizing*weightFertilizing +
		components.Disease*weightDisease +
		components.Growth*weightGrowth +
		components.Missed*weightMissed)
	return int(math.Round(math.Max(0.0, math.Min(100.0, raw))))
}

type explanationPayload struct {
	Weights    map[string]float64 `json:"weights"`
	Components map[string]float64 `json:"components"`
}

// BuildExplanation serializes the weights and 4dp-rounded subscores that
// justify a score. The payload is stored verbatim on the snapshot.
func BuildExplanation(components Components) (string, error) {
	payload := explanationPayload{
		Weights: map[string]float64{
			"watering":    weightWatering,
			"fertilizing": weightFertilizing,
			"disease":     weightDisease,
			"growth":      weightGrowth,
			"missed":      weightMissed,
		},
		Components: map[string]float64{
			"watering":    round4(components.Watering),
			"fertilizing": round4(components.Fertilizing),
			"disease":     round4(components.Disease),
			"growth":      round4(components.Growth),
			"missed":      round4(components.Missed),
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func round4(value float64) float64 {
	return math.Round(value*10000.0) / 10000.0
}
