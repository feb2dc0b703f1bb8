// Package inference classifies plant images into disease buckets, preferring a
// remote vision model and falling back to a local color heuristic when the
// provider is unavailable.
package inference

// Urgency levels a classification may carry.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// Classification is the structured outcome of analyzing one plant image.
type Classification struct {
	DiseaseCode             string
	DiseaseName             string
	ConfidenceScore         float64
	TreatmentRecommendation string
	UrgencyLevel            string
	ModelVersion            string
	RawTopK                 map[string]float64
}

type diseaseProfile struct {
	displayName string
	treatment   string
	urgency     string
}

// defaultDiseases carries the display names, treatments, and urgencies for
// the classes the heuristic can emit.
var defaultDiseases = map[string]diseaseProfile{
	"healthy": {
		displayName: "Healthy",
		treatment:   "No treatment needed. Continue regular watering, pruning, and monitoring.",
		urgency:     UrgencyLow,
	},
	"leaf_spot": {
		displayName: "Leaf Spot",
		treatment:   "Remove affected leaves, improve airflow, avoid overhead watering, and apply a copper-based fungicide if spread continues.",
		urgency:     UrgencyMedium,
	},
	"blight": {
		displayName: "Blight",
		treatment:   "Isolate the plant, remove infected tissue, sanitize tools, and apply targeted fungicide according to label guidance.",
		urgency:     UrgencyHigh,
	},
	"powdery_mildew": {
		displayName: "Powdery Mildew",
		treatment:   "Increase ventilation, reduce humidity, remove affected leaves, and apply sulfur or potassium bicarbonate treatment.",
		urgency:     UrgencyMedium,
	},
}

func isKnownUrgency(level string) bool {
	switch level {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	default:
		return false
	}
}
