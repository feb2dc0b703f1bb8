package inference

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// HeuristicModelVersion tags classifications produced offline.
const HeuristicModelVersion = "heuristic_v1"

// Color-channel thresholds and per-bucket confidences. Product-tuned fixed
// values; preserve exactly.
const (
	greenStrengthHealthy      = 14.0
	yellowBrownStrengthBlight = 35.0
	blueMeanPowderyMildew     = 135.0

	confidenceHealthy       = 0.88
	confidenceBlight        = 0.79
	confidencePowderyMildew = 0.73
	confidenceLeafSpot      = 0.69
)

var heuristicTopK = map[string]map[string]float64{
	"healthy": {
		"healthy":        0.88,
		"leaf_spot":      0.06,
		"powdery_mildew": 0.04,
		"blight":         0.02,
	},
	"blight": {
		"blight":         0.79,
		"leaf_spot":      0.11,
		"powdery_mildew": 0.06,
		"healthy":        0.04,
	},
	"powdery_mildew": {
		"powdery_mildew": 0.73,
		"leaf_spot":      0.16,
		"healthy":        0.07,
		"blight":         0.04,
	},
	"leaf_spot": {
		"leaf_spot":      0.69,
		"powdery_mildew": 0.15,
		"blight":         0.10,
		"healthy":        0.06,
	},
}

// ClassifyHeuristic buckets the image by mean-channel color statistics. It is
// the offline fallback when the remote vision provider is unavailable.
func ClassifyHeuristic(imageBytes []byte) (Classification, error) {
	decoded, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return Classification{}, err
	}

	redMean, greenMean, blueMean := channelMeans(decoded)

	greenStrength := greenMean - (redMean+blueMean)/2.0
	yellowBrownStrength := (redMean+greenMean)/2.0 - blueMean

	var diseaseCode string
	var confidence float64
	switch {
	case greenStrength > greenStrengthHealthy:
		diseaseCode = "healthy"
		confidence = confidenceHealthy
	case yellowBrownStrength > yellowBrownStrengthBlight:
		diseaseCode = "blight"
		confidence = confidenceBlight
	case blueMean > blueMeanPowderyMildew:
		diseaseCode = "powdery_mildew"
		confidence = confidencePowderyMildew
	default:
		diseaseCode = "leaf_spot"
		confidence = confidenceLeafSpot
	}

	profile := defaultDiseases[diseaseCode]
	return Classification{
		DiseaseCode:             diseaseCode,
		DiseaseName:             profile.displayName,
		ConfidenceScore:         confidence,
		TreatmentRecommendation: profile.treatment,
		UrgencyLevel:            profile.urgency,
		ModelVersion:            HeuristicModelVersion,
		RawTopK:                 heuristicTopK[diseaseCode],
	}, nil
}

// channelMeans computes the per-channel mean over every pixel, scaled to the
// 0-255 range.
func channelMeans(decoded image.Image) (float64, float64, float64) {
	bounds := decoded.Bounds()
	var redSum, greenSum, blueSum float64
	var count float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			redSum += float64(r >> 8)
			greenSum += float64(g >> 8)
			blueSum += float64(b >> 8)
			count++
		}
	}

	if count == 0 {
		return 0, 0, 0
	}
	return redSum / count, greenSum / count, blueSum / count
}
