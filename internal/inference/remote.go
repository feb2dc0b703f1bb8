package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// RemoteModelVersion tags classifications produced by the vision provider.
	RemoteModelVersion = "gemini_vision_v1"

	defaultVisionBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultVisionModel   = "gemini-2.5-flash"

	visionTimeout     = 35 * time.Second
	visionTemperature = 0.2
	visionTopP        = 0.9
	visionMaxTokens   = 2048

	fallbackConfidence = 0.6
	fallbackTreatment  = "Inspect plant, isolate if needed, and monitor closely."
)

// ErrRemoteUnavailable indicates the vision provider could not produce a
// usable classification; callers should fall back to the local heuristic.
var ErrRemoteUnavailable = errors.New("inference: remote classification unavailable")

// ClassifierConfig configures the image classifier.
type ClassifierConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Language   string
	HTTPClient *http.Client
}

// Classifier analyzes plant images, preferring the remote provider.
type Classifier struct {
	apiKey     string
	model      string
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewClassifier constructs a classifier with sane defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	model := cfg.Model
	if model == "" {
		model = defaultVisionModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultVisionBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Classifier{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   cfg.Language,
		httpClient: httpClient,
	}
}

// Classify returns the remote classification when available, otherwise the
// local heuristic. The remote path failing is never an error for the caller.
func (c *Classifier) Classify(ctx context.Context, imageBytes []byte) (Classification, error) {
	remote, err := c.classifyRemote(ctx, imageBytes)
	if err == nil {
		return remote, nil
	}
	return ClassifyHeuristic(imageBytes)
}

var (
	jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	jsonBracePattern = regexp.MustCompile(`(?s)(\{.*\})`)
)

// extractJSON pulls a JSON object out of the provider's free-form text,
// tolerating code fences and surrounding prose.
func extractJSON(text string) map[string]interface{} {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}

	if match := jsonFencePattern.FindStringSubmatch(raw); match != nil {
		raw = match[1]
	} else if match := jsonBracePattern.FindStringSubmatch(raw); match != nil {
		raw = match[1]
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed
}

type visionRequestPayload struct {
	Contents []struct {
		Parts []map[string]interface{} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		TopP            float64 `json:"topP"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type visionResponsePayload struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Classifier) classifyRemote(ctx context.Context, imageBytes []byte) (Classification, error) {
	if c.apiKey == "" {
		return Classification{}, ErrRemoteUnavailable
	}

	languageInstruction := ""
	switch c.language {
	case "he":
		languageInstruction = "IMPORTANT: Provide disease_name and treatment_recommendation fields in Hebrew language. "
	case "en":
		languageInstruction = "IMPORTANT: Provide disease_name and treatment_recommendation fields in English language. "
	}

	prompt := "You are a plant disease analysis assistant. " + languageInstruction +
		"Analyze the plant image and return ONLY valid JSON with fields: " +
		"disease_code, disease_name, confidence_score, treatment_recommendation, urgency_level, raw_topk. " +
		"Rules: urgency_level must be one of low, medium, high, critical. " +
		"confidence_score must be between 0 and 1. " +
		"raw_topk must be an object of up to 4 labels with probabilities summing approximately to 1."

	payload := visionRequestPayload{}
	payload.Contents = append(payload.Contents, struct {
		Parts []map[string]interface{} `json:"parts"`
	}{
		Parts: []map[string]interface{}{
			{"text": prompt},
			{"inline_data": map[string]string{
				"mime_type": "image/jpeg",
				"data":      base64.StdEncoding.EncodeToString(imageBytes),
			}},
		},
	})
	payload.GenerationConfig.Temperature = visionTemperature
	payload.GenerationConfig.TopP = visionTopP
	payload.GenerationConfig.MaxOutputTokens = visionMaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return Classification{}, ErrRemoteUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	httpRequest, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Classification{}, ErrRemoteUnavailable
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return Classification{}, ErrRemoteUnavailable
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Classification{}, ErrRemoteUnavailable
	}

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return Classification{}, ErrRemoteUnavailable
	}

	var parsed visionResponsePayload
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return Classification{}, ErrRemoteUnavailable
	}
	if len(parsed.Candidates) == 0 {
		return Classification{}, ErrRemoteUnavailable
	}

	var lines []string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != "" {
			lines = append(lines, part.Text)
		}
	}
	fields := extractJSON(strings.Join(lines, "\n"))
	if fields == nil {
		return Classification{}, ErrRemoteUnavailable
	}

	return normalizeRemote(fields), nil
}

// normalizeRemote coerces the provider's loosely-typed JSON into a valid
// classification with bounded confidence and a known urgency level.
func normalizeRemote(fields map[string]interface{}) Classification {
	diseaseCode := strings.ToLower(strings.TrimSpace(stringField(fields, "disease_code")))
	if diseaseCode == "" {
		diseaseCode = "unknown"
	}
	diseaseCode = strings.ReplaceAll(diseaseCode, " ", "_")

	diseaseName := stringField(fields, "disease_name")
	if diseaseName == "" {
		diseaseName = titleFromCode(diseaseCode)
	}

	confidence := floatField(fields, "confidence_score", fallbackConfidence)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	urgency := strings.ToLower(strings.TrimSpace(stringField(fields, "urgency_level")))
	if !isKnownUrgency(urgency) {
		urgency = UrgencyMedium
	}

	treatment := stringField(fields, "treatment_recommendation")
	if treatment == "" {
		treatment = fallbackTreatment
	}

	topK := map[string]float64{diseaseCode: confidence}
	if raw, ok := fields["raw_topk"].(map[string]interface{}); ok {
		parsed := map[string]float64{}
		for label, value := range raw {
			if probability, ok := value.(float64); ok {
				parsed[label] = probability
			}
		}
		if len(parsed) > 0 {
			topK = parsed
		}
	}

	return Classification{
		DiseaseCode:             diseaseCode,
		DiseaseName:             diseaseName,
		ConfidenceScore:         confidence,
		TreatmentRecommendation: treatment,
		UrgencyLevel:            urgency,
		ModelVersion:            RemoteModelVersion,
		RawTopK:                 topK,
	}
}

func stringField(fields map[string]interface{}, key string) string {
	if value, ok := fields[key].(string); ok {
		return value
	}
	return ""
}

func floatField(fields map[string]interface{}, key string, fallback float64) float64 {
	if value, ok := fields[key].(float64); ok {
		return value
	}
	return fallback
}

func titleFromCode(code string) string {
	words := strings.Split(strings.ReplaceAll(code, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
