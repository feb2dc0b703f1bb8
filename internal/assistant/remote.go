package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGenerateBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGenerateModel   = "gemini-1.5-pro"

	generateTimeout = 25 * time.Second
	retryTimeout    = 20 * time.Second

	generateTemperature = 0.4
	retryTemperature    = 0.3
	generateTopP        = 0.9
	generateMaxTokens   = 2048
)

var (
	// ErrMissingAPIKey indicates the remote strategy is not configured.
	ErrMissingAPIKey = errors.New("assistant: generation api key not configured")
	// ErrEmptyGeneration indicates the provider returned no usable text.
	ErrEmptyGeneration = errors.New("assistant: provider returned empty text")
)

// RemoteGeneratorConfig configures the external generative strategy.
type RemoteGeneratorConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// RemoteGenerator calls a generateContent-style text API. Any failure is
// reported as an error so the orchestrator can fall back locally.
type RemoteGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewRemoteGenerator constructs the remote strategy.
func NewRemoteGenerator(cfg RemoteGeneratorConfig) *RemoteGenerator {
	model := cfg.Model
	if model == "" {
		model = defaultGenerateModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGenerateBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RemoteGenerator{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Available reports whether the strategy can be attempted at all.
func (g *RemoteGenerator) Available() bool {
	return g.apiKey != ""
}

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequestPayload struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateResponsePayload struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the full instruction prompt, retrying once with a simplified
// prompt when the provider returns empty text.
func (g *RemoteGenerator) Generate(ctx context.Context, request GenerateRequest) (string, error) {
	if g.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	prompt := BuildPrompt(request.UserMessage, request.ContextBlock, request.Retrieved, request.FollowUps, request.Language)
	text, err := g.call(ctx, prompt, generateTemperature, generateTimeout)
	if err != nil {
		return "", err
	}
	if text != "" {
		return text, nil
	}

	simplified := "Answer this gardening question safely and clearly:\n" + request.UserMessage
	text, err = g.call(ctx, simplified, retryTemperature, retryTimeout)
	if err != nil {
		return "", ErrEmptyGeneration
	}
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func (g *RemoteGenerator) call(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	payload := generateRequestPayload{
		Contents: []generateContent{{Parts: []generatePart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			TopP:            generateTopP,
			MaxOutputTokens: generateMaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	httpRequest, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := g.httpClient.Do(httpRequest)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant: provider returned status %d", response.StatusCode)
	}

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}

	var parsed generateResponsePayload
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 {
		return "", ErrEmptyGeneration
	}

	var lines []string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != "" {
			lines = append(lines, part.Text)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
