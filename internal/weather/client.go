package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultHTTPTimeout = 10 * time.Second

	forecastDays   = 3
	dailyVariables = "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max"
)

// ErrLocationNotFound indicates the geocoder returned no match for the text.
var ErrLocationNotFound = errors.New("weather: location not found")

// Coordinates is a resolved geographic location.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Observation bundles the derived forecast summary with provider metadata.
type Observation struct {
	Summary      ForecastSummary
	Timezone     string
	Provider     string
	PayloadJSON  string
	FrostRisk    bool
	HeatwaveRisk bool
	ForecastAt   time.Time
	ExpiresAt    time.Time
}

// ClientConfig configures the forecast provider client.
type ClientConfig struct {
	GeocodeURL  string
	ForecastURL string
	HTTPClient  *http.Client
	Clock       func() time.Time
}

// Client talks to the Open-Meteo geocoding and forecast endpoints.
type Client struct {
	geocodeURL  string
	forecastURL string
	httpClient  *http.Client
	clock       func() time.Time
}

// NewClient constructs a forecast client with sane defaults.
func NewClient(cfg ClientConfig) *Client {
	geocodeURL := cfg.GeocodeURL
	if geocodeURL == "" {
		geocodeURL = defaultGeocodeURL
	}
	forecastURL := cfg.ForecastURL
	if forecastURL == "" {
		forecastURL = defaultForecastURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Client{
		geocodeURL:  geocodeURL,
		forecastURL: forecastURL,
		httpClient:  httpClient,
		clock:       clock,
	}
}

type geocodePayload struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Geocode resolves free-form location text to coordinates and a timezone.
func (c *Client) Geocode(ctx context.Context, locationText string) (Coordinates, error) {
	if locationText == "" {
		return Coordinates{}, ErrLocationNotFound
	}

	params := url.Values{}
	params.Set("name", locationText)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	body, err := c.get(ctx, c.geocodeURL, params)
	if err != nil {
		return Coordinates{}, err
	}

	var payload geocodePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Coordinates{}, fmt.Errorf("weather: decode geocode payload: %w", err)
	}
	if len(payload.Results) == 0 {
		return Coordinates{}, ErrLocationNotFound
	}

	top := payload.Results[0]
	tz := top.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return Coordinates{Latitude: top.Latitude, Longitude: top.Longitude, Timezone: tz}, nil
}

type forecastPayload struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		TemperatureMax       []*float64 `json:"temperature_2m_max"`
		TemperatureMin       []*float64 `json:"temperature_2m_min"`
		PrecipitationSum     []*float64 `json:"precipitation_sum"`
		PrecipitationProbMax []*float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// FetchForecastSummary retrieves the 3-day forecast and condenses it into the
// rain/temperature metrics the decision engine consumes.
func (c *Client) FetchForecastSummary(ctx context.Context, latitude, longitude float64, timezoneName string) (Observation, error) {
	if timezoneName == "" {
		timezoneName = "auto"
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	params.Set("timezone", timezoneName)
	params.Set("forecast_days", strconv.Itoa(forecastDays))
	params.Set("daily", dailyVariables)

	body, err := c.get(ctx, c.forecastURL, params)
	if err != nil {
		return Observation{}, err
	}

	var payload forecastPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Observation{}, fmt.Errorf("weather: decode forecast payload: %w", err)
	}

	summary := summarizeDaily(payload)

	tz := payload.Timezone
	if tz == "" {
		tz = timezoneName
	}
	if tz == "" || tz == "auto" {
		tz = "UTC"
	}

	now := c.clock().UTC()
	return Observation{
		Summary:      summary,
		Timezone:     tz,
		Provider:     ProviderOpenMeteo,
		PayloadJSON:  string(body),
		FrostRisk:    summary.Next48hTempMin <= frostCelsius,
		HeatwaveRisk: summary.Next48hTempMax >= heatwaveCelsius,
		ForecastAt:   now,
		ExpiresAt:    now.Add(SnapshotTTL),
	}, nil
}

// summarizeDaily reduces the daily series to day-0 rain metrics and 2-day
// temperature extremes. Missing values fall back to zero.
func summarizeDaily(payload forecastPayload) ForecastSummary {
	daily := payload.Daily

	summary := ForecastSummary{}
	if len(daily.PrecipitationSum) >= 1 && daily.PrecipitationSum[0] != nil {
		summary.Next24hRainMmSum = *daily.PrecipitationSum[0]
	}
	if len(daily.PrecipitationProbMax) >= 1 && daily.PrecipitationProbMax[0] != nil {
		summary.Next24hRainProbMax = *daily.PrecipitationProbMax[0] / 100.0
	}

	maxSet := false
	for _, value := range truncateDays(daily.TemperatureMax) {
		if value == nil {
			continue
		}
		if !maxSet || *value > summary.Next48hTempMax {
			summary.Next48hTempMax = *value
			maxSet = true
		}
	}

	minSet := false
	for _, value := range truncateDays(daily.TemperatureMin) {
		if value == nil {
			continue
		}
		if !minSet || *value < summary.Next48hTempMin {
			summary.Next48hTempMin = *value
			minSet = true
		}
	}

	return summary
}

func truncateDays(values []*float64) []*float64 {
	if len(values) > 2 {
		return values[:2]
	}
	return values
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: provider returned status %d", response.StatusCode)
	}

	return io.ReadAll(response.Body)
}
