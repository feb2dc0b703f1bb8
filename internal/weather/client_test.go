package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGeocodeResolvesTopResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") != "1" {
			t.Errorf("expected count=1, got %q", r.URL.Query().Get("count"))
		}
		if r.URL.Query().Get("name") != "Tel Aviv" {
			t.Errorf("unexpected name query: %q", r.URL.Query().Get("name"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"latitude":32.0853,"longitude":34.7818,"timezone":"Asia/Jerusalem"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{GeocodeURL: server.URL})
	coords, err := client.Geocode(context.Background(), "Tel Aviv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coords.Latitude != 32.0853 || coords.Longitude != 34.7818 {
		t.Fatalf("unexpected coordinates: %+v", coords)
	}
	if coords.Timezone != "Asia/Jerusalem" {
		t.Fatalf("unexpected timezone: %q", coords.Timezone)
	}
}

func TestGeocodeReturnsNotFoundForEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{GeocodeURL: server.URL})
	if _, err := client.Geocode(context.Background(), "Nowhere"); err != ErrLocationNotFound {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
}

func TestGeocodeRejectsEmptyText(t *testing.T) {
	client := NewClient(ClientConfig{})
	if _, err := client.Geocode(context.Background(), ""); err != ErrLocationNotFound {
		t.Fatalf("expected ErrLocationNotFound for empty text, got %v", err)
	}
}

func TestFetchForecastSummaryCondensesDailySeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("forecast_days") != "3" {
			t.Errorf("expected forecast_days=3, got %q", r.URL.Query().Get("forecast_days"))
		}
		w.Write([]byte(`{
			"timezone": "Asia/Jerusalem",
			"daily": {
				"temperature_2m_max": [30.0, 36.5, 25.0],
				"temperature_2m_min": [18.0, 1.5, 12.0],
				"precipitation_sum": [4.2, 0.0, 1.0],
				"precipitation_probability_max": [80, 10, 20]
			}
		}`))
	}))
	defer server.Close()

	fixedNow := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	client := NewClient(ClientConfig{
		ForecastURL: server.URL,
		Clock:       func() time.Time { return fixedNow },
	})

	observation, err := client.FetchForecastSummary(context.Background(), 32.08, 34.78, "Asia/Jerusalem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary := observation.Summary
	if summary.Next24hRainProbMax != 0.8 {
		t.Fatalf("expected rain probability 0.8, got %v", summary.Next24hRainProbMax)
	}
	if summary.Next24hRainMmSum != 4.2 {
		t.Fatalf("expected day-0 rain 4.2mm, got %v", summary.Next24hRainMmSum)
	}
	if summary.Next48hTempMax != 36.5 {
		t.Fatalf("expected 2-day max 36.5, got %v", summary.Next48hTempMax)
	}
	if summary.Next48hTempMin != 1.5 {
		t.Fatalf("expected 2-day min 1.5, got %v", summary.Next48hTempMin)
	}

	if !observation.HeatwaveRisk {
		t.Fatalf("expected heatwave risk at 36.5")
	}
	if !observation.FrostRisk {
		t.Fatalf("expected frost risk at 1.5")
	}
	if observation.Provider != ProviderOpenMeteo {
		t.Fatalf("unexpected provider: %q", observation.Provider)
	}
	if !observation.ForecastAt.Equal(fixedNow) {
		t.Fatalf("expected forecast time %v, got %v", fixedNow, observation.ForecastAt)
	}
	if !observation.ExpiresAt.Equal(fixedNow.Add(SnapshotTTL)) {
		t.Fatalf("expected expiry %v after forecast, got %v", SnapshotTTL, observation.ExpiresAt)
	}
	if observation.PayloadJSON == "" {
		t.Fatalf("expected raw payload to be preserved")
	}
}

func TestFetchForecastSummaryIgnoresThirdDayTemperatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"daily": {
				"temperature_2m_max": [20.0, 22.0, 45.0],
				"temperature_2m_min": [10.0, 11.0, -10.0],
				"precipitation_sum": [0.0],
				"precipitation_probability_max": [0]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ForecastURL: server.URL})
	observation, err := client.FetchForecastSummary(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observation.Summary.Next48hTempMax != 22.0 {
		t.Fatalf("expected day-3 extremes excluded, got max %v", observation.Summary.Next48hTempMax)
	}
	if observation.Summary.Next48hTempMin != 10.0 {
		t.Fatalf("expected day-3 extremes excluded, got min %v", observation.Summary.Next48hTempMin)
	}
	if observation.Timezone != "UTC" {
		t.Fatalf("expected UTC fallback timezone, got %q", observation.Timezone)
	}
}

func TestFetchForecastSummaryPropagatesProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ForecastURL: server.URL})
	if _, err := client.FetchForecastSummary(context.Background(), 0, 0, ""); err == nil {
		t.Fatalf("expected error on provider failure")
	}
}
