package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                    = "VERDANT"
	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultDatabasePath          = "verdant.db"
	defaultLogLevel              = "info"
	defaultTokenTTLMinutes       = 30
	defaultGeocodeURL            = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL           = "https://api.open-meteo.com/v1/forecast"
	defaultWeatherTimeoutSeconds = 10
	defaultAssistantModel        = "gemini-1.5-pro"
	defaultAssistantLanguage     = "en"
	defaultInferenceModel        = "gemini-2.5-flash"
)

// AppConfig captures runtime configuration for the API server and jobs.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	SigningSecret     string
	TokenTTL          time.Duration
	GeocodeURL        string
	ForecastURL       string
	WeatherTimeout    time.Duration
	AssistantAPIKey   string
	AssistantModel    string
	AssistantLanguage string
	InferenceAPIKey   string
	InferenceModel    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("weather.geocode_url", defaultGeocodeURL)
	configViper.SetDefault("weather.forecast_url", defaultForecastURL)
	configViper.SetDefault("weather.timeout_seconds", defaultWeatherTimeoutSeconds)
	configViper.SetDefault("assistant.model", defaultAssistantModel)
	configViper.SetDefault("assistant.language", defaultAssistantLanguage)
	configViper.SetDefault("inference.model", defaultInferenceModel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		TokenTTL:          time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		GeocodeURL:        configViper.GetString("weather.geocode_url"),
		ForecastURL:       configViper.GetString("weather.forecast_url"),
		WeatherTimeout:    time.Duration(configViper.GetInt("weather.timeout_seconds")) * time.Second,
		AssistantAPIKey:   configViper.GetString("assistant.api_key"),
		AssistantModel:    configViper.GetString("assistant.model"),
		AssistantLanguage: configViper.GetString("assistant.language"),
		InferenceAPIKey:   configViper.GetString("inference.api_key"),
		InferenceModel:    configViper.GetString("inference.model"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.GeocodeURL) == "" || strings.TrimSpace(c.ForecastURL) == "" {
		return fmt.Errorf("weather provider URLs are required")
	}
	return nil
}
