package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/config"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/database"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/health"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/server"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "verdant-api",
		Short: "Verdant plant-care backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newJobsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().String("geocode-url", defaults.GetString("weather.geocode_url"), "Geocoding endpoint")
	cmd.PersistentFlags().String("forecast-url", defaults.GetString("weather.forecast_url"), "Forecast endpoint")
	cmd.PersistentFlags().String("assistant-language", defaults.GetString("assistant.language"), "Assistant answer language (en, he)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "weather.geocode_url", "geocode-url")
	bindFlag(cmd, "weather.forecast_url", "forecast-url")
	bindFlag(cmd, "assistant.language", "assistant-language")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// application holds the wired service graph shared by the server and jobs.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	closeDB   func() error
	plants    *plants.Store
	weather   *weather.Store
	forecast  *weather.Client
	health    *health.Service
	reminders *reminders.Service
	assistant *assistant.Service
	runner    *jobs.Runner
	tokens    *auth.TokenIssuer
	inference *inference.Classifier
}

func buildApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	idProvider := ids.NewUUIDProvider()

	plantStore, err := plants.NewStore(plants.StoreConfig{Database: db})
	if err != nil {
		return nil, err
	}
	weatherStore, err := weather.NewStore(weather.StoreConfig{Database: db})
	if err != nil {
		return nil, err
	}
	forecastClient := weather.NewClient(weather.ClientConfig{
		GeocodeURL:  appConfig.GeocodeURL,
		ForecastURL: appConfig.ForecastURL,
		HTTPClient:  &http.Client{Timeout: appConfig.WeatherTimeout},
	})

	healthService, err := health.NewService(health.ServiceConfig{
		Database:   db,
		Plants:     plantStore,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	reminderService, err := reminders.NewService(reminders.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	retriever, err := assistant.NewRetriever(assistant.RetrieverConfig{Database: db})
	if err != nil {
		return nil, err
	}
	remoteGenerator := assistant.NewRemoteGenerator(assistant.RemoteGeneratorConfig{
		APIKey: appConfig.AssistantAPIKey,
		Model:  appConfig.AssistantModel,
	})
	assistantService, err := assistant.NewService(assistant.ServiceConfig{
		Database:   db,
		Plants:     plantStore,
		Retriever:  retriever,
		Remote:     remoteGenerator,
		Template:   assistant.NewTemplateGenerator(),
		IDProvider: idProvider,
		Logger:     logger,
		Language:   appConfig.AssistantLanguage,
	})
	if err != nil {
		return nil, err
	}

	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		Database:     db,
		Plants:       plantStore,
		WeatherStore: weatherStore,
		Forecast:     forecastClient,
		Reminders:    reminderService,
		Health:       healthService,
		IDProvider:   idProvider,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "verdant-auth",
		Audience:      "verdant-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	classifier := inference.NewClassifier(inference.ClassifierConfig{
		APIKey:   appConfig.InferenceAPIKey,
		Model:    appConfig.InferenceModel,
		Language: appConfig.AssistantLanguage,
	})

	return &application{
		config:    appConfig,
		logger:    logger,
		closeDB:   sqlDB.Close,
		plants:    plantStore,
		weather:   weatherStore,
		forecast:  forecastClient,
		health:    healthService,
		reminders: reminderService,
		assistant: assistantService,
		runner:    runner,
		tokens:    tokenIssuer,
		inference: classifier,
	}, nil
}

func (a *application) Close() {
	if err := a.closeDB(); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
	a.logger.Sync() //nolint:errcheck
}

func runServer(ctx context.Context) error {
	app, err := buildApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator:   app.tokens,
		HealthService:    app.health,
		AssistantService: app.assistant,
		ReminderService:  app.reminders,
		WeatherStore:     app.weather,
		PlantStore:       app.plants,
		Classifier:       app.inference,
		IDProvider:       ids.NewUUIDProvider(),
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newJobsCommand() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run one background job and exit",
	}

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "evaluate-reminders",
		Short: "Apply the weather policy to opted-in plants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, app *application) error {
				processed, err := app.runner.EvaluateSmartReminders(ctx)
				if err != nil {
					return err
				}
				app.logger.Info("smart reminders evaluated", zap.Int("processed", processed))
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "dispatch-notifications",
		Short: "Deliver pending smart reminder events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, app *application) error {
				dispatched, err := app.runner.DispatchNotifications(ctx, reminders.DefaultDispatchLimit)
				if err != nil {
					return err
				}
				app.logger.Info("notifications dispatched", zap.Int("dispatched", dispatched))
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "recompute-health",
		Short: "Recompute health scores for every plant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, app *application) error {
				processed, err := app.runner.RecomputeAllHealthScores(ctx, health.DefaultWindowDays)
				if err != nil {
					return err
				}
				app.logger.Info("health scores recomputed", zap.Int("processed", processed))
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "sync-expert-tips",
		Short: "Mirror expert posts into assistant tips",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, app *application) error {
				created, err := app.runner.SyncExpertTips(ctx)
				if err != nil {
					return err
				}
				app.logger.Info("expert tips synced", zap.Int("created", created))
				return nil
			})
		},
	})

	syncWeatherCmd := &cobra.Command{
		Use:   "sync-weather <plant-id>",
		Short: "Refresh the weather snapshot for one plant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plantID, err := plants.NewPlantID(args[0])
			if err != nil {
				return err
			}
			return withRunner(cmd.Context(), func(ctx context.Context, app *application) error {
				return app.runner.SyncWeatherSnapshotForPlant(ctx, plantID)
			})
		},
	}
	jobsCmd.AddCommand(syncWeatherCmd)

	return jobsCmd
}

func withRunner(ctx context.Context, run func(context.Context, *application) error) error {
	app, err := buildApplication()
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}
