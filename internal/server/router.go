package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/health"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/weather"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "verdant_principal"

const (
	notificationsPageLimit = 50

	// maxPredictionImageBytes bounds uploaded plant photos.
	maxPredictionImageBytes = 8 << 20
)

var (
	errMissingTokenValidator   = errors.New("token validator dependency required")
	errMissingHealthService    = errors.New("health service dependency required")
	errMissingAssistantService = errors.New("assistant service dependency required")
	errMissingReminderService  = errors.New("reminder service dependency required")
	errMissingWeatherStore     = errors.New("weather store dependency required")
	errMissingPlantStore       = errors.New("plant store dependency required")
	errMissingClassifier       = errors.New("image classifier dependency required")
	errMissingIDProvider       = errors.New("id provider dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// ImageClassifier analyzes a plant photo into a disease classification.
type ImageClassifier interface {
	Classify(ctx context.Context, imageBytes []byte) (inference.Classification, error)
}

// TokenValidator authenticates bearer tokens into principals.
type TokenValidator interface {
	ValidateToken(token string) (auth.Principal, error)
}

type Dependencies struct {
	TokenValidator   TokenValidator
	HealthService    *health.Service
	AssistantService *assistant.Service
	ReminderService  *reminders.Service
	WeatherStore     *weather.Store
	PlantStore       *plants.Store
	Classifier       ImageClassifier
	IDProvider       ids.Provider
	Clock            func() time.Time
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.HealthService == nil {
		return nil, errMissingHealthService
	}
	if deps.AssistantService == nil {
		return nil, errMissingAssistantService
	}
	if deps.ReminderService == nil {
		return nil, errMissingReminderService
	}
	if deps.WeatherStore == nil {
		return nil, errMissingWeatherStore
	}
	if deps.PlantStore == nil {
		return nil, errMissingPlantStore
	}
	if deps.Classifier == nil {
		return nil, errMissingClassifier
	}
	if deps.IDProvider == nil {
		return nil, errMissingIDProvider
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.TokenValidator,
		health:     deps.HealthService,
		assistant:  deps.AssistantService,
		reminders:  deps.ReminderService,
		weather:    deps.WeatherStore,
		plants:     deps.PlantStore,
		classifier: deps.Classifier,
		ids:        deps.IDProvider,
		clock:      clock,
		logger:     logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/assistant/chat", handler.handleAssistantChat)
	protected.GET("/plants/:plant_id/health", handler.handleHealthGet)
	protected.POST("/plants/:plant_id/health/recompute", handler.handleHealthRecompute)
	protected.POST("/plants/:plant_id/predictions", handler.handlePredictionCreate)
	protected.GET("/weather/decision", handler.handleWeatherDecision)
	protected.GET("/notifications", handler.handleNotificationsList)
	protected.POST("/admin/notifications/dispatch", handler.handleAdminDispatch)

	return router, nil
}

type httpHandler struct {
	tokens     TokenValidator
	health     *health.Service
	assistant  *assistant.Service
	reminders  *reminders.Service
	weather    *weather.Store
	plants     *plants.Store
	classifier ImageClassifier
	ids        ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func (h *httpHandler) requestPrincipal(c *gin.Context) (auth.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	principal, ok := value.(auth.Principal)
	return principal, ok
}

type chatRequestPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	PlantID   string `json:"plant_id"`
}

type chatResponsePayload struct {
	SessionID string `json:"session_id"`
	assistant.TurnResult
}

func (h *httpHandler) handleAssistantChat(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := plants.NewUserID(principal.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var session assistant.Session
	if request.SessionID == "" {
		session, err = h.assistant.CreateSession(c.Request.Context(), userID, "")
		if err != nil {
			h.logger.Error("failed to create assistant session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session_create_failed"})
			return
		}
	} else {
		session, err = h.assistant.GetSession(c.Request.Context(), userID, request.SessionID)
		if errors.Is(err, assistant.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		if err != nil {
			h.logger.Error("failed to load assistant session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session_load_failed"})
			return
		}
	}

	result, err := h.assistant.RunTurn(c.Request.Context(), session, request.Message, request.PlantID)
	if err != nil {
		h.logger.Error("assistant turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "turn_failed"})
		return
	}

	c.JSON(http.StatusOK, chatResponsePayload{SessionID: session.SessionID, TurnResult: result})
}

type healthSnapshotPayload struct {
	PlantID    string             `json:"plant_id"`
	Score      int                `json:"score"`
	WindowDays int                `json:"window_days"`
	Components map[string]float64 `json:"components"`
	Version    string             `json:"version"`
	ComputedAt time.Time          `json:"computed_at"`
}

func snapshotPayload(snapshot health.Snapshot) healthSnapshotPayload {
	return healthSnapshotPayload{
		PlantID:    snapshot.PlantID,
		Score:      snapshot.Score,
		WindowDays: snapshot.WindowDays,
		Components: map[string]float64{
			"watering":    snapshot.WateringSubscore,
			"fertilizing": snapshot.FertilizingSubscore,
			"disease":     snapshot.DiseaseSubscore,
			"growth":      snapshot.GrowthSubscore,
			"missed":      snapshot.MissedSubscore,
		},
		Version:    snapshot.Version,
		ComputedAt: snapshot.ComputedAt,
	}
}

func (h *httpHandler) handleHealthGet(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := plants.NewUserID(principal.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	plantID, err := plants.NewPlantID(c.Param("plant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plant_id"})
		return
	}

	snapshot, err := h.health.LatestSnapshot(c.Request.Context(), userID, plantID)
	if errors.Is(err, health.ErrNoSnapshot) || errors.Is(err, plants.ErrPlantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load health snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "health_load_failed"})
		return
	}

	c.JSON(http.StatusOK, snapshotPayload(snapshot))
}

func (h *httpHandler) handleHealthRecompute(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := plants.NewUserID(principal.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	plantID, err := plants.NewPlantID(c.Param("plant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plant_id"})
		return
	}

	windowDays := health.DefaultWindowDays
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window_days"})
			return
		}
		windowDays = parsed
	}

	snapshot, err := h.health.ComputeAndStore(c.Request.Context(), plantID, windowDays)
	if errors.Is(err, plants.ErrPlantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to recompute health score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "health_recompute_failed"})
		return
	}
	if snapshot.UserID != userID.String() {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, snapshotPayload(snapshot))
}

type predictionPayload struct {
	PredictionID            string    `json:"prediction_id"`
	PlantID                 string    `json:"plant_id"`
	Status                  string    `json:"status"`
	DiseaseCode             string    `json:"disease_code"`
	DiseaseName             string    `json:"disease_name"`
	ConfidenceScore         float64   `json:"confidence_score"`
	UrgencyLevel            string    `json:"urgency_level"`
	TreatmentRecommendation string    `json:"treatment_recommendation"`
	ModelVersion            string    `json:"model_version"`
	CreatedAt               time.Time `json:"created_at"`
}

func (h *httpHandler) handlePredictionCreate(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := plants.NewUserID(principal.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	plantID, err := plants.NewPlantID(c.Param("plant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plant_id"})
		return
	}

	plant, err := h.plants.GetOwned(c.Request.Context(), userID, plantID)
	if errors.Is(err, plants.ErrPlantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load plant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "plant_load_failed"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil || fileHeader.Size > maxPredictionImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}
	defer file.Close()
	imageBytes, err := io.ReadAll(io.LimitReader(file, maxPredictionImageBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}

	classification, err := h.classifier.Classify(c.Request.Context(), imageBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_image"})
		return
	}

	predictionID, err := h.ids.NewID()
	if err != nil {
		h.logger.Error("failed to generate prediction id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction_failed"})
		return
	}
	topKJSON, err := json.Marshal(classification.RawTopK)
	if err != nil {
		topKJSON = []byte("{}")
	}

	prediction := plants.Prediction{
		PredictionID:            predictionID,
		UserID:                  plant.UserID,
		PlantID:                 plant.PlantID,
		Status:                  plants.PredictionStatusDone,
		DiseaseCode:             classification.DiseaseCode,
		DiseaseName:             classification.DiseaseName,
		ConfidenceScore:         classification.ConfidenceScore,
		UrgencyLevel:            classification.UrgencyLevel,
		TreatmentRecommendation: classification.TreatmentRecommendation,
		ModelVersion:            classification.ModelVersion,
		RawTopKJSON:             string(topKJSON),
		CreatedAt:               h.clock().UTC(),
	}
	if err := h.plants.CreatePrediction(c.Request.Context(), &prediction); err != nil {
		h.logger.Error("failed to store prediction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction_failed"})
		return
	}

	c.JSON(http.StatusOK, predictionPayload{
		PredictionID:            prediction.PredictionID,
		PlantID:                 prediction.PlantID,
		Status:                  prediction.Status,
		DiseaseCode:             prediction.DiseaseCode,
		DiseaseName:             prediction.DiseaseName,
		ConfidenceScore:         prediction.ConfidenceScore,
		UrgencyLevel:            prediction.UrgencyLevel,
		TreatmentRecommendation: prediction.TreatmentRecommendation,
		ModelVersion:            prediction.ModelVersion,
		CreatedAt:               prediction.CreatedAt,
	})
}

type weatherDecisionPayload struct {
	SkipWatering            bool   `json:"skip_watering"`
	SendHeatwave            bool   `json:"send_heatwave"`
	SendFrost               bool   `json:"send_frost"`
	RecommendedIntervalDays int    `json:"recommended_interval_days"`
	Reason                  string `json:"reason"`
}

func (h *httpHandler) handleWeatherDecision(c *gin.Context) {
	latitude, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_lat"})
		return
	}
	longitude, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_lon"})
		return
	}
	baseInterval, err := strconv.Atoi(c.DefaultQuery("base_interval", "3"))
	if err != nil || baseInterval <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_base_interval"})
		return
	}

	locationKey := weather.BuildLocationKey(latitude, longitude)
	snapshot, err := h.weather.LatestFresh(c.Request.Context(), locationKey, h.clock().UTC())
	if errors.Is(err, weather.ErrNoFreshSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_fresh_forecast"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load weather snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "weather_load_failed"})
		return
	}

	decision := weather.Evaluate(baseInterval, snapshot.Summary())
	c.JSON(http.StatusOK, weatherDecisionPayload{
		SkipWatering:            decision.SkipWatering,
		SendHeatwave:            decision.SendHeatwave,
		SendFrost:               decision.SendFrost,
		RecommendedIntervalDays: decision.RecommendedIntervalDays,
		Reason:                  decision.Reason,
	})
}

type notificationPayload struct {
	NotificationID string    `json:"notification_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *httpHandler) handleNotificationsList(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := plants.NewUserID(principal.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	notifications, err := h.reminders.ListNotifications(c.Request.Context(), userID, notificationsPageLimit)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notifications_load_failed"})
		return
	}

	payload := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		payload = append(payload, notificationPayload{
			NotificationID: notification.NotificationID,
			Type:           notification.Type,
			Title:          notification.Title,
			Body:           notification.Body,
			CreatedAt:      notification.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": payload})
}

func (h *httpHandler) handleAdminDispatch(c *gin.Context) {
	principal, ok := h.requestPrincipal(c)
	if !ok || !principal.Can(auth.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	dispatched, err := h.reminders.DispatchUnsentEvents(c.Request.Context(), reminders.DefaultDispatchLimit)
	if err != nil {
		h.logger.Error("notification dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispatched": dispatched})
}
