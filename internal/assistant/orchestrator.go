package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MarcoPoloResearchLab/verdant/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/verdant/backend/internal/plants"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "assistant.service.new"
	opRunTurn    = "assistant.run_turn"
	opSession    = "assistant.session"

	contextPlantLimit = 10
	chunkLogTextLimit = 1000

	confidenceBase         = 0.55
	confidencePerRetrieval = 0.1
	confidenceRetrievalCap = 0.35
	confidenceFollowUpCost = 0.1
	blockedTurnConfidence  = 0.0
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingPlantStore = errors.New("plant store is required")
	errMissingRetriever  = errors.New("retriever is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrSessionNotFound indicates the session does not exist or belongs to
	// another user.
	ErrSessionNotFound = errors.New("assistant: session not found")
)

// ServiceError carries an operation-coded failure from the assistant service.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of the assistant orchestrator.
// Remote is optional: when absent or failing, the template strategy answers.
type ServiceConfig struct {
	Database   *gorm.DB
	Plants     *plants.Store
	Retriever  *Retriever
	Remote     Generator
	Template   Generator
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
	Language   string
}

// Service runs the per-turn assistant pipeline: safety check, context build,
// retrieval, generation, post-validation, and audit logging.
type Service struct {
	db         *gorm.DB
	plants     *plants.Store
	retriever  *Retriever
	remote     Generator
	template   Generator
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
	language   string
}

// NewService constructs the assistant orchestrator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Plants == nil {
		return nil, newServiceError(opServiceNew, "missing_plant_store", errMissingPlantStore)
	}
	if cfg.Retriever == nil {
		return nil, newServiceError(opServiceNew, "missing_retriever", errMissingRetriever)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	template := cfg.Template
	if template == nil {
		template = NewTemplateGenerator()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	return &Service{
		db:         cfg.Database,
		plants:     cfg.Plants,
		retriever:  cfg.Retriever,
		remote:     cfg.Remote,
		template:   template,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		language:   language,
	}, nil
}

// RetrievedSummary is the caller-facing view of one evidence item.
type RetrievedSummary struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// TurnResult is the JSON-shaped outcome of one assistant turn.
type TurnResult struct {
	Answer            string             `json:"answer"`
	FollowUpQuestions []string           `json:"follow_up_questions"`
	SafetyFlags       []string           `json:"safety_flags"`
	Confidence        float64            `json:"confidence"`
	Blocked           bool               `json:"blocked"`
	Retrieved         []RetrievedSummary `json:"retrieved,omitempty"`
	ModelName         string             `json:"-"`
}

// CreateSession opens a new conversation for the user.
func (s *Service) CreateSession(ctx context.Context, userID plants.UserID, title string) (Session, error) {
	sessionID, err := s.idProvider.NewID()
	if err != nil {
		return Session{}, newServiceError(opSession, "id_generation_failed", err)
	}
	session := Session{
		SessionID: sessionID,
		UserID:    userID.String(),
		Title:     title,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return Session{}, newServiceError(opSession, "session_insert_failed", err)
	}
	return session, nil
}

// GetSession loads a session owned by the user.
func (s *Service) GetSession(ctx context.Context, userID plants.UserID, sessionID string) (Session, error) {
	var session Session
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID.String()).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, newServiceError(opSession, "session_query_failed", err)
	}
	return session, nil
}

// RunTurn executes the assistant pipeline for one user message. External
// generation failures are recovered via the template strategy and never
// surface to the caller; only persistence failures return an error.
func (s *Service) RunTurn(ctx context.Context, session Session, userMessage string, plantID string) (TurnResult, error) {
	started := s.clock()

	verdict := ClassifySafety(userMessage)
	if verdict.Blocked {
		return s.finishBlockedTurn(ctx, session, userMessage, verdict, started)
	}

	userContext, err := s.buildUserContext(ctx, plants.UserID(session.UserID), plantID)
	if err != nil {
		return TurnResult{}, newServiceError(opRunTurn, "context_build_failed", err)
	}

	retrieved, err := s.retriever.Retrieve(ctx, userMessage, DefaultTopK)
	if err != nil {
		return TurnResult{}, newServiceError(opRunTurn, "retrieval_failed", err)
	}

	followUps := FollowUpQuestions(userMessage, userContext)
	contextBlock := BuildContextBlock(userContext, retrieved)

	request := GenerateRequest{
		UserMessage:  userMessage,
		ContextBlock: contextBlock,
		UserContext:  userContext,
		Retrieved:    retrieved,
		FollowUps:    followUps,
		Language:     s.language,
	}

	answer, modelName := s.generateAnswer(ctx, request)

	validation := PostValidateResponse(answer)
	auditedFlags := []string{}
	if !validation.OK {
		auditedFlags = validation.Flags
		answer = PostValidationFallback
	}

	confidence := computeConfidence(len(retrieved), len(followUps))

	if err := s.logTurn(ctx, session, userMessage, answer, followUps, retrieved, auditedFlags, confidence, modelName, started); err != nil {
		return TurnResult{}, err
	}

	summaries := make([]RetrievedSummary, 0, len(retrieved))
	for _, item := range retrieved {
		summaries = append(summaries, RetrievedSummary{Title: item.Title, Score: item.Score})
	}

	return TurnResult{
		Answer:            answer,
		FollowUpQuestions: followUps,
		SafetyFlags:       auditedFlags,
		Confidence:        confidence,
		Retrieved:         summaries,
		ModelName:         modelName,
	}, nil
}

// generateAnswer tries the remote strategy when configured and falls back to
// the deterministic template on any failure.
func (s *Service) generateAnswer(ctx context.Context, request GenerateRequest) (string, string) {
	if s.remote != nil {
		answer, err := s.remote.Generate(ctx, request)
		if err == nil && answer != "" {
			return answer, ModelNameRemote
		}
		if err != nil && !errors.Is(err, ErrMissingAPIKey) {
			s.logger.Warn("remote generation failed, using template fallback", zap.Error(err))
		}
	}

	answer, err := s.template.Generate(ctx, request)
	if err != nil {
		// The template strategy is total; treat a failure as a bug but
		// still answer safely.
		s.logger.Error("template generation failed", zap.Error(err))
		return PostValidationFallback, ModelNameTemplate
	}
	return answer, ModelNameTemplate
}

func (s *Service) buildUserContext(ctx context.Context, userID plants.UserID, plantID string) (UserContext, error) {
	owned, err := s.plants.ListForUser(ctx, userID, plantID, contextPlantLimit)
	if err != nil {
		return UserContext{}, err
	}

	userContext := UserContext{}
	for _, plant := range owned {
		userContext.Plants = append(userContext.Plants, PlantContext{
			ID:                   plant.PlantID,
			Name:                 plant.Name,
			Category:             plant.Category,
			WateringIntervalDays: plant.EffectiveWateringInterval(),
		})
	}
	return userContext, nil
}

func (s *Service) finishBlockedTurn(ctx context.Context, session Session, userMessage string, verdict SafetyVerdict, started time.Time) (TurnResult, error) {
	if err := s.logTurn(ctx, session, userMessage, SafeResponse, nil, nil, verdict.Flags, blockedTurnConfidence, ModelNameTemplate, started); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{
		Answer:            SafeResponse,
		FollowUpQuestions: []string{},
		SafetyFlags:       verdict.Flags,
		Confidence:        blockedTurnConfidence,
		Blocked:           true,
		ModelName:         ModelNameTemplate,
	}, nil
}

type assistantMessageMetadata struct {
	Flags             []string `json:"flags,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	RetrievalCount    int      `json:"retrieval_count"`
}

// logTurn persists the user message, assistant message, retrieval logs, and
// the audit row for one turn.
func (s *Service) logTurn(ctx context.Context, session Session, userMessage, answer string, followUps []string, retrieved []RetrievedItem, flags []string, confidence float64, modelName string, started time.Time) error {
	now := s.clock().UTC()
	latencyMs := s.clock().Sub(started).Milliseconds()

	metadata, err := json.Marshal(assistantMessageMetadata{
		Flags:             flags,
		FollowUpQuestions: followUps,
		RetrievalCount:    len(retrieved),
	})
	if err != nil {
		return newServiceError(opRunTurn, "metadata_encode_failed", err)
	}

	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return newServiceError(opRunTurn, "flags_encode_failed", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userMessageID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRunTurn, "id_generation_failed", err)
		}
		if err := tx.Create(&Message{
			MessageID: userMessageID,
			SessionID: session.SessionID,
			Role:      RoleUser,
			Content:   userMessage,
			CreatedAt: now,
		}).Error; err != nil {
			return newServiceError(opRunTurn, "user_message_insert_failed", err)
		}

		assistantMessageID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRunTurn, "id_generation_failed", err)
		}
		if err := tx.Create(&Message{
			MessageID:    assistantMessageID,
			SessionID:    session.SessionID,
			Role:         RoleAssistant,
			Content:      answer,
			MetadataJSON: string(metadata),
			CreatedAt:    now,
		}).Error; err != nil {
			return newServiceError(opRunTurn, "assistant_message_insert_failed", err)
		}

		for _, item := range retrieved {
			chunkLogID, err := s.idProvider.NewID()
			if err != nil {
				return newServiceError(opRunTurn, "id_generation_failed", err)
			}
			if err := tx.Create(&RetrievedChunkLog{
				ChunkLogID: chunkLogID,
				SessionID:  session.SessionID,
				Source:     item.Source,
				Score:      item.Score,
				ChunkText:  truncate(item.Content, chunkLogTextLimit),
				CreatedAt:  now,
			}).Error; err != nil {
				return newServiceError(opRunTurn, "chunk_log_insert_failed", err)
			}
		}

		auditID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opRunTurn, "id_generation_failed", err)
		}
		if err := tx.Create(&AdviceAudit{
			AuditID:           auditID,
			SessionID:         session.SessionID,
			UserMessage:       userMessage,
			AssistantResponse: answer,
			SafetyFlagsJSON:   string(flagsJSON),
			RetrievalCount:    len(retrieved),
			Confidence:        confidence,
			ModelName:         modelName,
			LatencyMs:         latencyMs,
			CreatedAt:         now,
		}).Error; err != nil {
			return newServiceError(opRunTurn, "audit_insert_failed", err)
		}

		return nil
	})
}

// computeConfidence is the turn confidence heuristic: a base lifted by
// retrieval volume and reduced when clarifying questions remain.
func computeConfidence(retrievedCount, followUpCount int) float64 {
	confidence := confidenceBase + math.Min(confidenceRetrievalCap, confidencePerRetrieval*float64(retrievedCount))
	if followUpCount > 0 {
		confidence -= confidenceFollowUpCost
	}
	return math.Max(0.0, math.Min(1.0, confidence))
}
