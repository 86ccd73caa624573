package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gptme-server/internal/completion"
	"gptme-server/internal/domain"
	"gptme-server/internal/observability"
	"gptme-server/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	titleInstruction = "Generate a short title of at most five words for a conversation that starts with the user's message. Reply with the title only."
	essayInstruction = "You are an expert essay writer. Write a well-structured essay that synthesizes the user's notes into a coherent piece with an introduction, body and conclusion."

	titleMaxTokens = 16
	titleMaxWords  = 5
)

type ChatService struct {
	chatRepo    repository.ChatRepository
	noteRepo    repository.NoteRepository
	articleRepo repository.ArticleRepository
	gateway     completion.Gateway
	models      *ModelService
	publisher   Publisher
	metrics     *observability.Collector
	tracer      trace.Tracer
	logger      *zap.Logger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	noteRepo repository.NoteRepository,
	articleRepo repository.ArticleRepository,
	gateway completion.Gateway,
	models *ModelService,
	publisher Publisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		chatRepo:    chatRepo,
		noteRepo:    noteRepo,
		articleRepo: articleRepo,
		gateway:     gateway,
		models:      models,
		publisher:   publisherOrNoop(publisher),
		metrics:     metrics,
		tracer:      otel.Tracer(observability.TracerName),
		logger:      logger,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	session := &domain.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     domain.DefaultSessionTitle,
		CreatedAt: time.Now(),
	}

	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.publisher.PublishToUser(userID, EventSessionCreated, SessionEvent{SessionID: session.ID, Title: session.Title})

	return session, nil
}

// GenerateTitle asks the model for a short title from the first message and
// stores it on the session. On failure the title is left unchanged.
func (s *ChatService) GenerateTitle(ctx context.Context, userID string, req *domain.GenerateTitleRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.GenerateTitle", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	if _, err := s.ownedSession(ctx, userID, req.SessionID, ErrSessionNotFound); err != nil {
		return "", err
	}

	model, err := s.models.Resolve(ctx, userID, req.Model)
	if err != nil {
		return "", err
	}

	raw, err := s.gateway.Complete(ctx, completion.Request{
		Model:             model.ID,
		SystemInstruction: titleInstruction,
		UserContent:       req.Message,
		MaxTokens:         titleMaxTokens,
	})
	if err != nil {
		return "", err
	}

	title := cleanTitle(raw)
	if title == "" {
		return "", completion.ErrEmptyCompletion
	}

	if err := s.chatRepo.UpdateTitle(ctx, req.SessionID, title); err != nil {
		if repository.IsNotFound(err) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to update session title: %w", err)
	}

	s.publisher.PublishToUser(userID, EventSessionTitle, SessionEvent{SessionID: req.SessionID, Title: title})
	return title, nil
}

// AppendTurn sends the user's message to the model and stores the user and
// assistant messages together. Nothing is stored when the model call fails.
func (s *ChatService) AppendTurn(ctx context.Context, userID string, req *domain.ChatRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.AppendTurn", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	if _, err := s.ownedSession(ctx, userID, req.SessionID, ErrInvalidSession); err != nil {
		return "", err
	}

	model, err := s.models.Resolve(ctx, userID, req.Model)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("completion.model", model.ID))

	reply, err := s.gateway.Complete(ctx, completion.Request{
		Model:             model.ID,
		SystemInstruction: model.Instruction,
		UserContent:       req.Message,
		MaxTokens:         model.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	now := time.Now()
	userMsg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		Role:      domain.RoleUser,
		Content:   req.Message,
		CreatedAt: now,
	}
	assistantMsg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: now,
	}

	if err := s.chatRepo.AppendMessages(ctx, req.SessionID, userMsg, assistantMsg); err != nil {
		if repository.IsNotFound(err) {
			return "", ErrInvalidSession
		}
		return "", fmt.Errorf("failed to store chat turn: %w", err)
	}

	return reply, nil
}

// GenerateEssay writes an essay from the caller's selected notes and stores
// it as an essay message in the session together with a new article.
func (s *ChatService) GenerateEssay(ctx context.Context, userID string, req *domain.GenerateEssayRequest) (*domain.Article, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.GenerateEssay", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.Int("notes.requested", len(req.NoteIDs)),
	))
	defer span.End()

	if _, err := s.ownedSession(ctx, userID, req.SessionID, ErrInvalidSession); err != nil {
		return nil, err
	}

	notes, err := s.noteRepo.ListByIDs(ctx, userID, req.NoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	if len(notes) == 0 {
		return nil, ErrNoValidNotes
	}

	model, err := s.models.Resolve(ctx, userID, req.Model)
	if err != nil {
		return nil, err
	}

	essay, err := s.gateway.Complete(ctx, completion.Request{
		Model:             model.ID,
		SystemInstruction: essayInstruction,
		UserContent:       essayPrompt(notes),
		MaxTokens:         model.EssayTokens,
	})
	if err != nil {
		return nil, err
	}

	count, err := s.articleRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}

	now := time.Now()
	message := &domain.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Role:      domain.RoleAssistant,
		Content:   essay,
		IsEssay:   true,
		CreatedAt: now,
	}
	article := &domain.Article{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: req.SessionID,
		Title:     fmt.Sprintf("Generated Article %d", count+1),
		Content:   essay,
		CreatedAt: now,
	}

	if err := s.chatRepo.AppendEssay(ctx, message, article); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to store essay: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EssaysGenerated.Inc()
	}
	s.publisher.PublishToUser(userID, EventEssayGenerated, EssayEvent{
		SessionID: req.SessionID,
		ArticleID: article.ID,
		Title:     article.Title,
	})
	s.logger.Info("Essay generated",
		zap.String("user_id", userID),
		zap.String("session_id", req.SessionID),
		zap.Int("notes", len(notes)),
	)

	return article, nil
}

func (s *ChatService) ListMessages(ctx context.Context, userID, sessionID string) ([]*domain.ChatMessage, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID, ErrInvalidSession); err != nil {
		return nil, err
	}

	messages, err := s.chatRepo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	sessions, err := s.chatRepo.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.ownedSession(ctx, userID, sessionID, ErrInvalidSession); err != nil {
		return err
	}

	if err := s.chatRepo.DeleteSession(ctx, sessionID); err != nil {
		if repository.IsNotFound(err) {
			return ErrInvalidSession
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.publisher.PublishToUser(userID, EventSessionDeleted, SessionEvent{SessionID: sessionID})
	return nil
}

// ownedSession loads the session and hides foreign sessions behind the same
// error as missing ones.
func (s *ChatService) ownedSession(ctx context.Context, userID, sessionID string, missing error) (*domain.ChatSession, error) {
	session, err := s.chatRepo.FindSession(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, missing
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session.UserID != userID {
		return nil, missing
	}
	return session, nil
}

func essayPrompt(notes []*domain.Note) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, fmt.Sprintf("%s: %s", n.Category, n.Content))
	}
	return strings.Join(parts, "\n\n")
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`“”‘’")
	title = strings.TrimSpace(strings.TrimRight(title, "."))

	words := strings.Fields(title)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	return strings.Join(words, " ")
}
