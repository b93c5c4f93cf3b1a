package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"novel-chat/internal/domain"
	"novel-chat/internal/llm"
	"novel-chat/internal/repository"
)

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	ErrChatInvalidInput         = errors.New("chat invalid input")
	ErrInvalidFeedback          = errors.New("invalid feedback input")
)

// ChatService orquesta la generación de respuestas del asistente de
// escritura: sesión implícita en el primer mensaje, persistencia de ambos
// turnos y armado del prompt con contexto.
type ChatService struct {
	llmClient    llm.LLMClient
	sessionRepo  repository.SessionRepository
	messageRepo  repository.MessageRepository
	feedbackRepo repository.FeedbackRepository
	likedServ    *LikedContextService
	logger       *zap.Logger
}

func NewChatService(
	llmClient llm.LLMClient,
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	feedbackRepo repository.FeedbackRepository,
	likedServ *LikedContextService,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		llmClient:    llmClient,
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		feedbackRepo: feedbackRepo,
		likedServ:    likedServ,
		logger:       logger,
	}
}

// Send maneja el envío no-streaming: persiste el turno del usuario, genera
// la respuesta completa y la persiste antes de devolverla.
func (s *ChatService) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	if s == nil || s.llmClient == nil || s.messageRepo == nil {
		return domain.SendResult{}, ErrChatServiceNotConfigured
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return domain.SendResult{}, ErrChatInvalidInput
	}

	sessionID, created, err := s.ensureSession(ctx, req.SessionID)
	if err != nil {
		return domain.SendResult{}, err
	}

	userID, err := s.messageRepo.Create(ctx, domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("persist user message: %w", err)
	}

	prompt, err := s.buildPromptFor(ctx, sessionID, content, req.Options)
	if err != nil {
		return domain.SendResult{}, err
	}

	response, err := s.llmClient.Generate(ctx, prompt)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("llm generate: %w", err)
	}

	assistant := domain.Message{
		SessionID:     sessionID,
		Role:          domain.RoleAssistant,
		Content:       response,
		UserMessageID: userID,
		CreatedAt:     time.Now().UTC(),
	}
	assistantID, err := s.messageRepo.Create(ctx, assistant)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("persist assistant message: %w", err)
	}
	assistant.ID = assistantID

	if created {
		go s.generateAndSaveTitle(sessionID, content)
	}

	return domain.SendResult{
		Message:            assistant,
		SessionID:          sessionID,
		UserMessageID:      userID,
		AssistantMessageID: assistantID,
	}, nil
}

// Stream maneja el envío streaming. Emite un frame `session` si la sesión
// se creó implícitamente, un frame `content` por cada delta del LLM y un
// frame `done` con los ids persistidos de ambos turnos.
func (s *ChatService) Stream(ctx context.Context, req domain.SendRequest, emit func(domain.StreamFrame) error) error {
	if s == nil || s.llmClient == nil || s.messageRepo == nil {
		return ErrChatServiceNotConfigured
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return ErrChatInvalidInput
	}

	sessionID, created, err := s.ensureSession(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if created {
		if err := emit(domain.StreamFrame{Type: domain.FrameSession, SessionID: sessionID}); err != nil {
			return err
		}
	}

	userID, err := s.messageRepo.Create(ctx, domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	prompt, err := s.buildPromptFor(ctx, sessionID, content, req.Options)
	if err != nil {
		return err
	}

	var full strings.Builder
	err = s.llmClient.GenerateStream(ctx, prompt, func(delta string) error {
		full.WriteString(delta)
		return emit(domain.StreamFrame{Type: domain.FrameContent, Content: delta})
	})
	if err != nil {
		return fmt.Errorf("llm stream: %w", err)
	}

	assistantID, err := s.messageRepo.Create(ctx, domain.Message{
		SessionID:     sessionID,
		Role:          domain.RoleAssistant,
		Content:       full.String(),
		UserMessageID: userID,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	if created {
		go s.generateAndSaveTitle(sessionID, content)
	}

	return emit(domain.StreamFrame{
		Type:               domain.FrameDone,
		UserMessageID:      userID,
		AssistantMessageID: assistantID,
	})
}

// CreateFeedback persiste el veredicto del par y, si es like, embebe el
// intercambio para que la búsqueda semántica lo pueda resurfacear.
func (s *ChatService) CreateFeedback(ctx context.Context, input domain.FeedbackInput) error {
	if s == nil || s.messageRepo == nil || s.feedbackRepo == nil {
		return ErrChatServiceNotConfigured
	}
	if input.Feedback != domain.FeedbackLike && input.Feedback != domain.FeedbackDislike {
		return ErrInvalidFeedback
	}
	if input.UserMessageID <= 0 || input.AssistantMessageID <= 0 || strings.TrimSpace(input.SessionID) == "" {
		return ErrInvalidFeedback
	}

	question, err := s.messageRepo.GetByID(ctx, input.UserMessageID)
	if err != nil {
		return fmt.Errorf("get user message: %w", err)
	}
	answer, err := s.messageRepo.GetByID(ctx, input.AssistantMessageID)
	if err != nil {
		return fmt.Errorf("get assistant message: %w", err)
	}

	var embedding *pgvector.Vector
	if input.Feedback == domain.FeedbackLike {
		embed, embErr := s.llmClient.CreateEmbedding(ctx, question.Content+"\n"+answer.Content)
		if embErr != nil {
			// Sin embedding el like igual vale; queda disponible por recencia.
			s.logger.Warn("feedback embedding failed", zap.Error(embErr))
		} else {
			v := pgvector.NewVector(embed)
			embedding = &v
		}
	}

	if err := s.feedbackRepo.Create(ctx, input, question.Content, answer.Content, embedding); err != nil {
		return fmt.Errorf("persist feedback: %w", err)
	}

	if s.likedServ != nil {
		s.likedServ.Invalidate(ctx, input.SessionID)
	}
	return nil
}

func (s *ChatService) ensureSession(ctx context.Context, sessionID string) (string, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		return sessionID, false, nil
	}
	if s.sessionRepo == nil {
		return "", false, ErrChatServiceNotConfigured
	}
	session := domain.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", false, fmt.Errorf("create session: %w", err)
	}
	return session.ID, true, nil
}

func (s *ChatService) buildPromptFor(ctx context.Context, sessionID, content string, opts domain.RequestOptions) (string, error) {
	history, err := s.messageRepo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	liked := opts.LikedContext
	if len(liked) == 0 && s.likedServ != nil {
		if ranked, lerr := s.likedServ.Rank(ctx, sessionID, content, 3); lerr != nil {
			s.logger.Warn("liked context rank failed", zap.String("session_id", sessionID), zap.Error(lerr))
		} else {
			liked = ranked
		}
	}

	return buildWriterPrompt(history, liked, opts, content), nil
}

// generateAndSaveTitle corre en background después del primer intercambio
// de una sesión nueva.
func (s *ChatService) generateAndSaveTitle(sessionID, basis string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := s.llmClient.Generate(ctx, titlePrompt(basis))
	if err != nil {
		s.logger.Warn("title generation failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	if err := s.sessionRepo.UpdateTitle(ctx, sessionID, title); err != nil {
		s.logger.Warn("title save failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	s.logger.Info("session title generated", zap.String("session_id", sessionID), zap.String("title", title))
}
