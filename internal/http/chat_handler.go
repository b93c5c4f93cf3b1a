package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"novel-chat/internal/domain"
	"novel-chat/internal/repository"
	"novel-chat/internal/service"
)

// ChatHandler mantiene dependencias para endpoints de sesiones, mensajes y
// feedback.
type ChatHandler struct {
	logger    *zap.Logger
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	feedback  repository.FeedbackRepository
	chatServ  *service.ChatService
	likedServ *service.LikedContextService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(
	logger *zap.Logger,
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	feedback repository.FeedbackRepository,
	chatServ *service.ChatService,
	likedServ *service.LikedContextService,
) *ChatHandler {
	return &ChatHandler{
		logger:    logger,
		sessions:  sessions,
		messages:  messages,
		feedback:  feedback,
		chatServ:  chatServ,
		likedServ: likedServ,
	}
}

// ListSessions maneja GET /sessions.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// CreateSession maneja POST /sessions.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	// El título es opcional y el body puede venir vacío.
	_ = c.ShouldBindJSON(&req)

	session := domain.Session{
		ID:        uuid.NewString(),
		Title:     req.Title,
		CreatedAt: time.Now().UTC(),
	}
	session.UpdatedAt = session.CreatedAt

	if err := h.sessions.Create(c.Request.Context(), session); err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// DeleteSession maneja DELETE /sessions/:id.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("delete session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMessages maneja GET /sessions/:id/messages.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	messages, err := h.messages.ListBySessionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// GetFeedback maneja GET /sessions/:id/feedback.
func (h *ChatHandler) GetFeedback(c *gin.Context) {
	marks, err := h.feedback.ListBySessionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list feedback failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list feedback"})
		return
	}
	if marks == nil {
		marks = []domain.FeedbackMark{}
	}
	c.JSON(http.StatusOK, marks)
}

// GetLikedContext maneja GET /sessions/:id/liked-context.
func (h *ChatHandler) GetLikedContext(c *gin.Context) {
	liked, err := h.likedServ.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("get liked context failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get liked context"})
		return
	}
	if liked == nil {
		liked = []domain.LikedExchange{}
	}
	c.JSON(http.StatusOK, liked)
}

// Chat maneja POST /chat (envío no-streaming).
func (h *ChatHandler) Chat(c *gin.Context) {
	var req domain.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.chatServ.Send(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrChatInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty message content"})
			return
		}
		h.logger.Error("chat send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate response"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ChatStream maneja POST /chat/stream y responde frames SSE `data: <JSON>`.
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req domain.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid stream request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, _ := c.Writer.(http.Flusher)

	err := h.chatServ.Stream(c.Request.Context(), req, func(frame domain.StreamFrame) error {
		payload, merr := json.Marshal(frame)
		if merr != nil {
			return merr
		}
		if _, werr := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); werr != nil {
			return werr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, service.ErrChatInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty message content"})
			return
		}
		// Si ya salieron frames no se puede cambiar el status; solo loguear.
		h.logger.Error("chat stream failed", zap.Error(err))
		return
	}
}

// CreateFeedback maneja POST /feedback.
func (h *ChatHandler) CreateFeedback(c *gin.Context) {
	var input domain.FeedbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.Warn("invalid feedback request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.chatServ.CreateFeedback(c.Request.Context(), input); err != nil {
		if errors.Is(err, service.ErrInvalidFeedback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback"})
			return
		}
		h.logger.Error("create feedback failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create feedback"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// LinkSeries maneja POST /sessions/:id/series.
func (h *ChatHandler) LinkSeries(c *gin.Context) {
	var req struct {
		SeriesID string `json:"series_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid link series request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.sessions.LinkSeries(c.Request.Context(), c.Param("id"), req.SeriesID); err != nil {
		h.logger.Error("link series failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not link series"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
