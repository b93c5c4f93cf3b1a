package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas del chat.
func NewRouter(logger *zap.Logger, chatH *ChatHandler) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	sessions := r.Group("/sessions")
	sessions.GET("", chatH.ListSessions)
	sessions.POST("", chatH.CreateSession)
	sessions.DELETE("/:id", chatH.DeleteSession)
	sessions.GET("/:id/messages", chatH.GetMessages)
	sessions.GET("/:id/feedback", chatH.GetFeedback)
	sessions.GET("/:id/liked-context", chatH.GetLikedContext)
	sessions.POST("/:id/series", chatH.LinkSeries)

	r.POST("/chat", chatH.Chat)
	r.POST("/chat/stream", chatH.ChatStream)
	r.POST("/feedback", chatH.CreateFeedback)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
