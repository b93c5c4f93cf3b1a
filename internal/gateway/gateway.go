package gateway

import (
	"context"

	"novel-chat/internal/domain"
)

// Gateway define el contrato contra el backend de chat. El controller solo
// depende de esta interfaz; la implementación real habla HTTP/SSE.
type Gateway interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	CreateSession(ctx context.Context, title string) (domain.Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetFeedback(ctx context.Context, sessionID string) ([]domain.FeedbackMark, error)
	GetLikedContext(ctx context.Context, sessionID string) ([]domain.LikedExchange, error)
	Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error)
	Stream(ctx context.Context, req domain.SendRequest, onFrame func(domain.StreamFrame) error) error
	CreateFeedback(ctx context.Context, input domain.FeedbackInput) error
	LinkSeries(ctx context.Context, sessionID, seriesID string) error
}
