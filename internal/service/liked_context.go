package service

import (
	"context"
	"encoding/json"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"novel-chat/internal/domain"
	"novel-chat/internal/llm"
	"novel-chat/internal/repository"
)

const likedCacheKeyPrefix = "liked-context:"

// LikedContextService resuelve los intercambios con like de una sesión,
// con cache opcional en redis y ranking semántico vía pgvector. Sin redis
// configurado todo sigue funcionando contra la base.
type LikedContextService struct {
	feedbackRepo repository.FeedbackRepository
	llmClient    llm.LLMClient
	cache        *redis.Client
	cacheTTL     time.Duration
	logger       *zap.Logger
}

func NewLikedContextService(
	feedbackRepo repository.FeedbackRepository,
	llmClient llm.LLMClient,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *LikedContextService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &LikedContextService{
		feedbackRepo: feedbackRepo,
		llmClient:    llmClient,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Get devuelve los likes recientes de la sesión, usando el cache si está
// disponible.
func (s *LikedContextService) Get(ctx context.Context, sessionID string) ([]domain.LikedExchange, error) {
	if s == nil || s.feedbackRepo == nil {
		return nil, ErrChatServiceNotConfigured
	}

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, likedCacheKeyPrefix+sessionID).Result()
		if err == nil {
			var liked []domain.LikedExchange
			if jerr := json.Unmarshal([]byte(raw), &liked); jerr == nil {
				return liked, nil
			}
			// Entrada corrupta: se descarta y se repuebla desde la base.
			s.cache.Del(ctx, likedCacheKeyPrefix+sessionID)
		} else if err != redis.Nil {
			s.logger.Warn("liked cache read failed", zap.Error(err))
		}
	}

	liked, err := s.feedbackRepo.ListLiked(ctx, sessionID, 5)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, jerr := json.Marshal(liked); jerr == nil {
			if err := s.cache.Set(ctx, likedCacheKeyPrefix+sessionID, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("liked cache write failed", zap.Error(err))
			}
		}
	}
	return liked, nil
}

// Rank ordena los likes por cercanía semántica al mensaje entrante. Si el
// embedding falla, degrada a la lista por recencia.
func (s *LikedContextService) Rank(ctx context.Context, sessionID, query string, k int) ([]domain.LikedExchange, error) {
	if s == nil || s.feedbackRepo == nil {
		return nil, ErrChatServiceNotConfigured
	}

	if s.llmClient != nil {
		embed, err := s.llmClient.CreateEmbedding(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding failed", zap.Error(err))
		} else {
			ranked, serr := s.feedbackRepo.SearchLiked(ctx, sessionID, pgvector.NewVector(embed), k)
			if serr != nil {
				return nil, serr
			}
			if len(ranked) > 0 {
				return ranked, nil
			}
			// Likes sin embedding (p.ej. embebido caído al crearlos) solo
			// aparecen por recencia.
		}
	}
	return s.feedbackRepo.ListLiked(ctx, sessionID, k)
}

// Invalidate tira la entrada de cache de la sesión; se llama al crear
// feedback nuevo.
func (s *LikedContextService) Invalidate(ctx context.Context, sessionID string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, likedCacheKeyPrefix+sessionID).Err(); err != nil {
		s.logger.Warn("liked cache invalidation failed", zap.Error(err))
	}
}
