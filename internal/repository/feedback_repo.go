package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"novel-chat/internal/domain"
)

type FeedbackRepository interface {
	Create(ctx context.Context, input domain.FeedbackInput, question, answer string, embedding *pgvector.Vector) error
	ListBySessionID(ctx context.Context, sessionID string) ([]domain.FeedbackMark, error)
	ListLiked(ctx context.Context, sessionID string, k int) ([]domain.LikedExchange, error)
	SearchLiked(ctx context.Context, sessionID string, queryEmbedding pgvector.Vector, k int) ([]domain.LikedExchange, error)
}

type PgFeedbackRepository struct {
	pool *pgxpool.Pool
}

func NewPgFeedbackRepository(pool *pgxpool.Pool) *PgFeedbackRepository {
	return &PgFeedbackRepository{pool: pool}
}

// Create guarda el veredicto del par. Un veredicto nuevo sobre la misma
// respuesta pisa al anterior. El embedding es opcional: si falló su
// generación, el intercambio igual queda disponible por recencia.
func (r *PgFeedbackRepository) Create(ctx context.Context, input domain.FeedbackInput, question, answer string, embedding *pgvector.Vector) error {
	const query = `
		INSERT INTO feedback (
			session_id, user_message_id, assistant_message_id, feedback_type, question, answer, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (assistant_message_id) DO UPDATE
		SET feedback_type = EXCLUDED.feedback_type,
		    question = EXCLUDED.question,
		    answer = EXCLUDED.answer,
		    embedding = EXCLUDED.embedding,
		    created_at = EXCLUDED.created_at
	`

	var embed interface{}
	if embedding != nil {
		embed = *embedding
	}

	_, err := r.pool.Exec(ctx, query,
		input.SessionID,
		input.UserMessageID,
		input.AssistantMessageID,
		input.Feedback,
		question,
		answer,
		embed,
		time.Now().UTC(),
	)
	return err
}

func (r *PgFeedbackRepository) ListBySessionID(ctx context.Context, sessionID string) ([]domain.FeedbackMark, error) {
	const query = `
		SELECT assistant_message_id, feedback_type
		FROM feedback
		WHERE session_id = $1
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []domain.FeedbackMark
	for rows.Next() {
		var m domain.FeedbackMark
		if err := rows.Scan(&m.AssistantMessageID, &m.Feedback); err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// ListLiked devuelve los intercambios con like más recientes de la sesión.
func (r *PgFeedbackRepository) ListLiked(ctx context.Context, sessionID string, k int) ([]domain.LikedExchange, error) {
	if k <= 0 {
		k = 5
	}
	const query = `
		SELECT user_message_id, assistant_message_id, question, answer
		FROM feedback
		WHERE session_id = $1 AND feedback_type = 'like'
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, sessionID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLiked(rows)
}

// SearchLiked ordena los likes por cercanía semántica al embedding de la
// consulta.
func (r *PgFeedbackRepository) SearchLiked(ctx context.Context, sessionID string, queryEmbedding pgvector.Vector, k int) ([]domain.LikedExchange, error) {
	if k <= 0 {
		k = 5
	}
	const query = `
		SELECT user_message_id, assistant_message_id, question, answer
		FROM feedback
		WHERE session_id = $1 AND feedback_type = 'like' AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, sessionID, queryEmbedding, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLiked(rows)
}

func scanLiked(rows pgxRows) ([]domain.LikedExchange, error) {
	var liked []domain.LikedExchange
	for rows.Next() {
		var e domain.LikedExchange
		if err := rows.Scan(&e.UserMessageID, &e.AssistantMessageID, &e.Question, &e.Answer); err != nil {
			return nil, err
		}
		liked = append(liked, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return liked, nil
}

// pgxRows is a minimal interface to allow scanning from pgx rows and simplify testing.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}
