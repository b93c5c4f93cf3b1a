package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"novel-chat/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) (int64, error)
	GetByID(ctx context.Context, id int64) (domain.Message, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

// Create persiste el mensaje y devuelve el id asignado por la base.
func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) (int64, error) {
	const query = `
		INSERT INTO messages (session_id, role, content, user_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var pair interface{}
	if message.UserMessageID > 0 {
		pair = message.UserMessageID
	}

	var id int64
	err := r.pool.QueryRow(ctx, query,
		message.SessionID,
		message.Role,
		message.Content,
		pair,
		message.CreatedAt,
	).Scan(&id)
	return id, err
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id int64) (domain.Message, error) {
	const query = `
		SELECT id, session_id, role, content, COALESCE(user_message_id, 0), created_at
		FROM messages
		WHERE id = $1
	`
	var msg domain.Message
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.Role,
		&msg.Content,
		&msg.UserMessageID,
		&msg.CreatedAt,
	)
	return msg, err
}

func (r *PgMessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
		SELECT id, session_id, role, content, COALESCE(user_message_id, 0), created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.UserMessageID,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
