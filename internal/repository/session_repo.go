package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"novel-chat/internal/domain"
)

type SessionRepository interface {
	List(ctx context.Context) ([]domain.Session, error)
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
	LinkSeries(ctx context.Context, sessionID, seriesID string) error
	UpdateTitle(ctx context.Context, id, title string) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

// List devuelve las sesiones con contador de mensajes y último movimiento,
// ordenadas de la más reciente a la más vieja.
func (r *PgSessionRepository) List(ctx context.Context) ([]domain.Session, error) {
	const query = `
		SELECT s.id, s.title, s.series_id, s.created_at,
		       COUNT(m.id) AS message_count,
		       COALESCE(MAX(m.created_at), s.created_at) AS updated_at
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id, s.title, s.series_id, s.created_at
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var seriesID sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &seriesID, &s.CreatedAt, &s.MessageCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if seriesID.Valid {
			s.SeriesID = seriesID.String
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO sessions (id, title, series_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	var seriesID interface{}
	if session.SeriesID != "" {
		seriesID = session.SeriesID
	}

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.Title,
		seriesID,
		session.CreatedAt,
	)
	return err
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT s.id, s.title, s.series_id, s.created_at,
		       COUNT(m.id) AS message_count,
		       COALESCE(MAX(m.created_at), s.created_at) AS updated_at
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		WHERE s.id = $1
		GROUP BY s.id, s.title, s.series_id, s.created_at
	`
	var s domain.Session
	var seriesID sql.NullString
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Title, &seriesID, &s.CreatedAt, &s.MessageCount, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if seriesID.Valid {
		s.SeriesID = seriesID.String
	}
	return s, nil
}

func (r *PgSessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgSessionRepository) LinkSeries(ctx context.Context, sessionID, seriesID string) error {
	const query = `UPDATE sessions SET series_id = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, sessionID, seriesID)
	return err
}

func (r *PgSessionRepository) UpdateTitle(ctx context.Context, id, title string) error {
	const query = `UPDATE sessions SET title = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, title)
	return err
}
