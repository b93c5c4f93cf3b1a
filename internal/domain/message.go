package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message es un turno dentro de una sesión. Los IDs reales los asigna el
// servidor (positivos); un ID negativo es un id temporal local que todavía
// no fue confirmado por el servidor.
type Message struct {
	ID        int64    `json:"id"`
	SessionID string   `json:"session_id,omitempty"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Sources   []Source `json:"sources,omitempty"`
	// UserMessageID enlaza la respuesta del asistente con el mensaje de
	// usuario que la disparó; se usa para feedback por par.
	UserMessageID int64     `json:"user_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Source es una cita recuperada por RAG que acompaña una respuesta.
type Source struct {
	DocumentID string  `json:"document_id,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
}
