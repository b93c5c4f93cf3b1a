package domain

const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// FeedbackMark asocia un veredicto al mensaje del asistente que lo recibió.
type FeedbackMark struct {
	AssistantMessageID int64  `json:"assistant_message_id"`
	Feedback           string `json:"feedback_type"`
}

// FeedbackInput es el alta de feedback: el veredicto aplica al par
// (mensaje de usuario, respuesta del asistente), no solo a la respuesta.
type FeedbackInput struct {
	SessionID          string `json:"session_id"`
	UserMessageID      int64  `json:"user_message_id"`
	AssistantMessageID int64  `json:"assistant_message_id"`
	Feedback           string `json:"feedback_type"`
}

// LikedExchange es un par pregunta/respuesta marcado con like, candidato a
// contexto extra en generaciones futuras.
type LikedExchange struct {
	UserMessageID      int64  `json:"user_message_id"`
	AssistantMessageID int64  `json:"assistant_message_id"`
	Question           string `json:"question"`
	Answer             string `json:"answer"`
}
