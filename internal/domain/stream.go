package domain

// FrameType etiqueta cada frame del stream de chat.
type FrameType string

const (
	FrameSession      FrameType = "session"
	FrameContent      FrameType = "content"
	FrameDone         FrameType = "done"
	FrameUnrecognized FrameType = ""
)

// StreamFrame es un frame del stream SSE. El servidor lo serializa como
// `data: <JSON>`; el cliente descarta sin abortar todo frame que no pueda
// decodificar (queda como FrameUnrecognized).
type StreamFrame struct {
	Type               FrameType `json:"type"`
	SessionID          string    `json:"session_id,omitempty"`
	Content            string    `json:"content,omitempty"`
	UserMessageID      int64     `json:"user_message_id,omitempty"`
	AssistantMessageID int64     `json:"assistant_message_id,omitempty"`
}
