package domain

// RequestOptions es la configuración efímera de cada envío; se recalcula
// por request y no se persiste.
type RequestOptions struct {
	UseRAG          bool            `json:"use_rag"`
	UseWebSearch    bool            `json:"use_web_search"`
	UseGraphContext bool            `json:"use_graph_context"`
	Provider        string          `json:"provider,omitempty"`
	Model           string          `json:"model,omitempty"`
	Temperature     float64         `json:"temperature,omitempty"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Language        string          `json:"language,omitempty"`
	DocumentText    string          `json:"document_text,omitempty"`
	DocumentName    string          `json:"document_name,omitempty"`
	Categories      []string        `json:"categories,omitempty"`
	LikedContext    []LikedExchange `json:"liked_context,omitempty"`
	SeriesID        string          `json:"series_id,omitempty"`
}

// SendRequest es lo que viaja al gateway en un envío (stream o no).
type SendRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content"`
	Options   RequestOptions `json:"options"`
}

// SendResult es la respuesta del envío no-streaming.
type SendResult struct {
	Message            Message  `json:"message"`
	Sources            []Source `json:"sources,omitempty"`
	SessionID          string   `json:"session_id"`
	UserMessageID      int64    `json:"user_message_id,omitempty"`
	AssistantMessageID int64    `json:"assistant_message_id,omitempty"`
}
