package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"novel-chat/internal/domain"
	"novel-chat/internal/gateway"
)

var (
	ErrControllerNotConfigured = errors.New("session controller not configured")
	ErrEmptyMessage            = errors.New("empty message content")
	ErrSendInFlight            = errors.New("send already in flight")
)

// Snapshot es el view-model que consume la capa de presentación. Los slices
// y el mapa son copias; mutarlos no afecta al controller.
type Snapshot struct {
	Sessions        []domain.Session
	ActiveSessionID string
	Messages        []domain.Message
	Feedback        map[int64]string
	LikedContext    []domain.LikedExchange
	SeriesID        string
	IsLoading       bool
	IsStreaming     bool
	Err             error
}

// SessionController media todo el ciclo de vida de sesiones y mensajes y
// garantiza que la transcripción sea consistente incluso con respuestas en
// vuelo. Cada instancia es independiente; no comparte estado con otras.
type SessionController struct {
	gw     gateway.Gateway
	logger *zap.Logger

	mu         sync.Mutex
	sessions   []domain.Session
	activeID   string
	messages   []domain.Message
	feedback   map[int64]string
	liked      []domain.LikedExchange
	seriesID   string
	opts       domain.RequestOptions
	uploadText string
	uploadName string
	loading    bool
	streaming  bool
	lastErr    error
	nextTempID int64
	onChange   func(Snapshot)
}

// NewSessionController construye un controller con su gateway inyectado.
func NewSessionController(gw gateway.Gateway, logger *zap.Logger) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		gw:       gw,
		logger:   logger,
		feedback: make(map[int64]string),
		// Semilla negativa derivada del reloj; cada uso decrementa, así
		// dos mensajes locales nunca comparten id ni chocan con un id
		// real positivo del servidor.
		nextTempID: -time.Now().UnixMilli(),
	}
}

// Subscribe registra el callback que recibe cada snapshot nuevo. Se invoca
// sin locks tomados, así que puede leer Snapshot() sin deadlock.
func (c *SessionController) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot devuelve una copia del estado visible actual.
func (c *SessionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SessionController) snapshotLocked() Snapshot {
	feedback := make(map[int64]string, len(c.feedback))
	for k, v := range c.feedback {
		feedback[k] = v
	}
	return Snapshot{
		Sessions:        append([]domain.Session(nil), c.sessions...),
		ActiveSessionID: c.activeID,
		Messages:        append([]domain.Message(nil), c.messages...),
		Feedback:        feedback,
		LikedContext:    append([]domain.LikedExchange(nil), c.liked...),
		SeriesID:        c.seriesID,
		IsLoading:       c.loading,
		IsStreaming:     c.streaming,
		Err:             c.lastErr,
	}
}

func (c *SessionController) notify() {
	c.mu.Lock()
	fn := c.onChange
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (c *SessionController) tempIDLocked() int64 {
	id := c.nextTempID
	c.nextTempID--
	return id
}

// SetRequestOptions guarda los toggles (RAG, web search, modelo, etc.) que
// se aplican a cada envío posterior.
func (c *SessionController) SetRequestOptions(opts domain.RequestOptions) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	c.notify()
}

// SetUploadedDocument fija el documento subido que acompaña solo al
// próximo envío exitoso; después se limpia.
func (c *SessionController) SetUploadedDocument(text, name string) {
	c.mu.Lock()
	c.uploadText = text
	c.uploadName = name
	c.mu.Unlock()
	c.notify()
}

// ClearError limpia el slot de último error.
func (c *SessionController) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// LoadSessions reemplaza la lista de sesiones completa. Un fallo deja la
// transcripción ya cargada intacta.
func (c *SessionController) LoadSessions(ctx context.Context) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	sessions, err := c.gw.ListSessions(ctx)
	if err != nil {
		c.setErr(err)
		return err
	}
	c.mu.Lock()
	// Solo la lista: un refresh viejo jamás debe pisar los mensajes de la
	// sesión activa.
	c.sessions = sessions
	c.mu.Unlock()
	c.notify()
	return nil
}

// CreateSession pide una sesión nueva, la antepone a la lista, la activa y
// limpia la transcripción. En fallo no muta nada local.
func (c *SessionController) CreateSession(ctx context.Context, title string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	session, err := c.gw.CreateSession(ctx, title)
	if err != nil {
		c.setErr(err)
		return err
	}
	c.mu.Lock()
	c.sessions = append([]domain.Session{session}, c.sessions...)
	c.activeID = session.ID
	c.messages = nil
	c.feedback = make(map[int64]string)
	c.liked = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// SelectSession activa una sesión y carga su historial. Los fetches de
// feedback y liked-context son best-effort: si fallan, el historial se
// aplica igual.
func (c *SessionController) SelectSession(ctx context.Context, id string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	c.mu.Lock()
	c.activeID = id
	c.loading = true
	c.mu.Unlock()
	c.notify()

	messages, err := c.gw.GetMessages(ctx, id)
	if err != nil {
		c.mu.Lock()
		c.loading = false
		c.lastErr = err
		c.mu.Unlock()
		c.notify()
		return err
	}

	feedback := make(map[int64]string)
	if marks, ferr := c.gw.GetFeedback(ctx, id); ferr != nil {
		c.logger.Warn("feedback fetch failed", zap.String("session_id", id), zap.Error(ferr))
	} else {
		for _, m := range marks {
			feedback[m.AssistantMessageID] = m.Feedback
		}
	}

	var liked []domain.LikedExchange
	if lk, lerr := c.gw.GetLikedContext(ctx, id); lerr != nil {
		c.logger.Warn("liked context fetch failed", zap.String("session_id", id), zap.Error(lerr))
	} else {
		liked = lk
	}

	c.mu.Lock()
	if c.activeID != id {
		// El usuario ya cambió de sesión; este resultado quedó viejo.
		c.mu.Unlock()
		return nil
	}
	c.messages = messages
	c.feedback = feedback
	c.liked = liked
	c.loading = false
	c.mu.Unlock()
	c.notify()
	return nil
}

// DeleteSession borra la sesión en el servidor y la saca de la lista. Si
// era la activa, limpia transcripción y sesión activa.
func (c *SessionController) DeleteSession(ctx context.Context, id string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	if err := c.gw.DeleteSession(ctx, id); err != nil {
		c.setErr(err)
		return err
	}
	c.mu.Lock()
	kept := c.sessions[:0]
	for _, s := range c.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	c.sessions = kept
	if c.activeID == id {
		c.activeID = ""
		c.messages = nil
		c.feedback = make(map[int64]string)
		c.liked = nil
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// SendMessage es el envío no-streaming: agrega el mensaje de usuario de
// forma optimista, hace un request y agrega la respuesta completa.
func (c *SessionController) SendMessage(ctx context.Context, content string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.loading || c.streaming {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	userTempID := c.tempIDLocked()
	c.messages = append(c.messages, domain.Message{
		ID:        userTempID,
		SessionID: c.activeID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	c.loading = true
	req := c.buildRequestLocked(content)
	c.mu.Unlock()
	c.notify()

	result, err := c.gw.Send(ctx, req)
	if err != nil {
		// Sin rollback: el mensaje optimista queda visible y el error se
		// comunica por el slot.
		c.mu.Lock()
		c.loading = false
		c.lastErr = err
		c.mu.Unlock()
		c.notify()
		return err
	}

	c.mu.Lock()
	if c.activeID == "" && result.SessionID != "" {
		c.activeID = result.SessionID
	}
	if result.UserMessageID != 0 {
		c.rewriteIDLocked(userTempID, result.UserMessageID)
	}
	assistant := result.Message
	assistant.Role = domain.RoleAssistant
	if result.AssistantMessageID != 0 {
		assistant.ID = result.AssistantMessageID
	} else if assistant.ID == 0 {
		assistant.ID = c.tempIDLocked()
	}
	if result.UserMessageID != 0 {
		assistant.UserMessageID = result.UserMessageID
	} else {
		assistant.UserMessageID = userTempID
	}
	if len(result.Sources) > 0 {
		assistant.Sources = result.Sources
	}
	c.messages = append(c.messages, assistant)
	c.uploadText = ""
	c.uploadName = ""
	c.loading = false
	c.mu.Unlock()
	c.notify()

	c.refreshSessions(ctx)
	return nil
}

// StreamMessage es el envío streaming: placeholder vacío del asistente,
// deltas aplicados en orden de llegada y reconciliación de ids al final.
func (c *SessionController) StreamMessage(ctx context.Context, content string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.loading || c.streaming {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	userTempID := c.tempIDLocked()
	assistantTempID := c.tempIDLocked()
	now := time.Now().UTC()
	c.messages = append(c.messages,
		domain.Message{
			ID:        userTempID,
			SessionID: c.activeID,
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: now,
		},
		domain.Message{
			ID:        assistantTempID,
			SessionID: c.activeID,
			Role:      domain.RoleAssistant,
			Content:   "",
			CreatedAt: now,
		},
	)
	c.streaming = true
	req := c.buildRequestLocked(content)
	c.mu.Unlock()
	c.notify()

	var doneUserID, doneAssistantID int64

	err := c.gw.Stream(ctx, req, func(frame domain.StreamFrame) error {
		switch frame.Type {
		case domain.FrameSession:
			c.mu.Lock()
			if c.activeID == "" && frame.SessionID != "" {
				c.activeID = frame.SessionID
			}
			c.mu.Unlock()
			c.notify()
		case domain.FrameContent:
			c.mu.Lock()
			for i := range c.messages {
				if c.messages[i].ID == assistantTempID {
					c.messages[i].Content += frame.Content
					break
				}
			}
			c.mu.Unlock()
			c.notify()
		case domain.FrameDone:
			doneUserID = frame.UserMessageID
			doneAssistantID = frame.AssistantMessageID
		}
		return nil
	})

	if err != nil {
		c.mu.Lock()
		c.streaming = false
		c.lastErr = err
		c.mu.Unlock()
		c.notify()
		return err
	}

	// Reconciliación atómica: ambos rewrites y la metadata del par salen
	// en un solo snapshot. Si el servidor no devolvió un id, el temporal
	// se queda.
	c.mu.Lock()
	resolvedUserID := userTempID
	if doneUserID != 0 {
		c.rewriteIDLocked(userTempID, doneUserID)
		resolvedUserID = doneUserID
	}
	if doneAssistantID != 0 {
		c.rewriteIDLocked(assistantTempID, doneAssistantID)
	}
	for i := range c.messages {
		if c.messages[i].ID == doneAssistantID || c.messages[i].ID == assistantTempID {
			if c.messages[i].Role == domain.RoleAssistant {
				c.messages[i].UserMessageID = resolvedUserID
			}
		}
	}
	c.streaming = false
	c.uploadText = ""
	c.uploadName = ""
	c.mu.Unlock()
	c.notify()

	c.refreshSessions(ctx)
	return nil
}

// SetFeedback persiste el veredicto del par (usuario, asistente) y recién
// después lo refleja en el mapa local; luego refresca el liked-context
// porque los intercambios con like alimentan generaciones futuras.
func (c *SessionController) SetFeedback(ctx context.Context, userMessageID, assistantMessageID int64, verdict string) error {
	if c == nil || c.gw == nil {
		return ErrControllerNotConfigured
	}
	c.mu.Lock()
	sessionID := c.activeID
	c.mu.Unlock()

	input := domain.FeedbackInput{
		SessionID:          sessionID,
		UserMessageID:      userMessageID,
		AssistantMessageID: assistantMessageID,
		Feedback:           verdict,
	}
	if err := c.gw.CreateFeedback(ctx, input); err != nil {
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	c.feedback[assistantMessageID] = verdict
	c.mu.Unlock()
	c.notify()

	if liked, err := c.gw.GetLikedContext(ctx, sessionID); err != nil {
		c.logger.Warn("liked context refresh failed", zap.String("session_id", sessionID), zap.Error(err))
	} else {
		c.mu.Lock()
		c.liked = liked
		c.mu.Unlock()
		c.notify()
	}
	return nil
}

// SetSeriesContext fija o limpia (id vacío) la serie que acota la
// recuperación. Si hay sesión activa intenta enlazarlas en el servidor;
// un fallo ahí se loguea y no bloquea el chat.
func (c *SessionController) SetSeriesContext(ctx context.Context, seriesID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.seriesID = seriesID
	sessionID := c.activeID
	c.mu.Unlock()
	c.notify()

	if c.gw == nil || seriesID == "" || sessionID == "" {
		return
	}
	if err := c.gw.LinkSeries(ctx, sessionID, seriesID); err != nil {
		c.logger.Warn("series link failed",
			zap.String("session_id", sessionID),
			zap.String("series_id", seriesID),
			zap.Error(err),
		)
	}
}

// rewriteIDLocked reemplaza un id temporal por el real conservando la
// posición y sin duplicar entradas.
func (c *SessionController) rewriteIDLocked(tempID, realID int64) {
	for i := range c.messages {
		if c.messages[i].ID == tempID {
			c.messages[i].ID = realID
			return
		}
	}
}

func (c *SessionController) buildRequestLocked(content string) domain.SendRequest {
	opts := c.opts
	opts.DocumentText = c.uploadText
	opts.DocumentName = c.uploadName
	opts.LikedContext = append([]domain.LikedExchange(nil), c.liked...)
	opts.SeriesID = c.seriesID
	return domain.SendRequest{
		SessionID: c.activeID,
		Content:   content,
		Options:   opts,
	}
}

// refreshSessions actualiza contadores y timestamps después de un envío.
// Best-effort: un fallo acá no ensucia el slot de error del chat.
func (c *SessionController) refreshSessions(ctx context.Context) {
	sessions, err := c.gw.ListSessions(ctx)
	if err != nil {
		c.logger.Warn("session list refresh failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()
	c.notify()
}

func (c *SessionController) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}
