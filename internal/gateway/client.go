package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"novel-chat/internal/domain"
)

// HTTPGateway implementa Gateway contra el backend HTTP/SSE del asistente.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway construye un gateway apuntando al backend del asistente.
// El timeout del cliente queda en cero porque los streams de chat pueden
// durar más que cualquier timeout razonable; el caller corta vía contexto.
func NewHTTPGateway(baseURL, apiKey string, logger *zap.Logger) *HTTPGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (g *HTTPGateway) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	if err := g.doJSON(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (g *HTTPGateway) CreateSession(ctx context.Context, title string) (domain.Session, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	var session domain.Session
	if err := g.doJSON(ctx, http.MethodPost, "/sessions", body, &session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (g *HTTPGateway) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var messages []domain.Message
	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (g *HTTPGateway) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/sessions/" + url.PathEscape(sessionID)
	return g.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (g *HTTPGateway) GetFeedback(ctx context.Context, sessionID string) ([]domain.FeedbackMark, error) {
	var marks []domain.FeedbackMark
	path := "/sessions/" + url.PathEscape(sessionID) + "/feedback"
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

func (g *HTTPGateway) GetLikedContext(ctx context.Context, sessionID string) ([]domain.LikedExchange, error) {
	var liked []domain.LikedExchange
	path := "/sessions/" + url.PathEscape(sessionID) + "/liked-context"
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &liked); err != nil {
		return nil, err
	}
	return liked, nil
}

func (g *HTTPGateway) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	var result domain.SendResult
	if err := g.doJSON(ctx, http.MethodPost, "/chat", req, &result); err != nil {
		return domain.SendResult{}, err
	}
	return result, nil
}

// Stream abre el stream SSE del chat y entrega cada frame decodificable a
// onFrame en el orden de llegada. Frames malformados se descartan sin
// cortar la lectura.
func (g *HTTPGateway) Stream(ctx context.Context, req domain.SendRequest, onFrame func(domain.StreamFrame) error) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	g.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		g.logger.Warn("stream error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return fmt.Errorf("gateway http error: status=%d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	// Un delta largo puede superar el buffer default de Scanner.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		frame := decodeFrame(scanner.Text())
		if frame.Type == domain.FrameUnrecognized {
			continue
		}
		if err := onFrame(frame); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (g *HTTPGateway) CreateFeedback(ctx context.Context, input domain.FeedbackInput) error {
	return g.doJSON(ctx, http.MethodPost, "/feedback", input, nil)
}

func (g *HTTPGateway) LinkSeries(ctx context.Context, sessionID, seriesID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/series"
	body := map[string]string{"series_id": seriesID}
	return g.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (g *HTTPGateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		g.logger.Warn("gateway error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return fmt.Errorf("gateway http error: status=%d", resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
