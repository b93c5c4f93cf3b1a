package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"novel-chat/internal/domain"
	"novel-chat/internal/llm"
)

type mockSessionRepo struct {
	sessions  []domain.Session
	created   []domain.Session
	createErr error
	titles    map[string]string
}

func (m *mockSessionRepo) List(_ context.Context) ([]domain.Session, error) {
	return m.sessions, nil
}

func (m *mockSessionRepo) Create(_ context.Context, session domain.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, session)
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (domain.Session, error) {
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Session{}, errors.New("not found")
}

func (m *mockSessionRepo) Delete(_ context.Context, _ string) error { return nil }

func (m *mockSessionRepo) LinkSeries(_ context.Context, _, _ string) error { return nil }

func (m *mockSessionRepo) UpdateTitle(_ context.Context, id, title string) error {
	if m.titles == nil {
		m.titles = make(map[string]string)
	}
	m.titles[id] = title
	return nil
}

type mockMessageRepo struct {
	nextID  int64
	stored  []domain.Message
	byID    map[int64]domain.Message
	listErr error
}

func (m *mockMessageRepo) Create(_ context.Context, message domain.Message) (int64, error) {
	m.nextID++
	message.ID = m.nextID
	m.stored = append(m.stored, message)
	if m.byID == nil {
		m.byID = make(map[int64]domain.Message)
	}
	m.byID[message.ID] = message
	return message.ID, nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id int64) (domain.Message, error) {
	msg, ok := m.byID[id]
	if !ok {
		return domain.Message{}, errors.New("not found")
	}
	return msg, nil
}

func (m *mockMessageRepo) ListBySessionID(_ context.Context, sessionID string) ([]domain.Message, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Message
	for _, msg := range m.stored {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type mockFeedbackRepo struct {
	lastInput     domain.FeedbackInput
	lastQuestion  string
	lastAnswer    string
	lastEmbedding *pgvector.Vector
	createErr     error
	liked         []domain.LikedExchange
	searched      []domain.LikedExchange
	searchCalls   int
}

func (m *mockFeedbackRepo) Create(_ context.Context, input domain.FeedbackInput, question, answer string, embedding *pgvector.Vector) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.lastInput = input
	m.lastQuestion = question
	m.lastAnswer = answer
	m.lastEmbedding = embedding
	return nil
}

func (m *mockFeedbackRepo) ListBySessionID(_ context.Context, _ string) ([]domain.FeedbackMark, error) {
	return nil, nil
}

func (m *mockFeedbackRepo) ListLiked(_ context.Context, _ string, _ int) ([]domain.LikedExchange, error) {
	return m.liked, nil
}

func (m *mockFeedbackRepo) SearchLiked(_ context.Context, _ string, _ pgvector.Vector, _ int) ([]domain.LikedExchange, error) {
	m.searchCalls++
	return m.searched, nil
}

func newTestChatService(sessions *mockSessionRepo, messages *mockMessageRepo, feedback *mockFeedbackRepo, client llm.LLMClient) *ChatService {
	liked := NewLikedContextService(feedback, client, nil, time.Minute, nil)
	return NewChatService(client, sessions, messages, feedback, liked, nil)
}

func TestChatSendCreatesImplicitSession(t *testing.T) {
	sessions := &mockSessionRepo{}
	messages := &mockMessageRepo{}
	feedback := &mockFeedbackRepo{}
	client := &llm.MockClient{Response: "El dragón despierta.", Embedding: []float32{0.1, 0.2}}
	svc := newTestChatService(sessions, messages, feedback, client)

	result, err := svc.Send(context.Background(), domain.SendRequest{Content: "Dame un arranque de capítulo"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sessions.created) != 1 {
		t.Fatalf("expected implicit session, got %d", len(sessions.created))
	}
	if result.SessionID != sessions.created[0].ID {
		t.Fatalf("expected result session id to match created session")
	}
	if result.UserMessageID != 1 || result.AssistantMessageID != 2 {
		t.Fatalf("expected persisted ids 1/2, got %d/%d", result.UserMessageID, result.AssistantMessageID)
	}
	if result.Message.Content != "El dragón despierta." {
		t.Fatalf("unexpected assistant content %q", result.Message.Content)
	}
	if result.Message.UserMessageID != 1 {
		t.Fatalf("expected assistant paired with user message 1")
	}
}

func TestChatSendValidation(t *testing.T) {
	svc := newTestChatService(&mockSessionRepo{}, &mockMessageRepo{}, &mockFeedbackRepo{}, &llm.MockClient{})

	if _, err := svc.Send(context.Background(), domain.SendRequest{Content: "   "}); !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected ErrChatInvalidInput, got %v", err)
	}
}

func TestChatStreamEmitsFramesInOrder(t *testing.T) {
	sessions := &mockSessionRepo{}
	messages := &mockMessageRepo{}
	feedback := &mockFeedbackRepo{}
	client := &llm.MockClient{Deltas: []string{"Hi", " there"}, Embedding: []float32{0.1}}
	svc := newTestChatService(sessions, messages, feedback, client)

	var frames []domain.StreamFrame
	err := svc.Stream(context.Background(), domain.SendRequest{Content: "Hello"}, func(f domain.StreamFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d: %+v", len(frames), frames)
	}
	if frames[0].Type != domain.FrameSession || frames[0].SessionID == "" {
		t.Fatalf("expected session frame first for implicit session, got %+v", frames[0])
	}
	if frames[1].Content != "Hi" || frames[2].Content != " there" {
		t.Fatalf("expected content deltas in order, got %+v", frames[1:3])
	}
	done := frames[3]
	if done.Type != domain.FrameDone || done.UserMessageID != 1 || done.AssistantMessageID != 2 {
		t.Fatalf("unexpected done frame %+v", done)
	}

	// La respuesta persistida es la concatenación de los deltas.
	stored := messages.byID[2]
	if stored.Content != "Hi there" || stored.Role != domain.RoleAssistant {
		t.Fatalf("unexpected persisted assistant %+v", stored)
	}
	if stored.UserMessageID != 1 {
		t.Fatalf("expected persisted pair link, got %d", stored.UserMessageID)
	}
}

func TestChatStreamExistingSessionSkipsSessionFrame(t *testing.T) {
	messages := &mockMessageRepo{}
	client := &llm.MockClient{Deltas: []string{"ok"}, Embedding: []float32{0.1}}
	svc := newTestChatService(&mockSessionRepo{}, messages, &mockFeedbackRepo{}, client)

	var frames []domain.StreamFrame
	err := svc.Stream(context.Background(), domain.SendRequest{SessionID: "s1", Content: "hola"}, func(f domain.StreamFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, f := range frames {
		if f.Type == domain.FrameSession {
			t.Fatalf("expected no session frame for existing session")
		}
	}
}

func TestCreateFeedbackStoresPairWithEmbedding(t *testing.T) {
	messages := &mockMessageRepo{}
	feedback := &mockFeedbackRepo{}
	client := &llm.MockClient{Embedding: []float32{0.5, 0.5}}
	svc := newTestChatService(&mockSessionRepo{}, messages, feedback, client)

	userID, _ := messages.Create(context.Background(), domain.Message{SessionID: "s1", Role: domain.RoleUser, Content: "pregunta"})
	asstID, _ := messages.Create(context.Background(), domain.Message{SessionID: "s1", Role: domain.RoleAssistant, Content: "respuesta"})

	err := svc.CreateFeedback(context.Background(), domain.FeedbackInput{
		SessionID:          "s1",
		UserMessageID:      userID,
		AssistantMessageID: asstID,
		Feedback:           domain.FeedbackLike,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if feedback.lastQuestion != "pregunta" || feedback.lastAnswer != "respuesta" {
		t.Fatalf("expected denormalized exchange, got %q/%q", feedback.lastQuestion, feedback.lastAnswer)
	}
	if feedback.lastEmbedding == nil {
		t.Fatalf("expected embedding stored for like")
	}
}

func TestCreateFeedbackLikeSurvivesEmbeddingFailure(t *testing.T) {
	messages := &mockMessageRepo{}
	feedback := &mockFeedbackRepo{}
	failing := &failingEmbeddingClient{}
	svc := newTestChatService(&mockSessionRepo{}, messages, feedback, failing)

	userID, _ := messages.Create(context.Background(), domain.Message{SessionID: "s1", Role: domain.RoleUser, Content: "q"})
	asstID, _ := messages.Create(context.Background(), domain.Message{SessionID: "s1", Role: domain.RoleAssistant, Content: "a"})

	err := svc.CreateFeedback(context.Background(), domain.FeedbackInput{
		SessionID:          "s1",
		UserMessageID:      userID,
		AssistantMessageID: asstID,
		Feedback:           domain.FeedbackLike,
	})
	if err != nil {
		t.Fatalf("expected like to survive embedding failure, got %v", err)
	}
	if feedback.lastEmbedding != nil {
		t.Fatalf("expected nil embedding on failure")
	}
}

func TestCreateFeedbackValidation(t *testing.T) {
	svc := newTestChatService(&mockSessionRepo{}, &mockMessageRepo{}, &mockFeedbackRepo{}, &llm.MockClient{})

	cases := []domain.FeedbackInput{
		{SessionID: "s1", UserMessageID: 1, AssistantMessageID: 2, Feedback: "meh"},
		{SessionID: "s1", UserMessageID: -3, AssistantMessageID: 2, Feedback: domain.FeedbackLike},
		{SessionID: "", UserMessageID: 1, AssistantMessageID: 2, Feedback: domain.FeedbackLike},
	}
	for i, input := range cases {
		if err := svc.CreateFeedback(context.Background(), input); !errors.Is(err, ErrInvalidFeedback) {
			t.Fatalf("case %d expected ErrInvalidFeedback, got %v", i, err)
		}
	}
}

func TestPromptIncludesContextSections(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "Describe la aldea"},
		{Role: domain.RoleAssistant, Content: "La aldea duerme entre montañas."},
		{Role: domain.RoleUser, Content: "y el herrero?"},
	}
	liked := []domain.LikedExchange{{Question: "tono?", Answer: "sobrio y visual"}}
	opts := domain.RequestOptions{
		Language:     "español",
		SeriesID:     "saga-norte",
		DocumentText: "notas del capitulo 3",
		DocumentName: "cap3.txt",
	}

	prompt := buildWriterPrompt(history, liked, opts, "y el herrero?")

	for _, want := range []string{
		"saga-norte",
		"sobrio y visual",
		"notas del capitulo 3",
		"La aldea duerme entre montañas.",
		"Autor: y el herrero?",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q\n%s", want, prompt)
		}
	}

	// El mensaje entrante no se duplica dentro de la ventana de historial.
	if strings.Count(prompt, "y el herrero?") != 1 {
		t.Fatalf("expected incoming message exactly once, prompt:\n%s", prompt)
	}
}

type failingEmbeddingClient struct{}

func (f *failingEmbeddingClient) Generate(_ context.Context, _ string) (string, error) {
	return "ok", nil
}

func (f *failingEmbeddingClient) GenerateStream(_ context.Context, _ string, onDelta func(string) error) error {
	return onDelta("ok")
}

func (f *failingEmbeddingClient) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}
