package llm

import "context"

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response  string
	Deltas    []string
	Embedding []float32
	Err       error
}

func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	return m.Response, m.Err
}

func (m *MockClient) GenerateStream(ctx context.Context, prompt string, onDelta func(delta string) error) error {
	if m.Err != nil {
		return m.Err
	}
	for _, d := range m.Deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Embedding, nil
}
