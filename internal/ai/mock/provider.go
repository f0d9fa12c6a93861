package mock

import (
	"context"
	"encoding/json"
	"hash/fnv"

	"github.com/harishm17/study-buddy/internal/ai"
	"github.com/harishm17/study-buddy/pkg/models"
)

// MockProvider satisfies models.Generator and models.Embedder for testing.
type MockProvider struct {
	GenerateTextFunc func(ctx context.Context, p models.Prompt) (string, error)
	GenerateJSONFunc func(ctx context.Context, p models.Prompt, out any) error
	EmbedFunc        func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc   func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockProvider) GenerateText(ctx context.Context, p models.Prompt) (string, error) {
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, p)
	}
	return "", nil
}

func (m *MockProvider) GenerateJSON(ctx context.Context, p models.Prompt, out any) error {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, p, out)
	}
	return nil
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return Vector(text), nil
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// RespondJSON makes GenerateJSON decode v into the caller's target.
func (m *MockProvider) RespondJSON(v any) *MockProvider {
	data, err := json.Marshal(v)
	m.GenerateJSONFunc = func(_ context.Context, _ models.Prompt, out any) error {
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return m
}

// Vector returns a deterministic unit vector for text. Equal texts map to
// equal vectors; different texts are almost always orthogonal.
func Vector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	v := make([]float32, models.EmbeddingDimensions)
	v[h.Sum32()%models.EmbeddingDimensions] = 1
	return v
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		GenerateTextFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			return "Mock generated text for testing", nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose every call returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		GenerateTextFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			return "", err
		},
		GenerateJSONFunc: func(_ context.Context, _ models.Prompt, _ any) error {
			return err
		},
		EmbedFunc: func(_ context.Context, _ string) ([]float32, error) {
			return nil, err
		},
		EmbedBatchFunc: func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	wait := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	return &MockProvider{
		GenerateTextFunc: func(ctx context.Context, _ models.Prompt) (string, error) {
			return "", wait(ctx)
		},
		GenerateJSONFunc: func(ctx context.Context, _ models.Prompt, _ any) error {
			return wait(ctx)
		},
		EmbedFunc: func(ctx context.Context, _ string) ([]float32, error) {
			return nil, wait(ctx)
		},
		EmbedBatchFunc: func(ctx context.Context, _ []string) ([][]float32, error) {
			return nil, wait(ctx)
		},
	}
}

// NewUnconfiguredProvider mimics a deployment without credentials.
func NewUnconfiguredProvider() *MockProvider {
	return NewFailingProvider(&ai.ConfigError{Provider: "mock", Err: ai.ErrMissingCredentials})
}

var (
	_ models.Generator = (*MockProvider)(nil)
	_ models.Embedder  = (*MockProvider)(nil)
)
