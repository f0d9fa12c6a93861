package models

import "context"

// Prompt is one request to a text generator.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// Mini selects the provider's smaller, cheaper model.
	Mini bool
}

// Generator produces text or structured JSON from a prompt.
// Never call specific AI providers directly; always inject this interface.
type Generator interface {
	GenerateText(ctx context.Context, p Prompt) (string, error)
	// GenerateJSON decodes the model's JSON answer into out.
	GenerateJSON(ctx context.Context, p Prompt, out any) error
}

// Embedder turns text into vectors of EmbeddingDimensions floats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingDimensions is the vector size stored for chunk embeddings.
const EmbeddingDimensions = 1536
