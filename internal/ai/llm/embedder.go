package llm

import (
	"context"
	"fmt"

	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder adapts a langchaingo embedder and checks vector width.
type Embedder struct {
	inner embeddings.Embedder
}

// NewEmbedder wraps a client that can create embeddings.
func NewEmbedder(client embeddings.EmbedderClient) (*Embedder, error) {
	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Embedder{inner: inner}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := checkWidth(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch returns one vector per input, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrInvalidResponse, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := checkWidth(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func checkWidth(v []float32) error {
	if len(v) != models.EmbeddingDimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d", ErrInvalidResponse, len(v), models.EmbeddingDimensions)
	}
	return nil
}

var _ models.Embedder = (*Embedder)(nil)
