package ollama

import (
	"fmt"

	"github.com/harishm17/study-buddy/internal/ai/llm"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewGenerator builds a chat model served by a local Ollama instance. The
// same model answers mini requests.
func NewGenerator(cfg config.OllamaConfig) (*llm.Chat, error) {
	client, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return llm.NewChat("ollama", client, nil, true), nil
}

// NewEmbedder builds an embedder for cfg.EmbeddingModel. The model must
// produce vectors of the stored width.
func NewEmbedder(cfg config.OllamaConfig) (*llm.Embedder, error) {
	client, err := ollama.New(ollama.WithModel(cfg.EmbeddingModel), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedding client: %w", err)
	}
	return llm.NewEmbedder(client)
}
