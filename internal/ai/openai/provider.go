package openai

import (
	"fmt"

	"github.com/harishm17/study-buddy/internal/ai/llm"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewGenerator builds chat models for the configured full and mini models.
func NewGenerator(cfg config.OpenAIConfig) (*llm.Chat, error) {
	full, err := openai.New(clientOptions(cfg, openai.WithModel(cfg.Model))...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	mini := full
	if cfg.MiniModel != "" && cfg.MiniModel != cfg.Model {
		mini, err = openai.New(clientOptions(cfg, openai.WithModel(cfg.MiniModel))...)
		if err != nil {
			return nil, fmt.Errorf("create openai mini client: %w", err)
		}
	}

	return llm.NewChat("openai", full, mini, true), nil
}

// NewEmbedder builds an embedder for cfg.EmbeddingModel. Anthropic
// deployments use it too, since Anthropic has no embedding endpoint.
func NewEmbedder(cfg config.OpenAIConfig) (*llm.Embedder, error) {
	client, err := openai.New(clientOptions(cfg, openai.WithEmbeddingModel(cfg.EmbeddingModel))...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}
	return llm.NewEmbedder(client)
}

func clientOptions(cfg config.OpenAIConfig, extra ...openai.Option) []openai.Option {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return append(opts, extra...)
}
