package anthropic

import (
	"fmt"

	"github.com/harishm17/study-buddy/internal/ai/llm"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// NewGenerator builds Claude chat models. Anthropic has no JSON response
// mode, so structured answers rely on the prompt and fence stripping.
func NewGenerator(cfg config.AnthropicConfig) (*llm.Chat, error) {
	full, err := anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}

	mini := full
	if cfg.MiniModel != "" && cfg.MiniModel != cfg.Model {
		mini, err = anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.MiniModel))
		if err != nil {
			return nil, fmt.Errorf("create anthropic mini client: %w", err)
		}
	}

	return llm.NewChat("anthropic", full, mini, false), nil
}
