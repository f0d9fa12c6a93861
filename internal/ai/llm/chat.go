// Package llm adapts langchaingo models to the Generator and Embedder
// interfaces. Vendor packages build the clients; this package drives them.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/tmc/langchaingo/llms"
)

// ErrInvalidResponse is returned when a model answer cannot be decoded.
var ErrInvalidResponse = errors.New("ai provider returned invalid response")

const maxJSONAttempts = 3

// Chat is a Generator backed by a full and a mini langchaingo model.
type Chat struct {
	name     string
	full     llms.Model
	mini     llms.Model
	jsonMode bool
	logger   *slog.Logger
}

// NewChat wraps the given models. mini may be nil, in which case full serves
// every request. jsonMode asks the backend for a JSON-only response format.
func NewChat(name string, full, mini llms.Model, jsonMode bool) *Chat {
	if mini == nil {
		mini = full
	}
	return &Chat{
		name:     name,
		full:     full,
		mini:     mini,
		jsonMode: jsonMode,
		logger:   slog.Default().With("component", "llm", "provider", name),
	}
}

// Name returns the provider name the chat was built with.
func (c *Chat) Name() string { return c.name }

func (c *Chat) GenerateText(ctx context.Context, p models.Prompt) (string, error) {
	return c.generate(ctx, p, false)
}

// GenerateJSON retries when the model answers with malformed JSON. Transport
// errors are returned immediately.
func (c *Chat) GenerateJSON(ctx context.Context, p models.Prompt, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxJSONAttempts; attempt++ {
		text, err := c.generate(ctx, p, c.jsonMode)
		if err != nil {
			return err
		}

		if err := DecodeJSON(text, out); err != nil {
			lastErr = err
			c.logger.Warn("malformed JSON from model", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Chat) generate(ctx context.Context, p models.Prompt, jsonMode bool) (string, error) {
	model := c.full
	if p.Mini {
		model = c.mini
	}

	var messages []llms.MessageContent
	if p.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(p.System)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(p.User)},
	})

	opts := []llms.CallOption{llms.WithTemperature(p.Temperature)}
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}
	return resp.Choices[0].Content, nil
}

// DecodeJSON strips markdown fences and any prose around the outermost JSON
// value, then unmarshals it into out.
func DecodeJSON(text string, out any) error {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return fmt.Errorf("%w: no JSON value in response", ErrInvalidResponse)
	}
	closer := byte('}')
	if body[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(body, closer)
	if end < start {
		return fmt.Errorf("%w: unterminated JSON value", ErrInvalidResponse)
	}

	if err := json.Unmarshal([]byte(body[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

var _ models.Generator = (*Chat)(nil)
