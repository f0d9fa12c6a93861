package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/harishm17/study-buddy/internal/ai/anthropic"
	"github.com/harishm17/study-buddy/internal/ai/ollama"
	"github.com/harishm17/study-buddy/internal/ai/openai"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/pkg/models"
)

// Provider is the Generator and Embedder the pipeline uses. Every call runs
// under the inference timeout and every error comes back classified as a
// ConfigError or a TransientError.
type Provider struct {
	name    string
	gen     models.Generator
	emb     models.Embedder
	timeout time.Duration
}

// NewProvider constructs the provider selected by cfg.Provider.
// Called once at server startup.
//
// Missing credentials do not fail construction. The returned provider answers
// every call with a ConfigError wrapping ErrMissingCredentials, so the server
// still starts and jobs fail with a clear code.
func NewProvider(cfg config.AIConfig) (*Provider, error) {
	p := &Provider{name: cfg.Provider, timeout: cfg.InferenceTimeout}

	switch cfg.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic, ollama", cfg.Provider)
	}

	if !cfg.HasCredentials() {
		u := unconfigured{provider: cfg.Provider}
		p.gen, p.emb = u, u
		return p, nil
	}

	var err error
	switch cfg.Provider {
	case "openai":
		if p.gen, err = openai.NewGenerator(cfg.OpenAI); err != nil {
			return nil, err
		}
		p.emb, err = openai.NewEmbedder(cfg.OpenAI)
	case "anthropic":
		if p.gen, err = anthropic.NewGenerator(cfg.Anthropic); err != nil {
			return nil, err
		}
		p.emb, err = openai.NewEmbedder(cfg.OpenAI)
	case "ollama":
		if p.gen, err = ollama.NewGenerator(cfg.Ollama); err != nil {
			return nil, err
		}
		p.emb, err = ollama.NewEmbedder(cfg.Ollama)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Wrap applies timeout and error classification to an arbitrary generator
// and embedder. Tests use it with mock backends.
func Wrap(name string, gen models.Generator, emb models.Embedder, timeout time.Duration) *Provider {
	return &Provider{name: name, gen: gen, emb: emb, timeout: timeout}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) GenerateText(ctx context.Context, prompt models.Prompt) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := p.gen.GenerateText(ctx, prompt)
	return out, classify(p.name, err)
}

func (p *Provider) GenerateJSON(ctx context.Context, prompt models.Prompt, out any) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return classify(p.name, p.gen.GenerateJSON(ctx, prompt, out))
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	vec, err := p.emb.Embed(ctx, text)
	return vec, classify(p.name, err)
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	vecs, err := p.emb.EmbedBatch(ctx, texts)
	return vecs, classify(p.name, err)
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// unconfigured stands in when credentials are absent.
type unconfigured struct {
	provider string
}

func (u unconfigured) err() error {
	return &ConfigError{Provider: u.provider, Err: ErrMissingCredentials}
}

func (u unconfigured) GenerateText(context.Context, models.Prompt) (string, error) {
	return "", u.err()
}

func (u unconfigured) GenerateJSON(context.Context, models.Prompt, any) error {
	return u.err()
}

func (u unconfigured) Embed(context.Context, string) ([]float32, error) {
	return nil, u.err()
}

func (u unconfigured) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, u.err()
}

var (
	_ models.Generator = (*Provider)(nil)
	_ models.Embedder  = (*Provider)(nil)
)
