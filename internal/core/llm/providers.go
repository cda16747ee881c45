package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// Providers bundles the embedder and chat model chosen by AI_PROVIDER.
type Providers struct {
	Embedder core.EmbeddingProvider
	LLM      core.LLMProvider
	closers  []func() error
}

func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func NewProviders(ctx context.Context, cfg *config.Config) (*Providers, error) {
	switch cfg.AIProvider {
	case "openai":
		emb, err := NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		gen, err := NewOpenAILLM(cfg.OpenAIAPIKey, cfg.ChatModel)
		if err != nil {
			return nil, err
		}
		return &Providers{Embedder: emb, LLM: gen}, nil

	case "gemini":
		emb, err := NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		gen, err := NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.ChatModel)
		if err != nil {
			_ = emb.Close()
			return nil, err
		}
		return &Providers{Embedder: emb, LLM: gen, closers: []func() error{emb.Close, gen.Close}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown AI_PROVIDER %q", core.ErrInvalidConfiguration, cfg.AIProvider)
	}
}
