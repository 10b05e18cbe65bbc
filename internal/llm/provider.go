package llm

import (
	"context"
	"io"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/errs"
)

// NewCompleter builds the completer selected by cfg.Provider. The returned
// closer releases the provider client and must be called on shutdown.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, io.Closer, error) {
	const op errs.Op = "llm.NewCompleter"
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg.APIKey)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.ProviderOpenAI:
		c, err := NewOpenAICompleter(OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
		if err != nil {
			return nil, nil, err
		}
		return c, closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, errs.E(errs.Config, op, "unknown AI provider "+cfg.Provider)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
