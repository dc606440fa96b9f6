// Package llm wraps the text generation backends behind one interface.
//
// Generation is treated as opaque: a prompt goes in, text or an error comes
// out. Callers decide what to do with failures.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/chat-backend/internal/config"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model is the backend's model name, e.g. "gemma3:1b".
	Model() string
	Close() error
}

// New builds the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		g, err := NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, nil)
		if err != nil {
			return nil, err
		}
		logger.Info("text generation via Ollama",
			slog.String("baseURL", cfg.OllamaBaseURL),
			slog.String("model", cfg.OllamaModel),
		)
		return g, nil
	case config.ProviderGemini:
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("text generation via Gemini", slog.String("model", cfg.GeminiModel))
		return g, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
