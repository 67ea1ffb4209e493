package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned for an unrecognised provider type.
var ErrUnknownProvider = errors.New("unknown provider")

// GeneratorConfig selects and configures one generation backend.
// It mirrors config.GenerationCfg with the API key already resolved.
type GeneratorConfig struct {
	Type    string // "gemini", "openai", "openrouter", "mock"
	Model   string
	APIKey  string
	BaseURL string
}

// NewGenerator builds a Generator from configuration.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (Generator, error) {
	switch cfg.Type {
	case GeminiName, "":
		return NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.APIKey, DefaultModel: cfg.Model})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.Model}), nil
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.Model}), nil
	case MockName:
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Type)
	}
}

// Close releases a generator that holds a connection.
func Close(g Generator) error {
	if c, ok := g.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
