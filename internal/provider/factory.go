package provider

import (
	"context"
	"fmt"
)

// NewEmbedder builds the Embedder named by cfg.Type.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.URL, cfg.Model), nil
	case "gemini":
		e, err := NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider type: %q", cfg.Type)
	}
}

// NewCompleter builds the StreamCompleter named by cfg.Type. For openai a
// non-empty URL points the client at an OpenAI-compatible server.
func NewCompleter(ctx context.Context, cfg CompleterConfig) (StreamCompleter, error) {
	switch cfg.Type {
	case "openai":
		if cfg.URL != "" {
			return NewOpenAICompatibleCompleter(cfg.APIKey, cfg.URL, cfg.Model), nil
		}
		return NewOpenAICompleter(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicCompleter(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaCompleter(cfg.URL, cfg.Model), nil
	case "gemini":
		c, err := NewGeminiCompleter(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %q", cfg.Type)
	}
}
