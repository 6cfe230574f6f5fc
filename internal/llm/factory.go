package llm

import (
	"context"
	"fmt"
	"os"

	"webnerd/internal/config"
)

// NewClientFromConfig builds the configured provider's client.
func NewClientFromConfig(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for openai provider")
		}
		return NewOpenAIFromConfig(cfg), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}

// NewClientFromEnv detects a provider from environment variables.
// Priority: OPENAI_API_KEY > GEMINI_API_KEY.
func NewClientFromEnv(ctx context.Context) (Client, error) {
	if key := os.Getenv(config.EnvOpenAIAPIKey); key != "" {
		return NewOpenAIClient(key), nil
	}
	if key := os.Getenv(config.EnvGeminiAPIKey); key != "" {
		return NewGeminiClient(ctx, key, "", 0, 0.1)
	}
	return nil, fmt.Errorf("no API key found; set OPENAI_API_KEY or GEMINI_API_KEY")
}
