package llm

import (
	"context"
	"fmt"

	"redcube/internal/config"
)

// NewClientFromConfig builds a generation client for the configured provider.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.LLM.Provider {
	case "gemini", "":
		gc := DefaultGeminiConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			gc.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.LLM.Model != "" {
			gc.Model = cfg.LLM.Model
		}
		gc.Timeout = cfg.GetLLMTimeout()
		return NewGeminiClientWithConfig(gc), nil
	case "genai":
		return NewGenAIClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}
