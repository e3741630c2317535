package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/metrics"
)

// NewProvider selects a provider from configuration. It returns ErrNotConfigured
// when the selected provider has no credentials.
func NewProvider(ctx context.Context, cfg config.AIConfig, m *metrics.Metrics) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:            cfg.GeminiAPIKey,
			ChatModel:         cfg.GeminiChatModel,
			EmbeddingModel:    cfg.GeminiEmbedModel,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, m)
	case "local":
		return NewLocalProvider(), nil
	case "openai", "digitalocean", "":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			ChatModel:         cfg.ChatModel,
			EmbeddingModel:    cfg.EmbeddingModel,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, m)
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
}

// EmbeddingModel returns the model name used to key cached embeddings.
func EmbeddingModel(cfg config.AIConfig) string {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		return "gemini:" + cfg.GeminiEmbedModel
	case "local":
		return "local"
	default:
		return "openai:" + cfg.EmbeddingModel
	}
}
