package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/seanotes/seanotes/internal/metrics"
)

// GeminiConfig configures the Gemini API provider.
type GeminiConfig struct {
	APIKey            string
	ChatModel         string
	EmbeddingModel    string
	RequestsPerSecond float64
}

// GeminiProvider generates content and embeddings with Google's Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, m *metrics.Metrics) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{
		client:     client,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		limiter:    newPacer(cfg.RequestsPerSecond),
		metrics:    m,
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete implements Completer. System messages become the system instruction;
// assistant turns map to the model role.
func (p *GeminiProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	start := time.Now()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.chatModel, contents, cfg)
	p.metrics.RecordAIRequest(p.Name(), "completion", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Embed implements Embedder using the native batch endpoint.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	p.metrics.RecordAIRequest(p.Name(), "embedding", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// CheckConfiguration embeds a short probe string.
func (p *GeminiProvider) CheckConfiguration(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"ping"})
	return err
}
