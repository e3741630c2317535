// Package ai wraps the inference providers used for titles, summaries,
// embeddings and question answering.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned when no inference provider is available.
var ErrNotConfigured = errors.New("ai provider not configured")

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a chat completion.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// Embedder converts texts to vectors. The result has one vector per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is a configured inference backend.
type Provider interface {
	Completer
	Embedder
	Name() string
	CheckConfiguration(ctx context.Context) error
}

// MaxEmbeddingBatch bounds the number of inputs sent in one embedding request.
const MaxEmbeddingBatch = 16

// EmbedAll embeds texts in batches of MaxEmbeddingBatch. Inputs are trimmed and
// empty inputs are sent as a single space so positions are preserved.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxEmbeddingBatch {
		end := start + MaxEmbeddingBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			t = strings.TrimSpace(t)
			if t == "" {
				t = " "
			}
			batch = append(batch, t)
		}
		vectors, err := e.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, errors.New("embedding count does not match input count")
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// TimestampTitle is the placeholder title used until a generated one is available.
func TimestampTitle(now time.Time) string {
	return "Note - " + now.Format("Jan 2, 2006 3:04 PM")
}
