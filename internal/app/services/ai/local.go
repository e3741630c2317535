package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

const defaultLocalDimensions = 256

// LocalProvider runs without network access. Embeddings are hashed bag-of-words
// vectors, so texts sharing words score higher; completions come from Reply or
// echo the first line of the last user message. It backs AI_PROVIDER=local and tests.
type LocalProvider struct {
	Dimensions int
	Reply      func(messages []Message, opts CompletionOptions) (string, error)
	EmbedErr   error

	completions atomic.Int64
	embeddings  atomic.Int64
}

// NewLocalProvider returns a LocalProvider with default settings.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{Dimensions: defaultLocalDimensions}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return "local" }

// CheckConfiguration implements Provider.
func (p *LocalProvider) CheckConfiguration(context.Context) error { return nil }

// Complete implements Completer.
func (p *LocalProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	p.completions.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Reply != nil {
		return p.Reply(messages, opts)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			first, _, _ := strings.Cut(strings.TrimSpace(messages[i].Content), "\n")
			return truncateRunes(first, maxTitleRunes), nil
		}
	}
	return "", nil
}

// Embed implements Embedder.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.embeddings.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	dims := p.Dimensions
	if dims <= 0 {
		dims = defaultLocalDimensions
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text, dims)
	}
	return out, nil
}

// CompletionCalls reports how many completions were requested.
func (p *LocalProvider) CompletionCalls() int { return int(p.completions.Load()) }

// EmbeddingCalls reports how many embedding requests were made.
func (p *LocalProvider) EmbeddingCalls() int { return int(p.embeddings.Load()) }

func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
