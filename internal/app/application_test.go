package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

func TestEmbedderCachesInMemoryByDefault(t *testing.T) {
	a := &Application{log: logging.NewDiscard(), Metrics: metrics.New()}
	t.Cleanup(func() { require.NoError(t, a.close()) })

	provider := ai.NewLocalProvider()
	embedder, err := a.embedder(config.AIConfig{}, provider)
	require.NoError(t, err)
	require.IsType(t, &ai.CachedEmbedder{}, embedder)

	ctx := context.Background()
	first, err := embedder.Embed(ctx, []string{"shopping list"})
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, []string{"shopping list"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.EmbeddingCalls())
}

func TestNewWiresCachedEmbedderAndReleasesIt(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.Secret = "application-test-secret"

	a, err := New(cfg, Stores{}, Dependencies{AI: ai.NewLocalProvider()}, logging.NewDiscard())
	require.NoError(t, err)
	assert.NotEmpty(t, a.closers)

	require.NoError(t, a.Stop(context.Background()))
	assert.Empty(t, a.closers)
}
