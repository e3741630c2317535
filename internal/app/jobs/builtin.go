package jobs

import (
	"context"
	"errors"
	"fmt"
)

// Job names.
const (
	StatusRefreshJob     = "status-refresh"
	PurgeTokensJob       = "purge-expired-tokens"
	EmbeddingBackfillJob = "embedding-backfill"
)

// Default schedules.
const (
	StatusRefreshSchedule     = "@every 5m"
	PurgeTokensSchedule       = "@hourly"
	EmbeddingBackfillSchedule = "@every 30m"
	// BackfillBatch bounds the users processed per backfill run.
	BackfillBatch = 50
)

// Refresher forces a status check.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TokenPurger deletes expired verification tokens.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int, error)
}

// MissingChunksLister finds users whose notes have no retrieval chunks.
type MissingChunksLister interface {
	ListUsersMissingChunks(ctx context.Context, limit int) ([]string, error)
}

// EmbeddingIndexer builds retrieval chunks for a user.
type EmbeddingIndexer interface {
	EnsureEmbeddings(ctx context.Context, userID string) (int, error)
}

// StatusRefresh re-runs the health checks on schedule.
func StatusRefresh(schedule string, s Refresher) Job {
	if schedule == "" {
		schedule = StatusRefreshSchedule
	}
	return Job{Name: StatusRefreshJob, Schedule: schedule, Run: s.Refresh}
}

// PurgeExpiredTokens removes stale magic link and password reset tokens.
func PurgeExpiredTokens(p TokenPurger) Job {
	return Job{
		Name:     PurgeTokensJob,
		Schedule: PurgeTokensSchedule,
		Run: func(ctx context.Context) error {
			_, err := p.PurgeExpiredTokens(ctx)
			return err
		},
	}
}

// EmbeddingBackfill indexes notes written before embeddings were enabled.
// A failure for one user does not stop the batch.
func EmbeddingBackfill(users MissingChunksLister, indexer EmbeddingIndexer) Job {
	return Job{
		Name:     EmbeddingBackfillJob,
		Schedule: EmbeddingBackfillSchedule,
		Run: func(ctx context.Context) error {
			ids, err := users.ListUsersMissingChunks(ctx, BackfillBatch)
			if err != nil {
				return fmt.Errorf("list users missing chunks: %w", err)
			}
			var errs []error
			for _, id := range ids {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if _, err := indexer.EnsureEmbeddings(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("user %s: %w", id, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}
