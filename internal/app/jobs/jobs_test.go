package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/services/noteintel"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func jobRuns(t *testing.T, m *metrics.Metrics, job, status string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "seanotes_jobs_runs_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["job"] == job && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRunNowRecordsOutcome(t *testing.T) {
	m := metrics.New()
	r := NewRunner(logging.NewDiscard(), m)
	defer r.Stop(context.Background())

	var calls atomic.Int32
	require.NoError(t, r.Add(Job{Name: "ok", Schedule: "@hourly", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}))
	require.NoError(t, r.Add(Job{Name: "fails", Schedule: "@hourly", Run: func(context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, r.Add(Job{Name: "panics", Schedule: "@hourly", Run: func(context.Context) error {
		panic("kaboom")
	}}))

	require.NoError(t, r.RunNow(context.Background(), "ok"))
	assert.EqualError(t, r.RunNow(context.Background(), "fails"), "boom")
	err := r.RunNow(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Error(t, r.RunNow(context.Background(), "missing"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1.0, jobRuns(t, m, "ok", "success"))
	assert.Equal(t, 1.0, jobRuns(t, m, "fails", "error"))
	assert.Equal(t, 1.0, jobRuns(t, m, "panics", "error"))
	assert.Equal(t, []string{"ok", "fails", "panics"}, r.Jobs())
}

func TestAddValidatesJobs(t *testing.T) {
	r := NewRunner(logging.NewDiscard(), nil)
	defer r.Stop(context.Background())
	run := func(context.Context) error { return nil }

	assert.Error(t, r.Add(Job{Name: "bad", Schedule: "every now and then", Run: run}))
	assert.Error(t, r.Add(Job{Schedule: "@hourly", Run: run}))
	require.NoError(t, r.Add(Job{Name: "dup", Schedule: "*/5 * * * *", Run: run}))
	assert.Error(t, r.Add(Job{Name: "dup", Schedule: "@hourly", Run: run}))
}

func TestStartStop(t *testing.T) {
	r := NewRunner(logging.NewDiscard(), nil)
	require.NoError(t, r.Add(Job{Name: "noop", Schedule: "@every 1h", Run: func(context.Context) error { return nil }}))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

type purger struct{ n int }

func (p *purger) PurgeExpiredTokens(context.Context) (int, error) {
	p.n++
	return 3, nil
}

type refresher struct{ err error }

func (r refresher) Refresh(context.Context) error { return r.err }

func TestBuiltinJobs(t *testing.T) {
	p := &purger{}
	job := PurgeExpiredTokens(p)
	assert.Equal(t, PurgeTokensJob, job.Name)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, p.n)

	job = StatusRefresh("@every 5m", refresher{err: context.Canceled})
	assert.Equal(t, "@every 5m", job.Schedule)
	assert.ErrorIs(t, job.Run(context.Background()), context.Canceled)
}

func TestEmbeddingBackfill(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u, err := store.CreateUser(ctx, user.User{Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	_, err = store.CreateNote(ctx, note.Note{UserID: u.ID, Title: "Groceries", Content: "Buy oat milk, coffee and bread."})
	require.NoError(t, err)

	missing, err := store.ListUsersMissingChunks(ctx, BackfillBatch)
	require.NoError(t, err)
	require.Equal(t, []string{u.ID}, missing)

	local := ai.NewLocalProvider()
	intel := noteintel.New(store, store, local, local, noteintel.Options{}, logging.NewDiscard())
	require.NoError(t, EmbeddingBackfill(store, intel).Run(ctx))

	count, err := store.CountChunks(ctx, u.ID)
	require.NoError(t, err)
	assert.Positive(t, count)

	missing, err = store.ListUsersMissingChunks(ctx, BackfillBatch)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

type failingIndexer struct{ seen []string }

func (f *failingIndexer) EnsureEmbeddings(_ context.Context, userID string) (int, error) {
	f.seen = append(f.seen, userID)
	return 0, errors.New("provider down")
}

type fixedLister []string

func (l fixedLister) ListUsersMissingChunks(context.Context, int) ([]string, error) { return l, nil }

func TestEmbeddingBackfillContinuesAfterFailure(t *testing.T) {
	idx := &failingIndexer{}
	err := EmbeddingBackfill(fixedLister{"1", "2"}, idx).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"1", "2"}, idx.seen)
	assert.Contains(t, err.Error(), "user 2")
}
