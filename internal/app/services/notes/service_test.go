package notes

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/app/system"
	"github.com/seanotes/seanotes/internal/cache"
	svcerrors "github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

type recordingNotifier struct {
	mu        sync.Mutex
	titles    map[string]string
	summaries map[string]string
}

func (r *recordingNotifier) TitleUpdated(userID, noteID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.titles == nil {
		r.titles = map[string]string{}
	}
	r.titles[noteID] = title
}

func (r *recordingNotifier) SummaryUpdated(userID, noteID, summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summaries == nil {
		r.summaries = map[string]string{}
	}
	r.summaries[noteID] = summary
}

type recordingIndexer struct {
	mu      sync.Mutex
	synced  []string
	removed []string
}

func (r *recordingIndexer) SyncNote(_ context.Context, n note.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, n.ID)
	return nil
}

func (r *recordingIndexer) RemoveNote(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	bg       *system.Background
	notifier *recordingNotifier
	indexer  *recordingIndexer
	provider *ai.LocalProvider
}

func newFixture(t *testing.T, withAI bool) *fixture {
	t.Helper()
	store := memory.New()
	log := logging.NewDiscard()
	f := &fixture{
		store:    store,
		bg:       system.NewBackground(log),
		notifier: &recordingNotifier{},
		indexer:  &recordingIndexer{},
	}
	f.svc = New(store, store, log)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC) }
	f.svc.AttachRunner(f.bg)
	f.svc.AttachNotifier(f.notifier)
	f.svc.AttachIndexer(f.indexer)
	f.svc.AttachCache(cache.New[ListResult]("notes", 50, 10*time.Minute))
	if withAI {
		f.provider = ai.NewLocalProvider()
		f.provider.Reply = func(messages []ai.Message, opts ai.CompletionOptions) (string, error) {
			if strings.Contains(messages[0].Content, "Summarize") {
				return "A short summary.", nil
			}
			return "\"Generated Title\"", nil
		}
		f.svc.AttachAI(ai.NewService(f.provider, log))
	}
	return f
}

func (f *fixture) user(t *testing.T, summaries bool) user.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), user.User{Email: "a@example.com", Name: "A", SummariesEnabled: summaries})
	require.NoError(t, err)
	return u
}

func TestCreateRequiresContent(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Create(context.Background(), "u1", "Title", "   ")
	require.Error(t, err)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))
}

func TestCreateWithoutTitleGeneratesOneInBackground(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, "u1", "", "Plan the team offsite in June")
	require.NoError(t, err)
	assert.Equal(t, "Note - May 1, 2024 9:15 AM", created.Title)

	f.bg.Wait()
	stored, err := f.svc.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Generated Title", stored.Title)
	assert.Equal(t, "Generated Title", f.notifier.titles[created.ID])
	assert.Contains(t, f.indexer.synced, created.ID)
}

func TestCreateWithoutAIKeepsTimestampTitle(t *testing.T) {
	f := newFixture(t, false)
	created, err := f.svc.Create(context.Background(), "u1", "", "content")
	require.NoError(t, err)
	f.bg.Wait()

	stored, err := f.svc.Get(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Note - May 1, 2024 9:15 AM", stored.Title)
	assert.Empty(t, f.notifier.titles)
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, "owner", "Mine", "secret")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "intruder", created.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeForbidden))

	_, err = f.svc.Get(ctx, "owner", "does-not-exist")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeNotFound))

	err = f.svc.Delete(ctx, "intruder", created.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeForbidden))
}

func TestListPagingSearchAndCacheInvalidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for _, title := range []string{"Alpha", "beta", "Gamma"} {
		_, err := f.svc.Create(ctx, "u1", title, "body of "+title)
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, "u2", "Other", "not mine")
	require.NoError(t, err)

	res, err := f.svc.List(ctx, "u1", ListQuery{Page: 1, PageSize: 2, SortBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Notes, 2)
	assert.Equal(t, "Alpha", res.Notes[0].Title)
	assert.Equal(t, "beta", res.Notes[1].Title)

	res, err = f.svc.List(ctx, "u1", ListQuery{Search: "GAMMA"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	// Cached listing is dropped after a write.
	_, err = f.svc.Create(ctx, "u1", "Delta", "new")
	require.NoError(t, err)
	res, err = f.svc.List(ctx, "u1", ListQuery{Page: 1, PageSize: 2, SortBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, "u1", "Draft", "first")
	require.NoError(t, err)

	content := "second"
	updated, err := f.svc.Update(ctx, "u1", created.ID, UpdateInput{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Content)
	assert.Equal(t, "Draft", updated.Title)

	empty := " "
	_, err = f.svc.Update(ctx, "u1", created.ID, UpdateInput{Content: &empty})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))

	require.NoError(t, f.svc.Delete(ctx, "u1", created.ID))
	_, err = f.svc.Get(ctx, "u1", created.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeNotFound))
	assert.Equal(t, []string{created.ID}, f.indexer.removed)
}

func TestGenerateSummary(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	u := f.user(t, true)
	created, err := f.svc.Create(ctx, u.ID, "Meeting", "Long meeting notes")
	require.NoError(t, err)

	summarized, err := f.svc.GenerateSummary(ctx, u.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summarized.Summary)
	assert.Equal(t, "A short summary.", f.notifier.summaries[created.ID])

	cleared, err := f.svc.ClearSummary(ctx, u.ID, created.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Summary)
}

func TestGenerateSummaryRespectsPreferenceAndConfiguration(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	u := f.user(t, false)
	created, err := f.svc.Create(ctx, u.ID, "Meeting", "notes")
	require.NoError(t, err)

	_, err = f.svc.GenerateSummary(ctx, u.ID, created.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeForbidden))

	noAI := newFixture(t, false)
	_, err = noAI.svc.GenerateSummary(ctx, u.ID, created.ID)
	assert.True(t, svcerrors.Is(err, svcerrors.CodeServiceUnavailable))
}
