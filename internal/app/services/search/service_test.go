package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	svcerrors "github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

func seed(t *testing.T) (*Service, []note.Note) {
	t.Helper()
	store := memory.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inputs := []note.Note{
		{UserID: "u1", Title: "Grocery list", Content: "milk, eggs and bread", CreatedAt: base},
		{UserID: "u1", Title: "Deploy checklist", Content: "run the database migration before the deploy", CreatedAt: base.Add(24 * time.Hour)},
		{UserID: "u1", Title: "Ideas", Content: "a database of recipes, maybe with a grocery planner", CreatedAt: base.Add(48 * time.Hour)},
		{UserID: "u2", Title: "Database notes", Content: "someone else's database", CreatedAt: base},
	}
	created := make([]note.Note, 0, len(inputs))
	for _, n := range inputs {
		c, err := store.CreateNote(context.Background(), n)
		require.NoError(t, err)
		created = append(created, c)
	}
	return New(store, logging.NewDiscard()), created
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, WORLD! hello 42"))
	assert.Empty(t, Tokenize("  ,.;  "))
}

func TestScoreWeightsTitleAboveContent(t *testing.T) {
	titled := note.Note{Title: "Database", Content: "nothing here"}
	body := note.Note{Title: "Misc", Content: "database"}
	assert.Equal(t, 3.0, Score(titled, []string{"database"}, "database"))
	assert.Equal(t, 1.0, Score(body, []string{"database"}, "database"))

	phrase := note.Note{Title: "x", Content: "database migration"}
	scattered := note.Note{Title: "x", Content: "migration of the database"}
	terms := []string{"database", "migration"}
	assert.Greater(t, Score(phrase, terms, "database migration"), Score(scattered, terms, "database migration"))
}

func TestSearchRanksByRelevance(t *testing.T) {
	svc, notes := seed(t)

	results, err := svc.Search(context.Background(), Query{UserID: "u1", Terms: "database"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// both hit once in content; ties break newest first
	assert.Equal(t, notes[2].ID, results[0].Note.ID)
	assert.Equal(t, notes[1].ID, results[1].Note.ID)

	results, err = svc.Search(context.Background(), Query{UserID: "u1", Terms: "grocery"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, notes[0].ID, results[0].Note.ID, "title hit ranks first")
}

func TestSearchDateRangeAndSort(t *testing.T) {
	svc, notes := seed(t)
	from := notes[1].CreatedAt

	results, err := svc.Search(context.Background(), Query{UserID: "u1", Terms: "database grocery", From: from})
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = svc.Search(context.Background(), Query{UserID: "u1", Terms: "database grocery", SortBy: "date", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, notes[0].ID, results[0].Note.ID)
	assert.Equal(t, notes[2].ID, results[2].Note.ID)

	results, err = svc.Search(context.Background(), Query{UserID: "u1", Terms: "database grocery", SortBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, "Deploy checklist", results[0].Note.Title)
	assert.Equal(t, "Ideas", results[2].Note.Title)
}

func TestSearchValidation(t *testing.T) {
	svc, _ := seed(t)
	_, err := svc.Search(context.Background(), Query{UserID: "u1", Terms: "   "})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))

	now := time.Now()
	_, err = svc.Search(context.Background(), Query{UserID: "u1", Terms: "x", From: now, To: now.Add(-time.Hour)})
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))
}

func TestSnippetHighlights(t *testing.T) {
	snippet, hl := Snippet("Run the Database migration", []string{"database"})
	assert.Equal(t, "Run the Database migration", snippet)
	require.Len(t, hl, 1)
	assert.Equal(t, "Database", string([]rune(snippet)[hl[0].Start:hl[0].End]))

	long := make([]rune, 0, 300)
	for i := 0; i < 200; i++ {
		long = append(long, 'a')
	}
	long = append(long, []rune(" needle ")...)
	for i := 0; i < 200; i++ {
		long = append(long, 'b')
	}
	snippet, hl = Snippet(string(long), []string{"needle"})
	require.Len(t, hl, 1)
	assert.Equal(t, "...", snippet[:3])
	assert.Equal(t, "needle", string([]rune(snippet)[hl[0].Start:hl[0].End]))

	snippet, hl = Snippet("nothing", []string{"absent"})
	assert.Empty(t, snippet)
	assert.Nil(t, hl)
}
