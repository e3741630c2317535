package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage"
)

func TestUserEmailIsUniqueCaseInsensitive(t *testing.T) {
	store := New()
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Name: "Ada", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("expected normalised email, got %q", u.Email)
	}
	if _, err := store.CreateUser(ctx, user.User{Name: "Other", Email: "ADA@example.com"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := store.GetUserByEmail(ctx, " ada@EXAMPLE.com ")
	if err != nil || got.ID != u.ID {
		t.Fatalf("lookup by email: %v %+v", err, got)
	}
}

func TestListNotesSearchSortAndPage(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	titles := []string{"Banana bread", "apple pie", "Cherry tart", "Groceries"}
	for i, title := range titles {
		_, err := store.CreateNote(ctx, note.Note{UserID: "u1", Title: title, Content: "recipe", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("create note: %v", err)
		}
	}
	if _, err := store.CreateNote(ctx, note.Note{UserID: "u2", Title: "apple", Content: "other user"}); err != nil {
		t.Fatalf("create note: %v", err)
	}

	notes, total, err := store.ListNotes(ctx, storage.NoteQuery{UserID: "u1", SortBy: storage.SortNewest, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(notes) != 2 || notes[0].Title != "Groceries" {
		t.Fatalf("unexpected newest page: total=%d notes=%+v", total, notes)
	}

	notes, _, _ = store.ListNotes(ctx, storage.NoteQuery{UserID: "u1", SortBy: storage.SortTitle})
	if notes[0].Title != "apple pie" || notes[3].Title != "Groceries" {
		t.Fatalf("unexpected title order: %+v", notes)
	}

	notes, total, _ = store.ListNotes(ctx, storage.NoteQuery{UserID: "u1", Search: "CHERRY"})
	if total != 1 || notes[0].Title != "Cherry tart" {
		t.Fatalf("unexpected search result: %+v", notes)
	}

	notes, total, _ = store.ListNotes(ctx, storage.NoteQuery{UserID: "u1", Offset: 10, Limit: 5})
	if total != 4 || len(notes) != 0 {
		t.Fatalf("expected empty page past end, got %d", len(notes))
	}
}

func TestDeleteNoteRemovesChunks(t *testing.T) {
	store := New()
	ctx := context.Background()

	n, _ := store.CreateNote(ctx, note.Note{UserID: "u1", Title: "t", Content: "c"})
	err := store.ReplaceNoteChunks(ctx, n.ID, []note.Chunk{
		{UserID: "u1", Content: "a", Position: 0, Embedding: []float32{1, 0}},
		{UserID: "u1", Content: "b", Position: 1, Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("replace chunks: %v", err)
	}
	if count, _ := store.CountChunks(ctx, "u1"); count != 2 {
		t.Fatalf("expected 2 chunks, got %d", count)
	}

	if err := store.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count, _ := store.CountChunks(ctx, "u1"); count != 0 {
		t.Fatalf("expected chunks removed, got %d", count)
	}
	if err := store.DeleteNote(ctx, n.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListUsersMissingChunks(t *testing.T) {
	store := New()
	ctx := context.Background()

	a, _ := store.CreateNote(ctx, note.Note{UserID: "a", Content: "x"})
	store.CreateNote(ctx, note.Note{UserID: "b", Content: "y"})
	store.ReplaceNoteChunks(ctx, a.ID, []note.Chunk{{UserID: "a", Content: "x"}})

	ids, err := store.ListUsersMissingChunks(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected [b], got %v", ids)
	}
}

func TestListUsersFiltersBySubscription(t *testing.T) {
	store := New()
	ctx := context.Background()

	free, _ := store.CreateUser(ctx, user.User{Name: "Free User", Email: "free@example.com"})
	pro, _ := store.CreateUser(ctx, user.User{Name: "Pro User", Email: "pro@example.com"})
	store.CreateUser(ctx, user.User{Name: "No Sub", Email: "none@example.com"})
	store.CreateSubscription(ctx, subscription.Subscription{UserID: free.ID, Plan: subscription.PlanFree, Status: subscription.StatusActive})
	store.CreateSubscription(ctx, subscription.Subscription{UserID: pro.ID, Plan: subscription.PlanPro, Status: subscription.StatusCanceled})

	users, total, err := store.ListUsers(ctx, storage.UserQuery{Plan: subscription.PlanPro})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || users[0].User.ID != pro.ID || users[0].Subscription == nil {
		t.Fatalf("unexpected result: %+v", users)
	}

	_, total, _ = store.ListUsers(ctx, storage.UserQuery{Search: "user"})
	if total != 2 {
		t.Fatalf("expected 2 users matching search, got %d", total)
	}
	_, total, _ = store.ListUsers(ctx, storage.UserQuery{Status: subscription.StatusActive})
	if total != 1 {
		t.Fatalf("expected 1 active user, got %d", total)
	}
}

func TestTokensPurge(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	store.CreateToken(ctx, user.VerificationToken{Identifier: "a@example.com", Token: "old", Expires: now.Add(-time.Minute)})
	store.CreateToken(ctx, user.VerificationToken{Identifier: "a@example.com", Token: "new", Expires: now.Add(time.Hour)})

	purged, err := store.PurgeExpiredTokens(ctx, now)
	if err != nil || purged != 1 {
		t.Fatalf("purged=%d err=%v", purged, err)
	}
	if _, err := store.GetToken(ctx, "new"); err != nil {
		t.Fatalf("expected fresh token to survive: %v", err)
	}
	store.DeleteTokensFor(ctx, "a@example.com")
	if _, err := store.GetToken(ctx, "new"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected token removed, got %v", err)
	}
}
