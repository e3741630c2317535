// Package notes implements note CRUD, AI titles and summaries.
package notes

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/app/system"
	"github.com/seanotes/seanotes/internal/cache"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Indexer keeps retrieval chunks in sync with notes.
type Indexer interface {
	SyncNote(ctx context.Context, n note.Note) error
	RemoveNote(ctx context.Context, noteID string) error
}

// Notifier pushes live updates to the note owner.
type Notifier interface {
	TitleUpdated(userID, noteID, title string)
	SummaryUpdated(userID, noteID, summary string)
}

// Runner executes fire-and-forget work.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// ListQuery pages and filters a user's notes.
type ListQuery struct {
	Page     int
	PageSize int
	Search   string
	SortBy   string
}

// ListResult is one page of notes.
type ListResult struct {
	Notes []note.Note `json:"notes"`
	Total int         `json:"total"`
}

// UpdateInput holds optional note changes.
type UpdateInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Service manages notes.
type Service struct {
	store    storage.NoteStore
	users    storage.UserStore
	ai       *ai.Service
	indexer  Indexer
	notifier Notifier
	runner   Runner
	cache    *cache.Cache[ListResult]
	log      *logging.Logger
	now      func() time.Time
}

// New constructs a note service.
func New(store storage.NoteStore, users storage.UserStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("notes")
	}
	return &Service{
		store:  store,
		users:  users,
		ai:     ai.NewService(nil, log),
		runner: system.NewBackground(log),
		log:    log,
		now:    time.Now,
	}
}

// AttachAI sets the generator used for titles and summaries.
func (s *Service) AttachAI(gen *ai.Service) {
	if gen != nil {
		s.ai = gen
	}
}

// AttachIndexer sets the embedding indexer.
func (s *Service) AttachIndexer(idx Indexer) {
	s.indexer = idx
}

// AttachNotifier sets the live update publisher.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// AttachRunner sets the background task runner.
func (s *Service) AttachRunner(r Runner) {
	if r != nil {
		s.runner = r
	}
}

// AttachCache enables list caching.
func (s *Service) AttachCache(c *cache.Cache[ListResult]) {
	s.cache = c
}

// List returns one page of the user's notes.
func (s *Service) List(ctx context.Context, userID string, q ListQuery) (ListResult, error) {
	page, size := normalizePage(q.Page, q.PageSize)
	sortBy := q.SortBy
	switch sortBy {
	case storage.SortNewest, storage.SortOldest, storage.SortTitle:
	default:
		sortBy = storage.SortNewest
	}
	search := strings.TrimSpace(q.Search)

	load := func() (ListResult, error) {
		notes, total, err := s.store.ListNotes(ctx, storage.NoteQuery{
			UserID: userID,
			Search: search,
			SortBy: sortBy,
			Offset: (page - 1) * size,
			Limit:  size,
		})
		if err != nil {
			return ListResult{}, errors.Internal("Failed to fetch notes", err)
		}
		if notes == nil {
			notes = []note.Note{}
		}
		return ListResult{Notes: notes, Total: total}, nil
	}
	if s.cache == nil {
		return load()
	}
	key := fmt.Sprintf("%s:%d:%d:%s:%s", userID, page, size, sortBy, strings.ToLower(search))
	return s.cache.GetOrLoad(key, load)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Create stores a note. Without a title the note gets a timestamp title and a
// generated one is filled in later.
func (s *Service) Create(ctx context.Context, userID, title, content string) (note.Note, error) {
	if strings.TrimSpace(content) == "" {
		return note.Note{}, errors.BadRequest("Content is required")
	}
	title = strings.TrimSpace(title)
	generateTitle := title == ""
	if generateTitle {
		title = ai.TimestampTitle(s.now())
	}

	now := s.now().UTC()
	created, err := s.store.CreateNote(ctx, note.Note{
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return note.Note{}, errors.Internal("Failed to create note", err)
	}
	s.invalidate(userID)
	s.log.WithContext(ctx).WithField("note_id", created.ID).Info("note created")

	if generateTitle && s.ai.Configured() {
		s.queueTitle(created)
	}
	s.queueSync(created)
	return created, nil
}

func (s *Service) queueTitle(n note.Note) {
	placeholder := n.Title
	s.runner.Go("note-title", func(ctx context.Context) error {
		title, err := s.ai.GenerateTitle(ctx, n.Content)
		if err != nil {
			return fmt.Errorf("generate title for note %s: %w", n.ID, err)
		}
		current, err := s.store.GetNote(ctx, n.ID)
		if err != nil {
			return err
		}
		// The user renamed the note in the meantime.
		if current.Title != placeholder {
			return nil
		}
		current.Title = title
		if _, err := s.store.UpdateNote(ctx, current); err != nil {
			return err
		}
		s.invalidate(n.UserID)
		if s.notifier != nil {
			s.notifier.TitleUpdated(n.UserID, n.ID, title)
		}
		return nil
	})
}

func (s *Service) queueSync(n note.Note) {
	if s.indexer == nil {
		return
	}
	s.runner.Go("note-embeddings", func(ctx context.Context) error {
		return s.indexer.SyncNote(ctx, n)
	})
}

// Get returns a note owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (note.Note, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return note.Note{}, errors.NotFound("Note")
		}
		return note.Note{}, errors.Internal("Failed to fetch note", err)
	}
	if n.UserID != userID {
		return note.Note{}, errors.Forbidden("You do not have access to this note")
	}
	return n, nil
}

// Update changes a note's title and/or content.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (note.Note, error) {
	n, err := s.Get(ctx, userID, id)
	if err != nil {
		return note.Note{}, err
	}
	if in.Title != nil {
		if title := strings.TrimSpace(*in.Title); title != "" {
			n.Title = title
		}
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return note.Note{}, errors.BadRequest("Content is required")
		}
		n.Content = *in.Content
	}
	n.UpdatedAt = s.now().UTC()

	updated, err := s.store.UpdateNote(ctx, n)
	if err != nil {
		return note.Note{}, errors.Internal("Failed to update note", err)
	}
	s.invalidate(userID)
	s.queueSync(updated)
	return updated, nil
}

// Delete removes a note and its chunks.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, id); err != nil {
		return errors.Internal("Failed to delete note", err)
	}
	if s.indexer != nil {
		if err := s.indexer.RemoveNote(ctx, id); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("note_id", id).Warn("failed to remove note chunks")
		}
	}
	s.invalidate(userID)
	s.log.WithContext(ctx).WithField("note_id", id).Info("note deleted")
	return nil
}

// GenerateSummary stores an AI summary on the note.
func (s *Service) GenerateSummary(ctx context.Context, userID, id string) (note.Note, error) {
	if !s.ai.Configured() {
		return note.Note{}, errors.Unavailable("AI summaries are not configured")
	}
	n, err := s.Get(ctx, userID, id)
	if err != nil {
		return note.Note{}, err
	}
	if s.users != nil {
		u, err := s.users.GetUser(ctx, userID)
		if err != nil {
			return note.Note{}, errors.Internal("Failed to load user", err)
		}
		if !u.SummariesEnabled {
			return note.Note{}, errors.Forbidden("AI summaries are disabled in your preferences")
		}
	}

	summary, err := s.ai.GenerateSummary(ctx, n.Content)
	if err != nil {
		return note.Note{}, errors.Internal("Failed to generate summary", err)
	}
	return s.setSummary(ctx, n, summary)
}

// ClearSummary removes a note's summary.
func (s *Service) ClearSummary(ctx context.Context, userID, id string) (note.Note, error) {
	n, err := s.Get(ctx, userID, id)
	if err != nil {
		return note.Note{}, err
	}
	return s.setSummary(ctx, n, "")
}

func (s *Service) setSummary(ctx context.Context, n note.Note, summary string) (note.Note, error) {
	n.Summary = summary
	n.UpdatedAt = s.now().UTC()
	updated, err := s.store.UpdateNote(ctx, n)
	if err != nil {
		return note.Note{}, errors.Internal("Failed to update note", err)
	}
	s.invalidate(n.UserID)
	if s.notifier != nil {
		s.notifier.SummaryUpdated(n.UserID, n.ID, summary)
	}
	return updated, nil
}

func (s *Service) invalidate(userID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(userID + ":")
	}
}
