package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/environment"
	"github.com/seanotes/seanotes/internal/app/domain/invoice"
	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	users         map[string]user.User
	usersByEmail  map[string]string
	subscriptions map[string]subscription.Subscription // keyed by user ID
	notes         map[string]note.Note
	chunks        map[string][]note.Chunk // keyed by note ID
	environments  map[string]environment.Environment
	tokens        map[string]user.VerificationToken
	invoices      map[string][]invoice.Invoice // keyed by user ID
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.NoteStore = (*Store)(nil)
var _ storage.ChunkStore = (*Store)(nil)
var _ storage.EnvironmentStore = (*Store)(nil)
var _ storage.TokenStore = (*Store)(nil)
var _ storage.InvoiceStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		users:         make(map[string]user.User),
		usersByEmail:  make(map[string]string),
		subscriptions: make(map[string]subscription.Subscription),
		notes:         make(map[string]note.Note),
		chunks:        make(map[string][]note.Chunk),
		environments:  make(map[string]environment.Environment),
		tokens:        make(map[string]user.VerificationToken),
		invoices:      make(map[string][]invoice.Invoice),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// UserStore implementation -----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := user.NormalizeEmail(u.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrConflict)
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrConflict)
	}
	u.Email = email
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, notFound("user", u.ID)
	}
	email := user.NormalizeEmail(u.Email)
	if email != original.Email {
		if owner, exists := s.usersByEmail[email]; exists && owner != u.ID {
			return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrConflict)
		}
		delete(s.usersByEmail, original.Email)
		s.usersByEmail[email] = u.ID
	}
	u.Email = email
	u.CreatedAt = original.CreatedAt

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, notFound("user", email)
	}
	return s.users[id], nil
}

func (s *Store) GetUserByVerificationToken(_ context.Context, token string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token == "" {
		return user.User{}, notFound("user", "verification token")
	}
	for _, u := range s.users {
		if u.VerificationToken == token {
			return u, nil
		}
	}
	return user.User{}, notFound("user", "verification token")
}

func (s *Store) ListUsers(_ context.Context, q storage.UserQuery) ([]storage.UserWithSubscription, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []storage.UserWithSubscription
	for _, u := range s.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(u.Email, search) {
			continue
		}
		entry := storage.UserWithSubscription{User: u}
		if sub, ok := s.subscriptions[u.ID]; ok {
			sub := sub
			entry.Subscription = &sub
		}
		if q.Plan != "" && (entry.Subscription == nil || entry.Subscription.Plan != q.Plan) {
			continue
		}
		if q.Status != "" && (entry.Subscription == nil || entry.Subscription.Status != q.Status) {
			continue
		}
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].User, matched[j].User
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return idLess(b.ID, a.ID)
	})

	total := len(matched)
	return page(matched, q.Offset, q.Limit), total, nil
}

// SubscriptionStore implementation ---------------------------------------------

func (s *Store) CreateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sub.UserID]; !ok {
		return subscription.Subscription{}, notFound("user", sub.UserID)
	}
	if _, exists := s.subscriptions[sub.UserID]; exists {
		return subscription.Subscription{}, fmt.Errorf("subscription for %s: %w", sub.UserID, storage.ErrConflict)
	}
	if sub.ID == "" {
		sub.ID = s.nextIDLocked()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	s.subscriptions[sub.UserID] = sub
	return sub, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.subscriptions[sub.UserID]
	if !ok || original.ID != sub.ID {
		return subscription.Subscription{}, notFound("subscription", sub.ID)
	}
	sub.CreatedAt = original.CreatedAt
	s.subscriptions[sub.UserID] = sub
	return sub, nil
}

func (s *Store) GetSubscriptionByUser(_ context.Context, userID string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return subscription.Subscription{}, notFound("subscription for user", userID)
	}
	return sub, nil
}

// NoteStore implementation ----------------------------------------------------

func (s *Store) CreateNote(_ context.Context, n note.Note) (note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	} else if _, exists := s.notes[n.ID]; exists {
		return note.Note{}, fmt.Errorf("note %s: %w", n.ID, storage.ErrConflict)
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	s.notes[n.ID] = n
	return n, nil
}

func (s *Store) UpdateNote(_ context.Context, n note.Note) (note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.notes[n.ID]
	if !ok {
		return note.Note{}, notFound("note", n.ID)
	}
	n.UserID = original.UserID
	n.CreatedAt = original.CreatedAt
	n.UpdatedAt = time.Now().UTC()

	s.notes[n.ID] = n
	return n, nil
}

func (s *Store) GetNote(_ context.Context, id string) (note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return note.Note{}, notFound("note", id)
	}
	return n, nil
}

func (s *Store) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return notFound("note", id)
	}
	delete(s.notes, id)
	delete(s.chunks, id)
	return nil
}

func (s *Store) ListNotes(_ context.Context, q storage.NoteQuery) ([]note.Note, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []note.Note
	for _, n := range s.notes {
		if n.UserID != q.UserID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Content), search) {
			continue
		}
		matched = append(matched, n)
	}
	sortNotes(matched, q.SortBy)

	total := len(matched)
	return page(matched, q.Offset, q.Limit), total, nil
}

func (s *Store) ListAllNotes(_ context.Context, userID string) ([]note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []note.Note
	for _, n := range s.notes {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sortNotes(result, storage.SortNewest)
	return result, nil
}

func (s *Store) CountNotes(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notes {
		if n.UserID == userID {
			count++
		}
	}
	return count, nil
}

func sortNotes(notes []note.Note, sortBy string) {
	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		switch sortBy {
		case storage.SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return idLess(a.ID, b.ID)
		case storage.SortTitle:
			at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if at != bt {
				return at < bt
			}
			return idLess(a.ID, b.ID)
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return idLess(b.ID, a.ID)
		}
	})
}

// ChunkStore implementation ---------------------------------------------------

func (s *Store) ReplaceNoteChunks(_ context.Context, noteID string, chunks []note.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[noteID]; !ok {
		return notFound("note", noteID)
	}
	now := time.Now().UTC()
	stored := make([]note.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = s.nextIDLocked()
		}
		c.NoteID = noteID
		c.CreatedAt = now
		c.Embedding = append([]float32(nil), c.Embedding...)
		stored[i] = c
	}
	if len(stored) == 0 {
		delete(s.chunks, noteID)
		return nil
	}
	s.chunks[noteID] = stored
	return nil
}

func (s *Store) DeleteNoteChunks(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, noteID)
	return nil
}

func (s *Store) ListChunksByUser(_ context.Context, userID string) ([]note.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []note.Chunk
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if c.UserID != userID {
				continue
			}
			c.Embedding = append([]float32(nil), c.Embedding...)
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].NoteID != result[j].NoteID {
			return idLess(result[i].NoteID, result[j].NoteID)
		}
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (s *Store) CountChunks(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if c.UserID == userID {
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) ListUsersMissingChunks(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	withNotes := make(map[string]bool)
	for _, n := range s.notes {
		withNotes[n.UserID] = true
	}
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			delete(withNotes, c.UserID)
		}
	}

	result := make([]string, 0, len(withNotes))
	for id := range withNotes {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return idLess(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// EnvironmentStore implementation ----------------------------------------------

func (s *Store) CreateEnvironment(_ context.Context, env environment.Environment) (environment.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.ID == "" {
		env.ID = s.nextIDLocked()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	s.environments[env.ID] = env
	return env, nil
}

func (s *Store) UpdateEnvironment(_ context.Context, env environment.Environment) (environment.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.environments[env.ID]
	if !ok {
		return environment.Environment{}, notFound("environment", env.ID)
	}
	env.UserID = original.UserID
	env.CreatedAt = original.CreatedAt
	s.environments[env.ID] = env
	return env, nil
}

func (s *Store) GetEnvironment(_ context.Context, id string) (environment.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.environments[id]
	if !ok {
		return environment.Environment{}, notFound("environment", id)
	}
	return env, nil
}

func (s *Store) DeleteEnvironment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.environments[id]; !ok {
		return notFound("environment", id)
	}
	delete(s.environments, id)
	return nil
}

func (s *Store) ListEnvironments(_ context.Context, q storage.EnvironmentQuery) ([]environment.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var result []environment.Environment
	for _, env := range s.environments {
		if env.UserID != q.UserID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(env.Name), search) &&
			!strings.Contains(strings.ToLower(env.Content), search) {
			continue
		}
		result = append(result, env)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch q.SortBy {
		case storage.SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return idLess(a.ID, b.ID)
		case storage.SortName:
			if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
				return an < bn
			}
			return idLess(a.ID, b.ID)
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return idLess(b.ID, a.ID)
		}
	})
	return result, nil
}

// TokenStore implementation ---------------------------------------------------

func (s *Store) CreateToken(_ context.Context, t user.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Token]; exists {
		return fmt.Errorf("token: %w", storage.ErrConflict)
	}
	s.tokens[t.Token] = t
	return nil
}

func (s *Store) GetToken(_ context.Context, token string) (user.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return user.VerificationToken{}, notFound("token", "")
	}
	return t, nil
}

func (s *Store) DeleteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

func (s *Store) DeleteTokensFor(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tokens {
		if t.Identifier == identifier {
			delete(s.tokens, k)
		}
	}
	return nil
}

func (s *Store) PurgeExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for k, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, k)
			purged++
		}
	}
	return purged, nil
}

// InvoiceStore implementation -------------------------------------------------

func (s *Store) CreateInvoice(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invoices[inv.UserID] {
		if existing.Number == inv.Number {
			return invoice.Invoice{}, fmt.Errorf("invoice %s: %w", inv.Number, storage.ErrConflict)
		}
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	s.invoices[inv.UserID] = append(s.invoices[inv.UserID], inv)
	return inv, nil
}

func (s *Store) GetInvoice(_ context.Context, userID, number string) (invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices[userID] {
		if inv.Number == number {
			return inv, nil
		}
	}
	return invoice.Invoice{}, notFound("invoice", number)
}

func (s *Store) ListInvoices(_ context.Context, userID string) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.invoices[userID]
	result := make([]invoice.Invoice, len(src))
	for i := range src {
		result[len(src)-1-i] = src[i]
	}
	return result, nil
}

// helpers ---------------------------------------------------------------------

// idLess orders the store's numeric IDs numerically.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
