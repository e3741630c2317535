package storage

import (
	"context"
	"errors"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/environment"
	"github.com/seanotes/seanotes/internal/app/domain/invoice"
	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

// Sort orders accepted by list queries.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortTitle     = "title"
	SortName      = "name"
	SortRelevance = "relevance"
	SortDate      = "date"
)

// UserQuery filters the administrative user listing.
type UserQuery struct {
	Search string
	Plan   subscription.Plan
	Status subscription.Status
	Offset int
	Limit  int
}

// UserWithSubscription pairs a user with their current subscription, if any.
type UserWithSubscription struct {
	User         user.User                  `json:"user"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
}

// NoteQuery filters and pages a user's notes.
type NoteQuery struct {
	UserID string
	Search string
	SortBy string
	Offset int
	Limit  int
}

// EnvironmentQuery filters a user's environments.
type EnvironmentQuery struct {
	UserID string
	Search string
	SortBy string
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (user.User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]UserWithSubscription, int, error)
}

// SubscriptionStore persists billing subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (subscription.Subscription, error)
}

// NoteStore persists notes.
type NoteStore interface {
	CreateNote(ctx context.Context, n note.Note) (note.Note, error)
	UpdateNote(ctx context.Context, n note.Note) (note.Note, error)
	GetNote(ctx context.Context, id string) (note.Note, error)
	DeleteNote(ctx context.Context, id string) error
	ListNotes(ctx context.Context, q NoteQuery) ([]note.Note, int, error)
	ListAllNotes(ctx context.Context, userID string) ([]note.Note, error)
	CountNotes(ctx context.Context, userID string) (int, error)
}

// ChunkStore persists embedded note chunks.
type ChunkStore interface {
	ReplaceNoteChunks(ctx context.Context, noteID string, chunks []note.Chunk) error
	DeleteNoteChunks(ctx context.Context, noteID string) error
	ListChunksByUser(ctx context.Context, userID string) ([]note.Chunk, error)
	CountChunks(ctx context.Context, userID string) (int, error)
	ListUsersMissingChunks(ctx context.Context, limit int) ([]string, error)
}

// EnvironmentStore persists environments.
type EnvironmentStore interface {
	CreateEnvironment(ctx context.Context, env environment.Environment) (environment.Environment, error)
	UpdateEnvironment(ctx context.Context, env environment.Environment) (environment.Environment, error)
	GetEnvironment(ctx context.Context, id string) (environment.Environment, error)
	DeleteEnvironment(ctx context.Context, id string) error
	ListEnvironments(ctx context.Context, q EnvironmentQuery) ([]environment.Environment, error)
}

// TokenStore persists verification tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, t user.VerificationToken) error
	GetToken(ctx context.Context, token string) (user.VerificationToken, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokensFor(ctx context.Context, identifier string) error
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// InvoiceStore records issued invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	GetInvoice(ctx context.Context, userID, number string) (invoice.Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]invoice.Invoice, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
