package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/seanotes/seanotes/internal/app/domain/environment"
	"github.com/seanotes/seanotes/internal/app/domain/invoice"
	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.NoteStore = (*Store)(nil)
var _ storage.ChunkStore = (*Store)(nil)
var _ storage.EnvironmentStore = (*Store)(nil)
var _ storage.TokenStore = (*Store)(nil)
var _ storage.InvoiceStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and applies pool limits.
func Open(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapError converts driver errors into storage sentinels.
func mapError(kind string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", kind, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", kind, storage.ErrConflict)
	}
	return fmt.Errorf("%s: %w", kind, err)
}

func requireRows(kind string, result sql.Result) error {
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("%s: %w", kind, storage.ErrNotFound)
	}
	return nil
}

func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// --- UserStore ---------------------------------------------------------------

type userRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	Email             string         `db:"email"`
	PasswordHash      string         `db:"password_hash"`
	Image             string         `db:"image"`
	Role              string         `db:"role"`
	CreatedAt         time.Time      `db:"created_at"`
	VerificationToken sql.NullString `db:"verification_token"`
	EmailVerified     bool           `db:"email_verified"`
	SummariesEnabled  bool           `db:"summaries_enabled"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:                r.ID,
		Name:              r.Name,
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		Image:             r.Image,
		Role:              user.ParseRole(r.Role),
		CreatedAt:         r.CreatedAt.UTC(),
		VerificationToken: r.VerificationToken.String,
		EmailVerified:     r.EmailVerified,
		SummariesEnabled:  r.SummariesEnabled,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const userColumns = `id, name, email, password_hash, image, role, created_at, verification_token, email_verified, summaries_enabled`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	u.Email = user.NormalizeEmail(u.Email)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Image, string(u.Role), u.CreatedAt,
		nullString(u.VerificationToken), u.EmailVerified, u.SummariesEnabled)
	if err != nil {
		return user.User{}, mapError("create user", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.Email = user.NormalizeEmail(u.Email)
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, image = $5, role = $6,
			verification_token = $7, email_verified = $8, summaries_enabled = $9
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Image, string(u.Role),
		nullString(u.VerificationToken), u.EmailVerified, u.SummariesEnabled)
	if err != nil {
		return user.User{}, mapError("update user", err)
	}
	if err := requireRows("update user", result); err != nil {
		return user.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		return user.User{}, mapError("get user", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.getUserWhere(ctx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUserWhere(ctx, `LOWER(email) = $1`, user.NormalizeEmail(email))
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (user.User, error) {
	if token == "" {
		return user.User{}, fmt.Errorf("get user: %w", storage.ErrNotFound)
	}
	return s.getUserWhere(ctx, `verification_token = $1`, token)
}

type userSubscriptionRow struct {
	userRow
	SubID         sql.NullString `db:"sub_id"`
	SubStatus     sql.NullString `db:"sub_status"`
	SubPlan       sql.NullString `db:"sub_plan"`
	SubCustomerID sql.NullString `db:"sub_customer_id"`
	SubCreatedAt  sql.NullTime   `db:"sub_created_at"`
}

const userFilter = `
	FROM users u
	LEFT JOIN subscriptions s ON s.user_id = u.id
	WHERE ($1 = '' OR u.name ILIKE $1 OR u.email ILIKE $1)
	  AND ($2 = '' OR s.plan = $2)
	  AND ($3 = '' OR s.status = $3)`

func (s *Store) ListUsers(ctx context.Context, q storage.UserQuery) ([]storage.UserWithSubscription, int, error) {
	pattern := likePattern(q.Search)
	args := []interface{}{pattern, string(q.Plan), string(q.Status)}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*)`+userFilter, args...); err != nil {
		return nil, 0, mapError("count users", err)
	}

	var rows []userSubscriptionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.id, u.name, u.email, u.password_hash, u.image, u.role, u.created_at,
			u.verification_token, u.email_verified, u.summaries_enabled,
			s.id AS sub_id, s.status AS sub_status, s.plan AS sub_plan,
			s.customer_id AS sub_customer_id, s.created_at AS sub_created_at`+userFilter+`
		ORDER BY u.created_at DESC, u.id DESC
		LIMIT NULLIF($4, 0) OFFSET $5
	`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, mapError("list users", err)
	}

	result := make([]storage.UserWithSubscription, 0, len(rows))
	for _, row := range rows {
		entry := storage.UserWithSubscription{User: row.toDomain()}
		if row.SubID.Valid {
			entry.Subscription = &subscription.Subscription{
				ID:         row.SubID.String,
				UserID:     row.ID,
				Status:     subscription.Status(row.SubStatus.String),
				Plan:       subscription.Plan(row.SubPlan.String),
				CustomerID: row.SubCustomerID.String,
				CreatedAt:  row.SubCreatedAt.Time.UTC(),
			}
		}
		result = append(result, entry)
	}
	return result, total, nil
}

// --- SubscriptionStore -------------------------------------------------------

type subscriptionRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Status     string    `db:"status"`
	Plan       string    `db:"plan"`
	CustomerID string    `db:"customer_id"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r subscriptionRow) toDomain() subscription.Subscription {
	return subscription.Subscription{
		ID:         r.ID,
		UserID:     r.UserID,
		Status:     subscription.Status(r.Status),
		Plan:       subscription.Plan(r.Plan),
		CustomerID: r.CustomerID,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, status, plan, customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.UserID, string(sub.Status), string(sub.Plan), sub.CustomerID, sub.CreatedAt)
	if err != nil {
		return subscription.Subscription{}, mapError("create subscription", err)
	}
	return sub, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, plan = $3, customer_id = $4
		WHERE id = $1
	`, sub.ID, string(sub.Status), string(sub.Plan), sub.CustomerID)
	if err != nil {
		return subscription.Subscription{}, mapError("update subscription", err)
	}
	if err := requireRows("update subscription", result); err != nil {
		return subscription.Subscription{}, err
	}
	return s.GetSubscriptionByUser(ctx, sub.UserID)
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID string) (subscription.Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, status, plan, customer_id, created_at
		FROM subscriptions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return subscription.Subscription{}, mapError("get subscription", err)
	}
	return row.toDomain(), nil
}

// --- NoteStore ---------------------------------------------------------------

type noteRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Summary   string    `db:"summary"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r noteRow) toDomain() note.Note {
	return note.Note{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Content:   r.Content,
		Summary:   r.Summary,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func notesFromRows(rows []noteRow) []note.Note {
	result := make([]note.Note, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result
}

const noteColumns = `id, user_id, title, content, summary, created_at, updated_at`

func noteOrder(sortBy string) string {
	switch sortBy {
	case storage.SortOldest:
		return `created_at ASC, id ASC`
	case storage.SortTitle:
		return `LOWER(title) ASC, id ASC`
	default:
		return `created_at DESC, id DESC`
	}
}

func (s *Store) CreateNote(ctx context.Context, n note.Note) (note.Note, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Title, n.Content, n.Summary, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return note.Note{}, mapError("create note", err)
	}
	return n, nil
}

func (s *Store) UpdateNote(ctx context.Context, n note.Note) (note.Note, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET title = $2, content = $3, summary = $4, updated_at = $5
		WHERE id = $1
	`, n.ID, n.Title, n.Content, n.Summary, time.Now().UTC())
	if err != nil {
		return note.Note{}, mapError("update note", err)
	}
	if err := requireRows("update note", result); err != nil {
		return note.Note{}, err
	}
	return s.GetNote(ctx, n.ID)
}

func (s *Store) GetNote(ctx context.Context, id string) (note.Note, error) {
	var row noteRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id); err != nil {
		return note.Note{}, mapError("get note", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return mapError("delete note", err)
	}
	return requireRows("delete note", result)
}

func (s *Store) ListNotes(ctx context.Context, q storage.NoteQuery) ([]note.Note, int, error) {
	pattern := likePattern(q.Search)
	filter := ` FROM notes WHERE user_id = $1 AND ($2 = '' OR title ILIKE $2 OR content ILIKE $2)`

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*)`+filter, q.UserID, pattern); err != nil {
		return nil, 0, mapError("count notes", err)
	}

	var rows []noteRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+noteColumns+filter+`
		ORDER BY `+noteOrder(q.SortBy)+`
		LIMIT NULLIF($3, 0) OFFSET $4
	`, q.UserID, pattern, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, mapError("list notes", err)
	}
	return notesFromRows(rows), total, nil
}

func (s *Store) ListAllNotes(ctx context.Context, userID string) ([]note.Note, error) {
	var rows []noteRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+noteColumns+` FROM notes WHERE user_id = $1 ORDER BY `+noteOrder(storage.SortNewest), userID)
	if err != nil {
		return nil, mapError("list notes", err)
	}
	return notesFromRows(rows), nil
}

func (s *Store) CountNotes(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notes WHERE user_id = $1`, userID); err != nil {
		return 0, mapError("count notes", err)
	}
	return count, nil
}

// --- ChunkStore --------------------------------------------------------------

type chunkRow struct {
	ID        string    `db:"id"`
	NoteID    string    `db:"note_id"`
	UserID    string    `db:"user_id"`
	Content   string    `db:"content"`
	Position  int       `db:"position"`
	Embedding []byte    `db:"embedding"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) ReplaceNoteChunks(ctx context.Context, noteID string, chunks []note.Chunk) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError("begin chunk replace", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM note_chunks WHERE note_id = $1`, noteID); err != nil {
		return mapError("delete chunks", err)
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		embedding, mErr := json.Marshal(c.Embedding)
		if mErr != nil {
			err = mErr
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO note_chunks (id, note_id, user_id, content, position, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, noteID, c.UserID, c.Content, c.Position, embedding, now); err != nil {
			return mapError("insert chunk", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return mapError("commit chunks", err)
	}
	return nil
}

func (s *Store) DeleteNoteChunks(ctx context.Context, noteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM note_chunks WHERE note_id = $1`, noteID); err != nil {
		return mapError("delete chunks", err)
	}
	return nil
}

func (s *Store) ListChunksByUser(ctx context.Context, userID string) ([]note.Chunk, error) {
	var rows []chunkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, note_id, user_id, content, position, embedding, created_at
		FROM note_chunks
		WHERE user_id = $1
		ORDER BY note_id, position
	`, userID)
	if err != nil {
		return nil, mapError("list chunks", err)
	}

	result := make([]note.Chunk, 0, len(rows))
	for _, r := range rows {
		c := note.Chunk{
			ID:        r.ID,
			NoteID:    r.NoteID,
			UserID:    r.UserID,
			Content:   r.Content,
			Position:  r.Position,
			CreatedAt: r.CreatedAt.UTC(),
		}
		if len(r.Embedding) > 0 {
			if err := json.Unmarshal(r.Embedding, &c.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding for chunk %s: %w", r.ID, err)
			}
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) CountChunks(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM note_chunks WHERE user_id = $1`, userID); err != nil {
		return 0, mapError("count chunks", err)
	}
	return count, nil
}

func (s *Store) ListUsersMissingChunks(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT n.user_id
		FROM notes n
		WHERE NOT EXISTS (SELECT 1 FROM note_chunks c WHERE c.user_id = n.user_id)
		ORDER BY n.user_id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, mapError("list users missing chunks", err)
	}
	return ids, nil
}

// --- EnvironmentStore --------------------------------------------------------

type environmentRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (r environmentRow) toDomain() environment.Environment {
	return environment.Environment{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateEnvironment(ctx context.Context, env environment.Environment) (environment.Environment, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO environments (id, user_id, name, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, env.ID, env.UserID, env.Name, env.Content, env.CreatedAt)
	if err != nil {
		return environment.Environment{}, mapError("create environment", err)
	}
	return env, nil
}

func (s *Store) UpdateEnvironment(ctx context.Context, env environment.Environment) (environment.Environment, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE environments SET name = $2, content = $3 WHERE id = $1
	`, env.ID, env.Name, env.Content)
	if err != nil {
		return environment.Environment{}, mapError("update environment", err)
	}
	if err := requireRows("update environment", result); err != nil {
		return environment.Environment{}, err
	}
	return s.GetEnvironment(ctx, env.ID)
}

func (s *Store) GetEnvironment(ctx context.Context, id string) (environment.Environment, error) {
	var row environmentRow
	err := s.db.GetContext(ctx, &row, `SELECT id, user_id, name, content, created_at FROM environments WHERE id = $1`, id)
	if err != nil {
		return environment.Environment{}, mapError("get environment", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteEnvironment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return mapError("delete environment", err)
	}
	return requireRows("delete environment", result)
}

func (s *Store) ListEnvironments(ctx context.Context, q storage.EnvironmentQuery) ([]environment.Environment, error) {
	order := `created_at DESC, id DESC`
	switch q.SortBy {
	case storage.SortOldest:
		order = `created_at ASC, id ASC`
	case storage.SortName:
		order = `LOWER(name) ASC, id ASC`
	}

	var rows []environmentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, content, created_at
		FROM environments
		WHERE user_id = $1 AND ($2 = '' OR name ILIKE $2 OR content ILIKE $2)
		ORDER BY `+order, q.UserID, likePattern(q.Search))
	if err != nil {
		return nil, mapError("list environments", err)
	}
	result := make([]environment.Environment, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}

// --- TokenStore --------------------------------------------------------------

func (s *Store) CreateToken(ctx context.Context, t user.VerificationToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (identifier, token, expires)
		VALUES ($1, $2, $3)
	`, t.Identifier, t.Token, t.Expires.UTC())
	return mapError("create token", err)
}

func (s *Store) GetToken(ctx context.Context, token string) (user.VerificationToken, error) {
	var t user.VerificationToken
	err := s.db.QueryRowxContext(ctx, `
		SELECT identifier, token, expires FROM verification_tokens WHERE token = $1
	`, token).Scan(&t.Identifier, &t.Token, &t.Expires)
	if err != nil {
		return user.VerificationToken{}, mapError("get token", err)
	}
	t.Expires = t.Expires.UTC()
	return t, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE token = $1`, token)
	return mapError("delete token", err)
}

func (s *Store) DeleteTokensFor(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE identifier = $1`, identifier)
	return mapError("delete tokens", err)
}

func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires <= $1`, now.UTC())
	if err != nil {
		return 0, mapError("purge tokens", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- InvoiceStore ------------------------------------------------------------

type invoiceRow struct {
	Number    string    `db:"number"`
	UserID    string    `db:"user_id"`
	PlanName  string    `db:"plan_name"`
	Amount    float64   `db:"amount"`
	ObjectKey string    `db:"object_key"`
	CreatedAt time.Time `db:"created_at"`
}

func (r invoiceRow) toDomain() invoice.Invoice {
	return invoice.Invoice{
		Number:    r.Number,
		UserID:    r.UserID,
		PlanName:  r.PlanName,
		Amount:    r.Amount,
		ObjectKey: r.ObjectKey,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (number, user_id, plan_name, amount, object_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.Number, inv.UserID, inv.PlanName, inv.Amount, inv.ObjectKey, inv.CreatedAt)
	if err != nil {
		return invoice.Invoice{}, mapError("create invoice", err)
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, userID, number string) (invoice.Invoice, error) {
	var row invoiceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT number, user_id, plan_name, amount, object_key, created_at
		FROM invoices WHERE user_id = $1 AND number = $2
	`, userID, number)
	if err != nil {
		return invoice.Invoice{}, mapError("get invoice", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListInvoices(ctx context.Context, userID string) ([]invoice.Invoice, error) {
	var rows []invoiceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT number, user_id, plan_name, amount, object_key, created_at
		FROM invoices WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapError("list invoices", err)
	}
	result := make([]invoice.Invoice, len(rows))
	for i, r := range rows {
		result[i] = r.toDomain()
	}
	return result, nil
}
