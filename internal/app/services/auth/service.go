// Package auth implements sign-up, password and passwordless login, e-mail
// verification and password resets.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/seanotes/seanotes/internal/app/domain/subscription"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/email"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/middleware"
)

const (
	// BcryptCost is the work factor for stored password hashes.
	BcryptCost = 10
	// TokenLifetime bounds magic link and password reset tokens.
	TokenLifetime = time.Hour

	MinPasswordLength = 8
	maxPasswordBytes  = 72

	MethodPassword  = "password"
	MethodMagicLink = "magic_link"

	magicPrefix = "magic:"
	resetPrefix = "reset:"
)

// Subscriber gives new users their starting subscription.
type Subscriber interface {
	EnsureFreeSubscription(ctx context.Context, u user.User) (subscription.Subscription, error)
}

// UserCache is told about user writes made here.
type UserCache interface {
	Invalidate(userID string)
}

// Config holds token and link settings.
type Config struct {
	Secret      []byte
	TokenTTL    time.Duration
	AdminEmails map[string]bool
	BaseURL     string
}

// SignUpInput is the sign-up request.
type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      user.User `json:"user"`
}

// Service authenticates users.
type Service struct {
	users      storage.UserStore
	tokens     storage.TokenStore
	subscriber Subscriber
	mailer     email.Sender
	cache      UserCache
	cfg        Config
	log        *logging.Logger
	now        func() time.Time
}

// New constructs an auth service.
func New(users storage.UserStore, tokens storage.TokenStore, subscriber Subscriber, mailer email.Sender, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("auth")
	}
	if mailer == nil {
		mailer = email.NewDisabledSender(log)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		subscriber: subscriber,
		mailer:     mailer,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// AttachUserCache registers a cache to invalidate on user writes.
func (s *Service) AttachUserCache(c UserCache) {
	s.cache = c
}

// Configured reports whether sessions can be signed.
func (s *Service) Configured() bool {
	return len(s.cfg.Secret) > 0
}

// SignUp registers a user. Without e-mail delivery the address is trusted immediately.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (user.User, error) {
	name := strings.TrimSpace(in.Name)
	addr, err := validateEmail(in.Email)
	if err != nil {
		return user.User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return user.User{}, err
	}
	if name == "" {
		name = strings.SplitN(addr, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
	if err != nil {
		return user.User{}, errors.Internal("Failed to hash password", err)
	}

	role := user.RoleUser
	if s.cfg.AdminEmails[addr] {
		role = user.RoleAdmin
	}
	u := user.User{
		Name:             name,
		Email:            addr,
		PasswordHash:     string(hash),
		Role:             role,
		SummariesEnabled: true,
		EmailVerified:    !s.mailer.Enabled(),
	}
	if s.mailer.Enabled() {
		u.VerificationToken = uuid.NewString()
	}

	created, err := s.users.CreateUser(ctx, u)
	if stderrors.Is(err, storage.ErrConflict) {
		return user.User{}, errors.Conflict("User already exists")
	}
	if err != nil {
		return user.User{}, errors.Internal("Failed to create user", err)
	}

	if s.subscriber != nil {
		if _, err := s.subscriber.EnsureFreeSubscription(ctx, created); err != nil {
			s.log.WithError(err).WithField("user_id", created.ID).Warn("Failed to create free subscription")
		}
	}

	if u.VerificationToken != "" {
		link := s.link("/verify-email", url.Values{"token": {u.VerificationToken}})
		msg, err := email.VerificationEmail(created.Email, created.Name, link)
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
		if err != nil {
			s.log.WithError(err).WithField("user_id", created.ID).Warn("Failed to send verification e-mail")
		}
	}

	s.log.WithFields(map[string]interface{}{"user_id": created.ID, "role": created.Role}).Info("User signed up")
	return created, nil
}

// Login checks a password and issues a session.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	addr := user.NormalizeEmail(emailAddr)
	if addr == "" || password == "" {
		return Session{}, errors.BadRequest("Email and password are required")
	}
	u, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return Session{}, errors.Internal("Failed to load user", err)
	}
	if err != nil || u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.log.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"email": addr})
		return Session{}, errors.Unauthorized("Invalid credentials")
	}
	if !u.EmailVerified {
		return Session{}, errors.Forbidden("Email not verified")
	}
	return s.issue(u, MethodPassword)
}

// RequestMagicLink e-mails a one-hour sign-in link to an existing user.
func (s *Service) RequestMagicLink(ctx context.Context, emailAddr string) error {
	if !s.mailer.Enabled() {
		return errors.Unavailable("Email feature is disabled")
	}
	addr, err := validateEmail(emailAddr)
	if err != nil {
		return err
	}
	u, err := s.users.GetUserByEmail(ctx, addr)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("User")
	}
	if err != nil {
		return errors.Internal("Failed to load user", err)
	}

	token, err := s.createToken(ctx, magicPrefix+addr)
	if err != nil {
		return err
	}
	link := s.link("/magic-link", url.Values{"token": {token}, "email": {addr}})
	msg, err := email.MagicLinkEmail(u.Email, link)
	if err != nil {
		return errors.Internal("Failed to render e-mail", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return errors.Internal("Failed to send e-mail", err)
	}
	return nil
}

// VerifyMagicLink consumes a magic link token and issues a session. Following the link
// also proves ownership of the address.
func (s *Service) VerifyMagicLink(ctx context.Context, emailAddr, token string) (Session, error) {
	addr := user.NormalizeEmail(emailAddr)
	if addr == "" || token == "" {
		return Session{}, errors.BadRequest("Email and token are required")
	}
	if err := s.consumeToken(ctx, magicPrefix+addr, token); err != nil {
		return Session{}, err
	}
	u, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil {
		return Session{}, invalidToken()
	}
	if !u.EmailVerified {
		u.EmailVerified = true
		u.VerificationToken = ""
		if u, err = s.saveUser(ctx, u); err != nil {
			return Session{}, err
		}
	}
	return s.issue(u, MethodMagicLink)
}

// VerifyEmail marks the owner of token as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.BadRequest("Token is required")
	}
	u, err := s.users.GetUserByVerificationToken(ctx, token)
	if stderrors.Is(err, storage.ErrNotFound) {
		return invalidToken()
	}
	if err != nil {
		return errors.Internal("Failed to load user", err)
	}
	u.EmailVerified = true
	u.VerificationToken = ""
	_, err = s.saveUser(ctx, u)
	return err
}

// ForgotPassword e-mails a reset link when the address belongs to a user. It reports
// success either way so callers cannot probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	addr := user.NormalizeEmail(emailAddr)
	if addr == "" {
		return errors.BadRequest("Email is required")
	}
	u, err := s.users.GetUserByEmail(ctx, addr)
	if stderrors.Is(err, storage.ErrNotFound) {
		s.log.LogSecurityEvent(ctx, "password_reset_unknown_email", nil)
		return nil
	}
	if err != nil {
		return errors.Internal("Failed to load user", err)
	}

	if err := s.tokens.DeleteTokensFor(ctx, resetPrefix+addr); err != nil {
		return errors.Internal("Failed to clear reset tokens", err)
	}
	token, err := s.createToken(ctx, resetPrefix+addr)
	if err != nil {
		return err
	}
	link := s.link("/reset-password", url.Values{"token": {token}})
	msg, err := email.PasswordResetEmail(u.Email, u.Name, link)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("Failed to send password reset e-mail")
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if strings.TrimSpace(token) == "" {
		return errors.BadRequest("Token is required")
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	vt, err := s.tokens.GetToken(ctx, token)
	if err != nil || !strings.HasPrefix(vt.Identifier, resetPrefix) {
		return invalidToken()
	}
	if err := s.consumeToken(ctx, vt.Identifier, token); err != nil {
		return err
	}

	u, err := s.users.GetUserByEmail(ctx, strings.TrimPrefix(vt.Identifier, resetPrefix))
	if err != nil {
		return invalidToken()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return errors.Internal("Failed to hash password", err)
	}
	u.PasswordHash = string(hash)
	// the reset link reached this inbox
	u.EmailVerified = true
	if _, err := s.saveUser(ctx, u); err != nil {
		return err
	}
	s.log.LogSecurityEvent(ctx, "password_reset", map[string]interface{}{"user_id": u.ID})
	return nil
}

// PurgeExpiredTokens removes magic link and reset tokens past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int, error) {
	return s.tokens.PurgeExpiredTokens(ctx, s.now())
}

func (s *Service) issue(u user.User, method string) (Session, error) {
	if !s.Configured() {
		return Session{}, errors.Unavailable("Authentication is not configured")
	}
	token, expires, err := middleware.SignToken(s.cfg.Secret, middleware.Claims{
		UserID:     u.ID,
		Email:      u.Email,
		AuthMethod: method,
		Role:       string(u.Role),
	}, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, errors.Internal("Failed to sign token", err)
	}
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

func (s *Service) createToken(ctx context.Context, identifier string) (string, error) {
	token := uuid.NewString()
	if err := s.tokens.CreateToken(ctx, user.VerificationToken{
		Identifier: identifier,
		Token:      token,
		Expires:    s.now().Add(TokenLifetime),
	}); err != nil {
		return "", errors.Internal("Failed to store token", err)
	}
	return token, nil
}

// consumeToken deletes token if it belongs to identifier and has not expired.
func (s *Service) consumeToken(ctx context.Context, identifier, token string) error {
	vt, err := s.tokens.GetToken(ctx, token)
	if stderrors.Is(err, storage.ErrNotFound) {
		return invalidToken()
	}
	if err != nil {
		return errors.Internal("Failed to load token", err)
	}
	if vt.Identifier != identifier {
		return invalidToken()
	}
	if err := s.tokens.DeleteToken(ctx, token); err != nil {
		return errors.Internal("Failed to consume token", err)
	}
	if vt.Expired(s.now()) {
		return invalidToken()
	}
	return nil
}

func (s *Service) saveUser(ctx context.Context, u user.User) (user.User, error) {
	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, errors.Internal("Failed to update user", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(u.ID)
	}
	return updated, nil
}

func (s *Service) link(path string, q url.Values) string {
	return fmt.Sprintf("%s%s?%s", strings.TrimSuffix(s.cfg.BaseURL, "/"), path, q.Encode())
}

func invalidToken() error {
	return errors.BadRequest("Invalid or expired token")
}

func validateEmail(raw string) (string, error) {
	addr := user.NormalizeEmail(raw)
	if addr == "" {
		return "", errors.BadRequest("Email is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", errors.BadRequest("Invalid email address")
	}
	return addr, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return errors.BadRequest(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(pw) > maxPasswordBytes {
		return errors.BadRequest(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
