package user

import (
	"strings"
	"time"
)

// Role controls access to administrative endpoints.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole normalises a role string, defaulting to RoleUser.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// User is an account holder.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Image             string    `json:"image,omitempty"`
	Role              Role      `json:"role"`
	CreatedAt         time.Time `json:"createdAt"`
	VerificationToken string    `json:"-"`
	EmailVerified     bool      `json:"emailVerified"`
	SummariesEnabled  bool      `json:"summariesEnabled"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerificationToken is a single-use token for magic links and password resets.
type VerificationToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	Expires    time.Time `json:"expires"`
}

// Expired reports whether the token is no longer valid at now.
func (t VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}

// Preferences are user-adjustable settings.
type Preferences struct {
	SummariesEnabled bool `json:"summariesEnabled"`
}
