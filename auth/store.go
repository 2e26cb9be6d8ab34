// Package auth implements credential storage and the authentication service:
// password verification, registration, and resolving the calling user from a
// bearer token.
package auth

import (
	"context"
	"errors"
	"time"
)

// Roles and modes accepted for credentials.
var (
	Roles = []string{"Parent", "Teacher", "Admin", "Librarian"}
	Modes = []string{"home", "institution"}
)

// Credential is a stored user account. The password is kept as a
// PBKDF2-HMAC-SHA256 salt+hash pair and never in the clear.
type Credential struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	PasswordSalt []byte    `json:"-"`
	Role         string    `json:"role"`
	Modes        []string  `json:"modes"`
	CreatedAt    time.Time `json:"created_at"`
}

// AllowsMode reports whether the credential may be used in the given mode.
// An empty allowed-modes set places no restriction.
func (c Credential) AllowsMode(mode string) bool {
	if len(c.Modes) == 0 {
		return true
	}
	for _, m := range c.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Sentinel errors for credential store operations.
var (
	ErrNotFound   = errors.New("auth: credential not found")
	ErrEmailTaken = errors.New("auth: email already registered")
)

// CredentialStore persists user credentials keyed by email
// (unique, case-insensitive).
type CredentialStore interface {
	// Create adds a new credential. Returns ErrEmailTaken if the
	// normalized email already exists.
	Create(ctx context.Context, cred Credential) error

	// GetByEmail retrieves a credential by normalized email.
	GetByEmail(ctx context.Context, email string) (Credential, bool, error)
}

func validRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

func validMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}
