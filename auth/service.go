package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiddoland/storygate/token"
)

// Service-level failures. Handlers map these onto HTTP statuses.
var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrModeNotAllowed     = errors.New("auth: mode not permitted for this account")
	ErrNoBackingStore     = errors.New("auth: no persistent credential store configured")
	ErrInvalidToken       = errors.New("auth: missing or invalid token")
	ErrInvalidRole        = errors.New("auth: invalid role")
	ErrInvalidMode        = errors.New("auth: invalid mode")
)

// User is the resolved identity of an authenticated caller.
type User struct {
	ID   string `json:"user_id"`
	Role string `json:"role"`
	Mode string `json:"mode"`
}

// Service authenticates credentials, issues session tokens, and resolves
// callers from bearer tokens. The primary store is the persistent backend
// and may be nil; the fallback store (demo or operator-supplied accounts)
// is consulted when the primary misses.
type Service struct {
	primary  CredentialStore
	fallback CredentialStore
	signer   *token.Signer
	tokenTTL time.Duration
	logger   *slog.Logger
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Primary  CredentialStore // persistent store, may be nil
	Fallback CredentialStore // in-memory fallback, may be nil
	Signer   *token.Signer
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// NewService creates an authentication service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Signer == nil {
		return nil, errors.New("auth: signer is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		signer:   cfg.Signer,
		tokenTTL: ttl,
		logger:   logger,
	}, nil
}

// NormalizeEmail trims and lowercases an email address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate verifies an email/password pair and checks that the account
// permits the requested mode. Lookup tries the persistent store first, then
// the fallback. Absence and password mismatch are indistinguishable to the
// caller.
func (s *Service) Authenticate(ctx context.Context, email, password, mode string) (Credential, error) {
	normalized := NormalizeEmail(email)

	cred, found, err := s.lookup(ctx, normalized)
	if err != nil {
		s.logger.Warn("credential lookup failed", "error", err)
	}
	if !found {
		return Credential{}, ErrInvalidCredentials
	}

	if !VerifyPassword(password, cred.PasswordSalt, cred.PasswordHash) {
		return Credential{}, ErrInvalidCredentials
	}
	if !cred.AllowsMode(mode) {
		return Credential{}, ErrModeNotAllowed
	}
	return cred, nil
}

// Register creates a new credential in the persistent store with the given
// role, allowed only in the requested mode.
func (s *Service) Register(ctx context.Context, email, password, mode, role string) (Credential, error) {
	if s.primary == nil {
		return Credential{}, ErrNoBackingStore
	}
	if !validRole(role) {
		return Credential{}, ErrInvalidRole
	}
	if !validMode(mode) {
		return Credential{}, ErrInvalidMode
	}

	normalized := NormalizeEmail(email)
	if _, exists, err := s.primary.GetByEmail(ctx, normalized); err != nil {
		return Credential{}, fmt.Errorf("auth: checking existing credential: %w", err)
	} else if exists {
		return Credential{}, ErrEmailTaken
	}

	salt, err := NewSalt()
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{
		ID:           uuid.New().String(),
		Email:        normalized,
		PasswordHash: HashPassword(password, salt),
		PasswordSalt: salt,
		Role:         role,
		Modes:        []string{mode},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.primary.Create(ctx, cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// IssueToken creates a session token for a credential in the given mode.
func (s *Service) IssueToken(cred Credential, mode string) (string, int, error) {
	tok, err := s.signer.Issue(token.Claims{
		Subject: cred.ID,
		Role:    cred.Role,
		Mode:    mode,
	}, s.tokenTTL)
	if err != nil {
		return "", 0, err
	}
	return tok, int(s.tokenTTL.Seconds()), nil
}

// CurrentUser resolves the caller from a bearer token. Every verification
// failure collapses to ErrInvalidToken; callers never learn which check
// failed.
func (s *Service) CurrentUser(bearer string) (User, error) {
	if strings.TrimSpace(bearer) == "" {
		return User{}, ErrInvalidToken
	}
	claims, err := s.signer.Verify(bearer)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	return User{ID: claims.Subject, Role: claims.Role, Mode: claims.Mode}, nil
}

func (s *Service) lookup(ctx context.Context, email string) (Credential, bool, error) {
	var lookupErr error
	if s.primary != nil {
		cred, found, err := s.primary.GetByEmail(ctx, email)
		if err != nil {
			lookupErr = err
		} else if found {
			return cred, true, nil
		}
	}
	if s.fallback != nil {
		cred, found, err := s.fallback.GetByEmail(ctx, email)
		if err != nil {
			lookupErr = errors.Join(lookupErr, err)
		} else if found {
			return cred, true, lookupErr
		}
	}
	return Credential{}, false, lookupErr
}
