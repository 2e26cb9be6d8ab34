package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory credential store. It backs the built-in demo
// accounts when no persistent store is configured, and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]Credential)}
}

// Create adds a new credential.
func (s *MemoryStore) Create(_ context.Context, cred Credential) error {
	email := NormalizeEmail(cred.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return ErrEmailTaken
	}
	cred.Email = email
	s.users[email] = cred
	return nil
}

// GetByEmail retrieves a credential by normalized email.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.users[NormalizeEmail(email)]
	return cred, ok, nil
}

// demoAccounts are the built-in credentials used when no persistent store is
// configured. One account per role; salts are generated fresh each process.
// This is a degraded mode for local use, not for deployments holding real
// user data.
var demoAccounts = []struct {
	email    string
	password string
	role     string
	modes    []string
}{
	{"parent@kiddoland.local", "Parent123!", "Parent", []string{"home"}},
	{"teacher@kiddoland.local", "Teacher123!", "Teacher", []string{"institution"}},
	{"admin@kiddoland.local", "Admin123!", "Admin", []string{"institution"}},
	{"librarian@kiddoland.local", "Librarian123!", "Librarian", []string{"institution"}},
}

// NewDemoStore creates a memory store seeded with the demo accounts.
func NewDemoStore() (*MemoryStore, error) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	for _, acct := range demoAccounts {
		salt, err := NewSalt()
		if err != nil {
			return nil, err
		}
		cred := Credential{
			ID:           uuid.New().String(),
			Email:        acct.email,
			PasswordHash: HashPassword(acct.password, salt),
			PasswordSalt: salt,
			Role:         acct.role,
			Modes:        acct.modes,
			CreatedAt:    now,
		}
		if err := store.Create(context.Background(), cred); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// userListEntry is one operator-supplied account in the fallback user list.
// Either a cleartext password or a base64 hash/salt pair must be present.
type userListEntry struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	PasswordHash string   `json:"password_hash"`
	PasswordSalt string   `json:"password_salt"`
	Role         string   `json:"role"`
	Modes        []string `json:"modes"`
}

// ParseUserList decodes an operator-provided JSON credential list (the
// STORYGATE_AUTH_USERS environment value) into a seeded memory store.
func ParseUserList(raw string) (*MemoryStore, error) {
	var entries []userListEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("user list is not valid JSON: %w", err)
	}

	store := NewMemoryStore()
	now := time.Now().UTC()
	for i, entry := range entries {
		email := NormalizeEmail(entry.Email)
		role := strings.TrimSpace(entry.Role)
		if email == "" || role == "" {
			return nil, fmt.Errorf("user list entry %d: email and role are required", i)
		}

		var hash, salt []byte
		switch {
		case entry.PasswordHash != "" && entry.PasswordSalt != "":
			var err error
			hash, err = base64.StdEncoding.DecodeString(entry.PasswordHash)
			if err != nil {
				return nil, fmt.Errorf("user list entry %d: decoding password_hash: %w", i, err)
			}
			salt, err = base64.StdEncoding.DecodeString(entry.PasswordSalt)
			if err != nil {
				return nil, fmt.Errorf("user list entry %d: decoding password_salt: %w", i, err)
			}
		case entry.Password != "":
			var err error
			salt, err = NewSalt()
			if err != nil {
				return nil, err
			}
			hash = HashPassword(entry.Password, salt)
		default:
			return nil, fmt.Errorf("user list entry %d: password or password_hash/password_salt is required", i)
		}

		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		cred := Credential{
			ID:           id,
			Email:        email,
			PasswordHash: hash,
			PasswordSalt: salt,
			Role:         role,
			Modes:        entry.Modes,
			CreatedAt:    now,
		}
		if err := store.Create(context.Background(), cred); err != nil {
			return nil, fmt.Errorf("user list entry %d: %w", i, err)
		}
	}
	return store, nil
}
