package auth

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const credentialSQLiteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	password_salt TEXT NOT NULL,
	role TEXT NOT NULL,
	modes TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

// SQLiteStore persists credentials in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed credential store on an existing
// database connection, creating the schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("auth sqlite store: db is nil")
	}
	if _, err := db.Exec(credentialSQLiteSchema); err != nil {
		return nil, fmt.Errorf("auth sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create adds a new credential record.
func (s *SQLiteStore) Create(ctx context.Context, cred Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	modes, err := json.Marshal(cred.Modes)
	if err != nil {
		return fmt.Errorf("auth sqlite store encode modes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO users (id, email, password_hash, password_salt, role, modes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		NormalizeEmail(cred.Email),
		base64.StdEncoding.EncodeToString(cred.PasswordHash),
		base64.StdEncoding.EncodeToString(cred.PasswordSalt),
		cred.Role,
		string(modes),
		cred.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("auth sqlite store create: %w", err)
	}
	return nil
}

// GetByEmail retrieves a credential by normalized email.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (Credential, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, password_salt, role, modes, created_at
FROM users
WHERE email = ?`, NormalizeEmail(email))

	var (
		cred       Credential
		hashB64    string
		saltB64    string
		modesJSON  string
		createdRaw string
	)
	err := row.Scan(&cred.ID, &cred.Email, &hashB64, &saltB64, &cred.Role, &modesJSON, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("auth sqlite store get: %w", err)
	}

	if cred.PasswordHash, err = base64.StdEncoding.DecodeString(hashB64); err != nil {
		return Credential{}, false, fmt.Errorf("auth sqlite store decode hash: %w", err)
	}
	if cred.PasswordSalt, err = base64.StdEncoding.DecodeString(saltB64); err != nil {
		return Credential{}, false, fmt.Errorf("auth sqlite store decode salt: %w", err)
	}
	if err = json.Unmarshal([]byte(modesJSON), &cred.Modes); err != nil {
		return Credential{}, false, fmt.Errorf("auth sqlite store decode modes: %w", err)
	}
	if cred.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return Credential{}, false, fmt.Errorf("auth sqlite store parse created_at: %w", err)
	}
	return cred, true, nil
}

func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
