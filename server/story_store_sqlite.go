package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const storySQLiteSchema = `
CREATE TABLE IF NOT EXISTS story_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	child_name TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	story TEXT NOT NULL,
	age INTEGER NOT NULL DEFAULT 0,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	mode TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_story_history_user ON story_history(user_id);
CREATE INDEX IF NOT EXISTS idx_story_history_created ON story_history(created_at);
`

// StorySQLiteStore persists story history records in SQLite using the
// unified history-plus-favorite-flag model.
type StorySQLiteStore struct {
	db *sql.DB
}

// NewStorySQLiteStore creates a SQLite-backed story store on an existing
// database connection, creating the schema and indexes if needed.
func NewStorySQLiteStore(db *sql.DB) (*StorySQLiteStore, error) {
	if db == nil {
		return nil, errors.New("story sqlite store: db is nil")
	}
	if _, err := db.Exec(storySQLiteSchema); err != nil {
		return nil, fmt.Errorf("story sqlite store create schema: %w", err)
	}
	return &StorySQLiteStore{db: db}, nil
}

// Save inserts a new history record.
func (s *StorySQLiteStore) Save(ctx context.Context, rec StoryRecord) error {
	if err := validateStoryRecord(rec, true); err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO story_history (id, user_id, child_name, prompt, story, age, is_favorite, mode, type, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.ChildName,
		rec.Prompt,
		rec.Story,
		rec.Age,
		boolToInt(rec.IsFavorite),
		rec.Mode,
		rec.Type,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("story sqlite store save: %w", err)
	}
	return nil
}

// List returns a user's records, newest first.
func (s *StorySQLiteStore) List(ctx context.Context, userID string, limit int) ([]StoryRecord, error) {
	return s.list(ctx, userID, limit, false)
}

// ListFavorites returns a user's favorite records, newest first.
func (s *StorySQLiteStore) ListFavorites(ctx context.Context, userID string, limit int) ([]StoryRecord, error) {
	return s.list(ctx, userID, limit, true)
}

func (s *StorySQLiteStore) list(ctx context.Context, userID string, limit int, favoritesOnly bool) ([]StoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRecord
	}

	query := `
SELECT id, user_id, child_name, prompt, story, age, is_favorite, mode, type, created_at, updated_at
FROM story_history
WHERE user_id = ?`
	if favoritesOnly {
		query += " AND is_favorite = 1"
	}
	query += " ORDER BY created_at DESC LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, userID, clampListLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("story sqlite store list: %w", err)
	}
	defer rows.Close()

	var records []StoryRecord
	for rows.Next() {
		rec, err := scanStoryRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("story sqlite store list rows: %w", err)
	}
	return records, nil
}

// SetFavorite flips the favorite flag on the matching record, inserting it
// when absent.
func (s *StorySQLiteStore) SetFavorite(ctx context.Context, rec StoryRecord, favorite bool) error {
	if err := validateStoryRecord(rec, false); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
UPDATE story_history
SET is_favorite = ?, updated_at = ?
WHERE user_id = ? AND prompt = ? AND story = ?`,
		boolToInt(favorite), now, rec.UserID, rec.Prompt, rec.Story,
	)
	if err != nil {
		return fmt.Errorf("story sqlite store set favorite: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("story sqlite store set favorite affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO story_history (id, user_id, child_name, prompt, story, age, is_favorite, mode, type, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		rec.UserID,
		rec.ChildName,
		rec.Prompt,
		rec.Story,
		rec.Age,
		boolToInt(favorite),
		rec.Mode,
		rec.Type,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("story sqlite store insert favorite: %w", err)
	}
	return nil
}

// Delete removes a record by id, scoped to its owning user.
func (s *StorySQLiteStore) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidRecordID
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM story_history
WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("story sqlite store delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("story sqlite store delete affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// PruneOlderThan deletes non-favorite records created before the cutoff.
func (s *StorySQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM story_history
WHERE is_favorite = 0 AND created_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("story sqlite store prune: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("story sqlite store prune affected rows: %w", err)
	}
	return affected, nil
}

func scanStoryRecord(rows *sql.Rows) (StoryRecord, error) {
	var (
		rec        StoryRecord
		favorite   int
		createdRaw string
		updatedRaw string
	)
	err := rows.Scan(
		&rec.ID, &rec.UserID, &rec.ChildName, &rec.Prompt, &rec.Story,
		&rec.Age, &favorite, &rec.Mode, &rec.Type, &createdRaw, &updatedRaw,
	)
	if err != nil {
		return StoryRecord{}, fmt.Errorf("story sqlite store scan: %w", err)
	}
	rec.IsFavorite = favorite != 0
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return StoryRecord{}, fmt.Errorf("story sqlite store parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedRaw); err != nil {
		return StoryRecord{}, fmt.Errorf("story sqlite store parse updated_at: %w", err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
