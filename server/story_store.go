package server

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Story record types.
const (
	RecordTypeGenerate = "generate"
	RecordTypeRewrite  = "rewrite"
)

// StoryRecord is one saved generation or rewrite. Records belong to the user
// identified by the token subject that created them; the favorite flag is the
// only mutable field.
type StoryRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ChildName  string    `json:"child_name"`
	Prompt     string    `json:"prompt"`
	Story      string    `json:"story"`
	Age        int       `json:"age"`
	IsFavorite bool      `json:"is_favorite"`
	Mode       string    `json:"mode"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Sentinel errors for story store operations.
var (
	ErrRecordNotFound  = errors.New("story record not found")
	ErrInvalidRecord   = errors.New("invalid story record")
	ErrInvalidRecordID = errors.New("invalid story record id")
)

// StoryStore persists story history records. The unified model holds both
// plain history and favorites in one collection, distinguished by the
// is_favorite flag.
type StoryStore interface {
	// Save inserts a new history record.
	Save(ctx context.Context, rec StoryRecord) error

	// List returns a user's records, newest first, up to limit.
	List(ctx context.Context, userID string, limit int) ([]StoryRecord, error)

	// ListFavorites returns a user's favorite records, newest first.
	ListFavorites(ctx context.Context, userID string, limit int) ([]StoryRecord, error)

	// SetFavorite flips the favorite flag on the record matching the
	// user/prompt/story triple, inserting the record if absent.
	SetFavorite(ctx context.Context, rec StoryRecord, favorite bool) error

	// Delete removes a record by id, scoped to its owning user. Returns
	// ErrRecordNotFound when the id is absent or owned by someone else.
	Delete(ctx context.Context, userID, id string) error

	// PruneOlderThan deletes non-favorite records created before the
	// cutoff, returning how many were removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	minListLimit = 1
	maxListLimit = 200
)

func clampListLimit(limit int) int {
	if limit < minListLimit {
		return minListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// validateStoryRecord checks required fields before persistence. A child
// name is required on fresh saves but not on favorite upserts, which may
// backfill records created before names were extracted.
func validateStoryRecord(rec StoryRecord, requireChildName bool) error {
	if strings.TrimSpace(rec.UserID) == "" ||
		strings.TrimSpace(rec.Prompt) == "" ||
		strings.TrimSpace(rec.Story) == "" {
		return ErrInvalidRecord
	}
	if requireChildName && strings.TrimSpace(rec.ChildName) == "" {
		return ErrInvalidRecord
	}
	if rec.Type != RecordTypeGenerate && rec.Type != RecordTypeRewrite {
		return ErrInvalidRecord
	}
	return nil
}
