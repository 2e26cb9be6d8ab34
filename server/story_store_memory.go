package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoryMemoryStore is an in-memory StoryStore for tests and local use.
type StoryMemoryStore struct {
	mu      sync.RWMutex
	records []StoryRecord
}

// NewStoryMemoryStore creates an empty in-memory story store.
func NewStoryMemoryStore() *StoryMemoryStore {
	return &StoryMemoryStore{}
}

// Save inserts a new history record.
func (s *StoryMemoryStore) Save(_ context.Context, rec StoryRecord) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns a user's records, newest first.
func (s *StoryMemoryStore) List(_ context.Context, userID string, limit int) ([]StoryRecord, error) {
	return s.list(userID, limit, false)
}

// ListFavorites returns a user's favorite records, newest first.
func (s *StoryMemoryStore) ListFavorites(_ context.Context, userID string, limit int) ([]StoryRecord, error) {
	return s.list(userID, limit, true)
}

func (s *StoryMemoryStore) list(userID string, limit int, favoritesOnly bool) ([]StoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRecord
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoryRecord
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if favoritesOnly && !rec.IsFavorite {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if max := clampListLimit(limit); len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// SetFavorite flips the favorite flag on the matching record, inserting it
// when absent.
func (s *StoryMemoryStore) SetFavorite(_ context.Context, rec StoryRecord, favorite bool) error {
	if err := validateStoryRecord(rec, false); err != nil {
		return err
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].UserID == rec.UserID &&
			s.records[i].Prompt == rec.Prompt &&
			s.records[i].Story == rec.Story {
			s.records[i].IsFavorite = favorite
			s.records[i].UpdatedAt = now
			return nil
		}
	}

	rec.ID = uuid.New().String()
	rec.IsFavorite = favorite
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records = append(s.records, rec)
	return nil
}

// Delete removes a record by id, scoped to its owning user.
func (s *StoryMemoryStore) Delete(_ context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidRecordID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id && s.records[i].UserID == userID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrRecordNotFound
}

// PruneOlderThan deletes non-favorite records created before the cutoff.
func (s *StoryMemoryStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []StoryRecord
	var pruned int64
	for _, rec := range s.records {
		if !rec.IsFavorite && rec.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return pruned, nil
}
