package server

import (
	"context"
	"testing"
	"time"
)

func TestParseRetentionSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"daily at 3am", "0 3 * * *", false},
		{"every minute", "* * * * *", false},
		{"empty", "  ", true},
		{"timezone prefix", "CRON_TZ=America/New_York 0 3 * * *", true},
		{"six fields", "0 0 3 * * *", true},
		{"garbage", "banana", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRetentionSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRetentionSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestPrunerRemovesOldNonFavorites(t *testing.T) {
	store := NewStoryMemoryStore()
	ctx := context.Background()

	old := StoryRecord{
		UserID:    "u1",
		ChildName: "Emma",
		Prompt:    "an old prompt",
		Story:     "an old story",
		Age:       7,
		Type:      RecordTypeGenerate,
		CreatedAt: time.Now().UTC().Add(-60 * 24 * time.Hour),
	}
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("save old record: %v", err)
	}

	fresh := old
	fresh.Prompt = "a fresh prompt"
	fresh.CreatedAt = time.Now().UTC()
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("save fresh record: %v", err)
	}

	favorite := StoryRecord{
		UserID:    "u1",
		ChildName: "Emma",
		Prompt:    "a favorite prompt",
		Story:     "a favorite story",
		Age:       7,
		Type:      RecordTypeGenerate,
		CreatedAt: time.Now().UTC().Add(-60 * 24 * time.Hour),
	}
	if err := store.SetFavorite(ctx, favorite, true); err != nil {
		t.Fatalf("save favorite: %v", err)
	}

	p, err := NewPruner(store, "0 3 * * *", 30*24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPruner: %v", err)
	}
	p.pruneOnce(ctx)

	items, err := store.List(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d records after prune, want 2", len(items))
	}
	for _, rec := range items {
		if rec.Prompt == "an old prompt" {
			t.Fatal("old non-favorite record survived the prune")
		}
	}
}

func TestNewPrunerValidation(t *testing.T) {
	store := NewStoryMemoryStore()
	if _, err := NewPruner(nil, "0 3 * * *", time.Hour, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewPruner(store, "0 3 * * *", 0, nil); err == nil {
		t.Fatal("expected error for non-positive max age")
	}
	if _, err := NewPruner(store, "not-cron", time.Hour, nil); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
