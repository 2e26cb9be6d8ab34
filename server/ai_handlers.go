package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kiddoland/storygate/safety"
)

type sampleRequest struct {
	Prompt string `json:"prompt"`
}

type sampleResponse struct {
	Output string `json:"output"`
}

type saveFavoriteRequest struct {
	Prompt string `json:"prompt"`
	Story  string `json:"story"`
	Age    int    `json:"age"`
	Type   string `json:"type"`
}

type saveFavoriteResponse struct {
	Saved   bool   `json:"saved"`
	Message string `json:"message"`
}

type historyResponse struct {
	Items []StoryRecord `json:"items"`
}

// handleSample runs the raw completion pipeline. Unlike the story endpoints
// it takes no explicit age field, so both the age and the child name must be
// resolvable from the prompt itself.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptLen {
		writeDetail(w, http.StatusBadRequest, "Prompt must be between 1 and 2000 characters.")
		return
	}

	prompt := safety.CleanForModel(req.Prompt)
	if prompt == "" {
		writeDetail(w, http.StatusBadRequest, "Prompt cannot be empty.")
		return
	}
	if !safety.IsContentSafe(prompt) {
		s.metrics.RecordSafetyRejection(r.Context(), "input")
		writeDetail(w, http.StatusBadRequest, "Prompt contains unsafe content and cannot be processed.")
		return
	}

	age, ok := safety.ExtractAge(prompt)
	if !ok {
		writeDetail(w, http.StatusBadRequest,
			"Child age is required in the prompt. Please include an age between 1 and 10, for example: 'for a 7-year-old'.")
		return
	}
	childName, ok := safety.ExtractChildName(prompt)
	if !ok {
		writeDetail(w, http.StatusBadRequest,
			"Child name is required in the prompt. Please include at least one child name, for example: 'for Emma, age 7'.")
		return
	}

	output, err := s.complete(r.Context(), "sample", func(ctx context.Context) (string, error) {
		return s.completer.SampleCompletion(ctx, prompt)
	})
	if err != nil {
		s.writeCompletionError(w, "AI sample failed", err)
		return
	}

	if !safety.IsContentSafe(output) {
		s.metrics.RecordSafetyRejection(r.Context(), "output")
		writeJSON(w, http.StatusOK, sampleResponse{Output: generateRefusal})
		return
	}

	s.saveHistory(r.Context(), user, StoryRecord{
		ChildName: childName,
		Prompt:    prompt,
		Story:     output,
		Age:       age,
		Type:      RecordTypeGenerate,
	})

	writeJSON(w, http.StatusOK, sampleResponse{Output: output})
}

// handleSaveFavorite persists a story as favorite after explicit user
// action. A missing store is a soft failure: the response reports saved=false
// rather than an error.
func (s *Server) handleSaveFavorite(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req saveFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.Story) == "" {
		writeDetail(w, http.StatusBadRequest, "Prompt and story are required.")
		return
	}
	if req.Type == "" {
		req.Type = RecordTypeGenerate
	}
	if req.Type != RecordTypeGenerate && req.Type != RecordTypeRewrite {
		writeDetail(w, http.StatusBadRequest, "Type must be generate or rewrite.")
		return
	}

	if s.stories == nil {
		writeJSON(w, http.StatusOK, saveFavoriteResponse{
			Saved:   false,
			Message: "Favorite save is currently unavailable.",
		})
		return
	}

	rec := StoryRecord{
		UserID: user.ID,
		Prompt: safety.CleanForModel(req.Prompt),
		Story:  req.Story,
		Age:    req.Age,
		Mode:   user.Mode,
		Type:   req.Type,
	}
	if name, ok := safety.ExtractChildName(rec.Prompt); ok {
		rec.ChildName = name
	}
	if err := s.stories.SetFavorite(r.Context(), rec, true); err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			writeDetail(w, http.StatusBadRequest, "Invalid favorite record.")
			return
		}
		s.logger.Warn("favorite save failed", "error", err, "user_id", user.ID)
		writeJSON(w, http.StatusOK, saveFavoriteResponse{
			Saved:   false,
			Message: "Favorite save is currently unavailable.",
		})
		return
	}

	writeJSON(w, http.StatusOK, saveFavoriteResponse{
		Saved:   true,
		Message: "Story saved to favorites.",
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	items := s.listRecords(r.Context(), user.ID, 100, false)
	writeJSON(w, http.StatusOK, historyResponse{Items: items})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	items := s.listRecords(r.Context(), user.ID, 200, true)
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if s.stories == nil {
		writeDetail(w, http.StatusNotFound, "Story record not found.")
		return
	}
	if err := s.stories.Delete(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrInvalidRecordID) {
			writeDetail(w, http.StatusNotFound, "Story record not found.")
			return
		}
		s.logger.Error("story record delete failed", "error", err, "user_id", user.ID)
		writeDetail(w, http.StatusInternalServerError, "Story record delete failed.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listRecords reads a user's history, returning an empty slice when the
// store is absent or failing. Listing is read-only so failures degrade to an
// empty result rather than an error.
func (s *Server) listRecords(ctx context.Context, userID string, limit int, favoritesOnly bool) []StoryRecord {
	if s.stories == nil {
		return []StoryRecord{}
	}
	var (
		items []StoryRecord
		err   error
	)
	if favoritesOnly {
		items, err = s.stories.ListFavorites(ctx, userID, limit)
	} else {
		items, err = s.stories.List(ctx, userID, limit)
	}
	if err != nil {
		s.logger.Warn("story history list failed", "error", err, "user_id", userID)
		return []StoryRecord{}
	}
	if items == nil {
		items = []StoryRecord{}
	}
	return items
}
