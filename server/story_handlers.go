package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiddoland/storygate/auth"
	"github.com/kiddoland/storygate/completion"
	"github.com/kiddoland/storygate/safety"
)

// Input size limits for the story endpoints, counted in characters rather
// than bytes so multi-byte text is not penalized.
const (
	maxPromptLen      = 2000
	maxOriginalLen    = 10000
	maxInstructionLen = 1000
)

// Fixed refusal messages returned with 200 when generated output fails the
// safety check.
const (
	generateRefusal = "I'm sorry, but I cannot generate this story as it contains inappropriate content for children. Please try a different prompt."
	rewriteRefusal  = "I'm sorry, but the rewritten story contains inappropriate content for children. Please try a different instruction."
)

type generateRequest struct {
	Age    int    `json:"age"`
	Prompt string `json:"prompt"`
}

type rewriteRequest struct {
	Age           int    `json:"age"`
	OriginalStory string `json:"original_story"`
	Instruction   string `json:"instruction"`
}

type storyResponse struct {
	Story string `json:"story"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if req.Age < 1 || req.Age > 18 {
		writeDetail(w, http.StatusBadRequest, "Age must be between 1 and 18")
		return
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptLen {
		writeDetail(w, http.StatusBadRequest, "Prompt must be between 1 and 2000 characters.")
		return
	}

	prompt := safety.CleanForModel(req.Prompt)
	if prompt == "" {
		writeDetail(w, http.StatusBadRequest, "Prompt cannot be empty")
		return
	}
	if !safety.IsContentSafe(prompt) {
		s.metrics.RecordSafetyRejection(r.Context(), "input")
		writeDetail(w, http.StatusBadRequest, "Prompt contains unsafe content and cannot be processed.")
		return
	}

	story, err := s.complete(r.Context(), "generate", func(ctx context.Context) (string, error) {
		return s.completer.GenerateStory(ctx, prompt, req.Age)
	})
	if err != nil {
		s.writeCompletionError(w, "Story generation failed", err)
		return
	}

	if !safety.IsContentSafe(story) {
		s.metrics.RecordSafetyRejection(r.Context(), "output")
		writeJSON(w, http.StatusOK, storyResponse{Story: generateRefusal})
		return
	}

	// Extraction is best effort here: the record carries the in-prompt age
	// when one is present, the request age otherwise.
	recordAge := req.Age
	if extracted, ok := safety.ExtractAge(prompt); ok {
		recordAge = extracted
	}
	s.saveHistory(r.Context(), user, StoryRecord{
		Prompt: prompt,
		Story:  story,
		Age:    recordAge,
		Type:   RecordTypeGenerate,
	})

	writeJSON(w, http.StatusOK, storyResponse{Story: story})
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if req.Age < 1 || req.Age > 10 {
		writeDetail(w, http.StatusBadRequest, "Age must be between 1 and 10")
		return
	}
	if utf8.RuneCountInString(req.OriginalStory) > maxOriginalLen {
		writeDetail(w, http.StatusBadRequest, "Original story must be between 1 and 10000 characters.")
		return
	}
	if utf8.RuneCountInString(req.Instruction) > maxInstructionLen {
		writeDetail(w, http.StatusBadRequest, "Rewrite instruction must be between 1 and 1000 characters.")
		return
	}

	original := safety.CleanForModel(req.OriginalStory)
	if original == "" {
		writeDetail(w, http.StatusBadRequest, "Original story cannot be empty")
		return
	}
	instruction := safety.CleanForModel(req.Instruction)
	if instruction == "" {
		writeDetail(w, http.StatusBadRequest, "Rewrite instruction cannot be empty")
		return
	}
	if !safety.IsContentSafe(original) {
		s.metrics.RecordSafetyRejection(r.Context(), "input")
		writeDetail(w, http.StatusBadRequest, "Original story contains unsafe content and cannot be processed.")
		return
	}
	if !safety.IsContentSafe(instruction) {
		s.metrics.RecordSafetyRejection(r.Context(), "input")
		writeDetail(w, http.StatusBadRequest, "Rewrite instruction contains unsafe content and cannot be processed.")
		return
	}

	// The child name comes from the instruction when present, from the
	// story being rewritten otherwise.
	childName, ok := safety.ExtractChildName(instruction)
	if !ok {
		childName, ok = safety.ExtractChildName(original)
	}
	if !ok {
		writeDetail(w, http.StatusBadRequest,
			"Child name is required. Please include at least one child name in the instruction or the original story.")
		return
	}

	story, err := s.complete(r.Context(), "rewrite", func(ctx context.Context) (string, error) {
		return s.completer.RewriteStory(ctx, original, instruction, req.Age)
	})
	if err != nil {
		s.writeCompletionError(w, "Story rewriting failed", err)
		return
	}

	if !safety.IsContentSafe(story) {
		s.metrics.RecordSafetyRejection(r.Context(), "output")
		writeJSON(w, http.StatusOK, storyResponse{Story: rewriteRefusal})
		return
	}

	s.saveHistory(r.Context(), user, StoryRecord{
		ChildName: childName,
		Prompt:    instruction,
		Story:     story,
		Age:       req.Age,
		Type:      RecordTypeRewrite,
	})

	writeJSON(w, http.StatusOK, storyResponse{Story: story})
}

// complete runs one upstream completion call inside a span and records its
// duration.
func (s *Server) complete(ctx context.Context, operation string, call func(context.Context) (string, error)) (string, error) {
	tracer := otel.Tracer("storygate/server")
	ctx, span := tracer.Start(ctx, "completion."+operation,
		trace.WithAttributes(attribute.String("operation", operation)),
	)
	defer span.End()

	start := time.Now()
	out, err := call(ctx)
	s.metrics.RecordCompletion(ctx, operation, time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// writeCompletionError maps a completion client failure onto the API
// contract, carrying the upstream detail text.
func (s *Server) writeCompletionError(w http.ResponseWriter, prefix string, err error) {
	if ce, ok := completion.AsError(err); ok {
		writeDetail(w, ce.HTTPStatus(), prefix+": "+ce.Message)
		return
	}
	s.logger.Error("completion call failed", "error", err)
	writeDetail(w, http.StatusInternalServerError, prefix+".")
}

// saveHistory persists a story record on behalf of the user. Failures are
// logged and swallowed so they never abort a successful generation. Records
// with no resolvable child name are skipped.
func (s *Server) saveHistory(ctx context.Context, user auth.User, rec StoryRecord) {
	if s.stories == nil {
		return
	}
	rec.UserID = user.ID
	rec.Mode = user.Mode
	if rec.ChildName == "" {
		name, ok := safety.ExtractChildName(rec.Prompt)
		if !ok {
			s.logger.Warn("story history save skipped", "reason", "no child name in prompt", "user_id", user.ID)
			return
		}
		rec.ChildName = name
	}
	if err := s.stories.Save(ctx, rec); err != nil {
		s.logger.Warn("story history save failed", "error", err, "user_id", user.ID)
	}
}
