package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiddoland/storygate/auth"
	"github.com/kiddoland/storygate/completion"
	"github.com/kiddoland/storygate/token"
)

// stubCompleter is a Completer whose responses are canned per call kind.
type stubCompleter struct {
	generateFn func(ctx context.Context, prompt string, age int) (string, error)
	rewriteFn  func(ctx context.Context, originalStory, instruction string, age int) (string, error)
	sampleFn   func(ctx context.Context, prompt string) (string, error)
}

func (c *stubCompleter) GenerateStory(ctx context.Context, prompt string, age int) (string, error) {
	if c.generateFn != nil {
		return c.generateFn(ctx, prompt, age)
	}
	return "Once upon a time, a brave child had a wonderful adventure.", nil
}

func (c *stubCompleter) RewriteStory(ctx context.Context, originalStory, instruction string, age int) (string, error) {
	if c.rewriteFn != nil {
		return c.rewriteFn(ctx, originalStory, instruction, age)
	}
	return "Once upon a time, the story ended even more happily.", nil
}

func (c *stubCompleter) SampleCompletion(ctx context.Context, prompt string) (string, error) {
	if c.sampleFn != nil {
		return c.sampleFn(ctx, prompt)
	}
	return "A tiny sample story.", nil
}

// testServer creates a Server backed by the demo credential store, an
// in-memory story store, and the given stub completion client.
func testServer(t *testing.T, completer Completer) *Server {
	t.Helper()

	signer, err := token.NewSigner([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	demo, err := auth.NewDemoStore()
	if err != nil {
		t.Fatalf("NewDemoStore: %v", err)
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Primary:  auth.NewMemoryStore(),
		Fallback: demo,
		Signer:   signer,
		TokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return NewServer(ServerConfig{
		Auth:      svc,
		Completer: completer,
		Stories:   NewStoryMemoryStore(),
	})
}

// login authenticates the demo parent account and returns its bearer token.
func login(t *testing.T, srv *Server) string {
	t.Helper()
	body := `{"email":"parent@kiddoland.local","password":"Parent123!","mode":"home"}`
	w := doJSON(srv, http.MethodPost, "/auth/login", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON performs one request against the server's full middleware stack.
func doJSON(srv *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body %q: %v", w.Body.String(), err)
	}
	return resp.Detail
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("got status %q, want %q", body["status"], "healthy")
	}
}

func TestRootBanner(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodGet, "/", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["service"] != "StoryGate API" {
		t.Fatalf("service = %q, want %q", body["service"], "StoryGate API")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodOptions, "/story/generate", "", "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS origin = %q, want %q", got, "*")
	}
}

func TestMaxBody(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	srv.maxBody = 64

	huge := fmt.Sprintf(`{"email":"parent@kiddoland.local","password":%q,"mode":"home"}`, strings.Repeat("x", 1024))
	w := doJSON(srv, http.MethodPost, "/auth/login", huge, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogin(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"parent@kiddoland.local","password":"Parent123!","mode":"home"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("access_token is empty")
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("token_type = %q, want %q", resp.TokenType, "bearer")
	}
	if resp.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
	if resp.Role != "Parent" || resp.Mode != "home" {
		t.Fatalf("role/mode = %q/%q, want Parent/home", resp.Role, resp.Mode)
	}
}

func TestLoginBadPassword(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"parent@kiddoland.local","password":"nope-nope","mode":"home"}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := decodeDetail(t, w); got != "Invalid email or password." {
		t.Fatalf("detail = %q", got)
	}
}

func TestLoginModeNotAllowed(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"parent@kiddoland.local","password":"Parent123!","mode":"institution"}`, "")

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if got := decodeDetail(t, w); got != "User is not permitted to access this mode." {
		t.Fatalf("detail = %q", got)
	}
}

func TestLoginRejectsUnknownMode(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	w := doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"parent@kiddoland.local","password":"Parent123!","mode":"castle"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeDetail(t, w); got != "Mode must be home or institution." {
		t.Fatalf("detail = %q", got)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	body := `{"email":"new@example.com","password":"Secret123!","mode":"home","role":"Parent"}`

	w := doJSON(srv, http.MethodPost, "/auth/register", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(srv, http.MethodPost, "/auth/register", body, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", w.Code, http.StatusConflict)
	}
	if got := decodeDetail(t, w); got != "An account with this email already exists." {
		t.Fatalf("detail = %q", got)
	}

	w = doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"new@example.com","password":"Secret123!","mode":"home"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := testServer(t, &stubCompleter{})

	tests := []struct {
		name string
		body string
	}{
		{"short password", `{"email":"a@b.co","password":"short","mode":"home","role":"Parent"}`},
		{"short email", `{"email":"ab","password":"Secret123!","mode":"home","role":"Parent"}`},
		{"bad role", `{"email":"a@b.co","password":"Secret123!","mode":"home","role":"Wizard"}`},
		{"bad mode", `{"email":"a@b.co","password":"Secret123!","mode":"castle","role":"Parent"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(srv, http.MethodPost, "/auth/register", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestValidate(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodGet, "/auth/validate", "", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var user auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user.ID == "" || user.Role != "Parent" || user.Mode != "home" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
}

func TestValidateRejectsBadToken(t *testing.T) {
	srv := testServer(t, &stubCompleter{})

	w := doJSON(srv, http.MethodGet, "/auth/validate", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = doJSON(srv, http.MethodGet, "/auth/validate", "", "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := decodeDetail(t, w); got != "Invalid or missing authorization token." {
		t.Fatalf("detail = %q", got)
	}
}

func TestGenerateStory(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"Tell a story about Emma and a dragon"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp storyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Story == "" {
		t.Fatal("story is empty")
	}
}

func TestGenerateRejectsUnsafePrompt(t *testing.T) {
	srv := testServer(t, &stubCompleter{
		generateFn: func(context.Context, string, int) (string, error) {
			t.Fatal("completion client must not be called for unsafe input")
			return "", nil
		},
	})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"Tell a story about killing a dragon with a gun"}`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeDetail(t, w); got != "Prompt contains unsafe content and cannot be processed." {
		t.Fatalf("detail = %q", got)
	}
}

func TestGenerateValidation(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"age too low", `{"age":0,"prompt":"a story"}`, "Age must be between 1 and 18"},
		{"age too high", `{"age":19,"prompt":"a story"}`, "Age must be between 1 and 18"},
		{"empty prompt", `{"age":7,"prompt":"   "}`, "Prompt cannot be empty"},
		{"long prompt", fmt.Sprintf(`{"age":7,"prompt":%q}`, strings.Repeat("a", 2001)), "Prompt must be between 1 and 2000 characters."},
		{"long multibyte prompt", fmt.Sprintf(`{"age":7,"prompt":%q}`, strings.Repeat("é", 2001)), "Prompt must be between 1 and 2000 characters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(srv, http.MethodPost, "/story/generate", tt.body, tok)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeDetail(t, w); got != tt.detail {
				t.Fatalf("detail = %q, want %q", got, tt.detail)
			}
		})
	}
}

func TestGenerateCountsPromptLengthInRunes(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	// 2000 two-byte characters exceed 2000 bytes but not 2000 characters.
	body := fmt.Sprintf(`{"age":7,"prompt":%q}`, strings.Repeat("é", 2000))
	w := doJSON(srv, http.MethodPost, "/story/generate", body, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestGenerateUnsafeOutputReturnsRefusal(t *testing.T) {
	srv := testServer(t, &stubCompleter{
		generateFn: func(context.Context, string, int) (string, error) {
			return "The knight decided to kill the dragon.", nil
		},
	})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"Tell a story about Emma and a dragon"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp storyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Story != generateRefusal {
		t.Fatalf("story = %q, want the refusal message", resp.Story)
	}
}

func TestGenerateMapsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"auth", &completion.Error{Kind: completion.KindAuth, Message: "invalid API token"}, http.StatusUnauthorized},
		{"model loading", &completion.Error{Kind: completion.KindModelLoading, Message: "model is loading"}, http.StatusServiceUnavailable},
		{"timeout", &completion.Error{Kind: completion.KindTimeout, Message: "request timed out"}, http.StatusGatewayTimeout},
		{"response", &completion.Error{Kind: completion.KindResponse, Message: "empty response"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &stubCompleter{
				generateFn: func(context.Context, string, int) (string, error) {
					return "", tt.err
				},
			})
			tok := login(t, srv)

			w := doJSON(srv, http.MethodPost, "/story/generate",
				`{"age":7,"prompt":"Tell a story about Emma and a dragon"}`, tok)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeDetail(t, w); !strings.HasPrefix(got, "Story generation failed: ") {
				t.Fatalf("detail = %q, want upstream-prefixed message", got)
			}
		})
	}
}

func TestGenerateSavesHistory(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"A bedtime story for a girl named Emma"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(srv, http.MethodGet, "/ai/history", "", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("got %d history items, want 1", len(hist.Items))
	}
	rec := hist.Items[0]
	if rec.ChildName != "Emma" {
		t.Fatalf("child_name = %q, want %q", rec.ChildName, "Emma")
	}
	if rec.Type != RecordTypeGenerate {
		t.Fatalf("type = %q, want %q", rec.Type, RecordTypeGenerate)
	}
	if rec.IsFavorite {
		t.Fatal("fresh history record must not be a favorite")
	}
}

func TestGenerateWithoutNameSkipsHistory(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"Tell a short story about dragons"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(srv, http.MethodGet, "/ai/history", "", tok)
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Items) != 0 {
		t.Fatalf("got %d history items, want 0", len(hist.Items))
	}
}

func TestRewriteStory(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/rewrite",
		`{"age":7,"original_story":"A story about a girl named Emma.","instruction":"Make it happier"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp storyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Story == "" {
		t.Fatal("story is empty")
	}
}

func TestRewriteRequiresChildName(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/rewrite",
		`{"age":7,"original_story":"A story about dragons.","instruction":"Make it happier"}`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeDetail(t, w); !strings.HasPrefix(got, "Child name is required.") {
		t.Fatalf("detail = %q", got)
	}
}

func TestRewriteValidation(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"age out of range", `{"age":11,"original_story":"x","instruction":"y"}`, "Age must be between 1 and 10"},
		{"empty story", `{"age":7,"original_story":" ","instruction":"Make it happier"}`, "Original story cannot be empty"},
		{"empty instruction", `{"age":7,"original_story":"A story about Emma.","instruction":" "}`, "Rewrite instruction cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(srv, http.MethodPost, "/story/rewrite", tt.body, tok)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeDetail(t, w); got != tt.detail {
				t.Fatalf("detail = %q, want %q", got, tt.detail)
			}
		})
	}
}

func TestSampleRequiresAgeAndName(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/ai/sample",
		`{"prompt":"Tell a story about a dragon"}`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no age status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeDetail(t, w); !strings.HasPrefix(got, "Child age is required in the prompt.") {
		t.Fatalf("detail = %q", got)
	}

	w = doJSON(srv, http.MethodPost, "/ai/sample",
		`{"prompt":"Tell a story about a dragon for a 7-year-old"}`, tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no name status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeDetail(t, w); !strings.HasPrefix(got, "Child name is required in the prompt.") {
		t.Fatalf("detail = %q", got)
	}
}

func TestSampleSavesHistory(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/ai/sample",
		`{"prompt":"A story for a girl named Emma, a 7-year-old"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp sampleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Output == "" {
		t.Fatal("output is empty")
	}

	w = doJSON(srv, http.MethodGet, "/ai/history", "", tok)
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("got %d history items, want 1", len(hist.Items))
	}
	if hist.Items[0].Age != 7 || hist.Items[0].ChildName != "Emma" {
		t.Fatalf("unexpected record: %+v", hist.Items[0])
	}
}

func TestSampleUnsafeOutputReturnsRefusal(t *testing.T) {
	srv := testServer(t, &stubCompleter{
		sampleFn: func(context.Context, string) (string, error) {
			return "The hero grabbed a gun and attacked everyone.", nil
		},
	})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/ai/sample",
		`{"prompt":"A story for a girl named Emma, a 7-year-old"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp sampleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Output != generateRefusal {
		t.Fatalf("output = %q, want the refusal message", resp.Output)
	}

	// The unsafe output must not land in the child's history either.
	w = doJSON(srv, http.MethodGet, "/ai/history", "", tok)
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Items) != 0 {
		t.Fatalf("got %d history items, want 0", len(hist.Items))
	}
}

func TestSaveFavorite(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/ai/save-favorite",
		`{"prompt":"A story about Emma","story":"Once upon a time...","age":7,"type":"generate"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp saveFavoriteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Saved {
		t.Fatalf("saved = false, message %q", resp.Message)
	}
	if resp.Message != "Story saved to favorites." {
		t.Fatalf("message = %q", resp.Message)
	}

	w = doJSON(srv, http.MethodGet, "/ai/favorites", "", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("favorites status = %d", w.Code)
	}
	var favorites []StoryRecord
	if err := json.Unmarshal(w.Body.Bytes(), &favorites); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(favorites) != 1 {
		t.Fatalf("got %d favorites, want 1", len(favorites))
	}
	if !favorites[0].IsFavorite {
		t.Fatal("record is not flagged as favorite")
	}
}

func TestSaveFavoriteWithoutStore(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	srv.stories = nil
	tok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/ai/save-favorite",
		`{"prompt":"A story about Emma","story":"Once upon a time...","age":7,"type":"generate"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp saveFavoriteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Saved {
		t.Fatal("saved = true without a store")
	}
	if resp.Message != "Favorite save is currently unavailable." {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestDeleteHistoryOwnerScoped(t *testing.T) {
	srv := testServer(t, &stubCompleter{})
	parentTok := login(t, srv)

	w := doJSON(srv, http.MethodPost, "/story/generate",
		`{"age":7,"prompt":"A bedtime story for a girl named Emma"}`, parentTok)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d", w.Code)
	}

	w = doJSON(srv, http.MethodGet, "/ai/history", "", parentTok)
	var hist historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hist.Items) != 1 {
		t.Fatalf("got %d history items, want 1", len(hist.Items))
	}
	id := hist.Items[0].ID

	// A different user must not be able to delete the record.
	w = doJSON(srv, http.MethodPost, "/auth/login",
		`{"email":"teacher@kiddoland.local","password":"Teacher123!","mode":"institution"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("teacher login status = %d", w.Code)
	}
	var teacherResp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &teacherResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doJSON(srv, http.MethodDelete, "/ai/history/"+id, "", teacherResp.AccessToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = doJSON(srv, http.MethodDelete, "/ai/history/"+id, "", parentTok)
	if w.Code != http.StatusNoContent {
		t.Fatalf("owner delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = doJSON(srv, http.MethodDelete, "/ai/history/"+id, "", parentTok)
	if w.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStoryEndpointsRequireAuth(t *testing.T) {
	srv := testServer(t, &stubCompleter{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/story/generate"},
		{http.MethodPost, "/story/rewrite"},
		{http.MethodPost, "/ai/sample"},
		{http.MethodPost, "/ai/save-favorite"},
		{http.MethodGet, "/ai/history"},
		{http.MethodGet, "/ai/favorites"},
		{http.MethodDelete, "/ai/history/some-id"},
	}
	for _, p := range paths {
		w := doJSON(srv, p.method, p.path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want %d", p.method, p.path, w.Code, http.StatusUnauthorized)
		}
	}
}
