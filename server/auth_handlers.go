package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kiddoland/storygate/auth"
)

// Request size limits mirrored by the login and register endpoints.
const (
	minEmailLen    = 3
	maxEmailLen    = 254
	minPasswordLen = 6
	maxPasswordLen = 128
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mode     string `json:"mode"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mode     string `json:"mode"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
	Mode        string `json:"mode"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if msg, ok := validateCredentialFields(req.Email, req.Password, req.Mode); !ok {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}

	cred, err := s.auth.Authenticate(r.Context(), req.Email, req.Password, req.Mode)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeTokenResponse(w, cred, req.Mode)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if msg, ok := validateCredentialFields(req.Email, req.Password, req.Mode); !ok {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	if req.Role == "" {
		req.Role = "Teacher"
	}

	cred, err := s.auth.Register(r.Context(), req.Email, req.Password, req.Mode, req.Role)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeTokenResponse(w, cred, req.Mode)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// validateCredentialFields checks the shared email/password/mode constraints
// and returns the rejection message on failure.
func validateCredentialFields(email, password, mode string) (string, bool) {
	email = strings.TrimSpace(email)
	if len(email) < minEmailLen || len(email) > maxEmailLen {
		return "Email must be between 3 and 254 characters.", false
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return "Password must be between 6 and 128 characters.", false
	}
	// Reject unknown modes here: a token minted for one would fail claim
	// validation on every later verify.
	if mode != "home" && mode != "institution" {
		return "Mode must be home or institution.", false
	}
	return "", true
}

func (s *Server) writeTokenResponse(w http.ResponseWriter, cred auth.Credential, mode string) {
	tok, expiresIn, err := s.auth.IssueToken(cred, mode)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Token signing is not configured on the server.")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
		Role:        cred.Role,
		Mode:        mode,
	})
}

// writeAuthError maps auth service sentinels onto the API contract.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password.")
	case errors.Is(err, auth.ErrModeNotAllowed):
		writeDetail(w, http.StatusForbidden, "User is not permitted to access this mode.")
	case errors.Is(err, auth.ErrEmailTaken):
		writeDetail(w, http.StatusConflict, "An account with this email already exists.")
	case errors.Is(err, auth.ErrNoBackingStore):
		writeDetail(w, http.StatusServiceUnavailable, "A persistent user store is not configured for registration.")
	case errors.Is(err, auth.ErrInvalidRole):
		writeDetail(w, http.StatusBadRequest, "Role must be one of Parent, Teacher, Admin, Librarian.")
	case errors.Is(err, auth.ErrInvalidMode):
		writeDetail(w, http.StatusBadRequest, "Mode must be home or institution.")
	default:
		s.logger.Error("auth operation failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Authentication backend error.")
	}
}
