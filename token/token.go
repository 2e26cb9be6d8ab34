// Package token issues and verifies compact signed session tokens. A token
// is base64url(JSON claims payload) + "." + base64url(HMAC-SHA256 of the
// payload segment), signed with a process-wide secret. Tokens are stateless:
// there is no server-side session storage and no revocation list.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Verification failures form a closed set so callers can match the exact
// reason with errors.Is.
var (
	ErrInvalidFormat    = errors.New("token: invalid format")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrInvalidPayload   = errors.New("token: invalid payload")
	ErrExpired          = errors.New("token: expired")
	ErrInvalidClaims    = errors.New("token: invalid claims")

	// ErrNoSecret indicates missing signing configuration. This is a
	// process configuration fault, not a per-request auth failure.
	ErrNoSecret = errors.New("token: signing secret is not configured")
)

// Claims is the identity carried by a session token.
type Claims struct {
	Subject string
	Role    string
	Mode    string
}

var validRoles = map[string]struct{}{
	"Parent": {}, "Teacher": {}, "Admin": {}, "Librarian": {},
}

var validModes = map[string]struct{}{
	"home": {}, "institution": {},
}

// payload is the JSON wire shape of the signed segment.
type payload struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Mode string `json:"mode"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
}

// Signer creates and verifies tokens under a fixed secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must be non-empty.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &Signer{secret: secret, now: time.Now}, nil
}

// Issue creates a signed token for the claims, valid for ttl.
func (s *Signer) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := s.now().Unix()
	body, err := json.Marshal(payload{
		Sub:  claims.Subject,
		Role: claims.Role,
		Mode: claims.Mode,
		IAT:  now,
		EXP:  now + int64(ttl.Seconds()),
	})
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(s.sign(encoded)), nil
}

// Verify checks a token's structure, signature, expiry, and claims, and
// returns the embedded claims on success.
func (s *Signer) Verify(tok string) (Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidFormat
	}
	encoded, signature := parts[0], parts[1]

	// Strict decoding rejects non-zero trailing padding bits, so two
	// distinct signature strings never decode to the same bytes.
	provided, err := base64.RawURLEncoding.Strict().DecodeString(signature)
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	if !hmac.Equal(s.sign(encoded), provided) {
		return Claims{}, ErrInvalidSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, ErrInvalidPayload
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Claims{}, ErrInvalidPayload
	}

	if p.EXP < s.now().Unix() {
		return Claims{}, ErrExpired
	}

	if p.Sub == "" || p.Role == "" || p.Mode == "" {
		return Claims{}, ErrInvalidClaims
	}
	if _, ok := validRoles[p.Role]; !ok {
		return Claims{}, ErrInvalidClaims
	}
	if _, ok := validModes[p.Mode]; !ok {
		return Claims{}, ErrInvalidClaims
	}

	return Claims{Subject: p.Sub, Role: p.Role, Mode: p.Mode}, nil
}

func (s *Signer) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}
