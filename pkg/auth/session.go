// Package auth implements session tokens, CSRF verification, RBAC, login
// rate limiting, and API key verification (C10). The signed-JWT session
// shape is grounded on wisbric-nightowl's internal/auth.SessionManager
// (HS256 self-signed tokens via go-jose), extended with the csrf claim and
// role ordering this system's spec requires.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

// DefaultSessionExpiry is the default token lifetime (spec §4.10).
const DefaultSessionExpiry = 8 * time.Hour

// LegacyAdminSubject is the sentinel subject treated as admin role with no
// backing user row (spec §4.10).
const LegacyAdminSubject = "admin"

// SessionClaims are the custom claims carried in a session token.
type SessionClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	CSRF    string `json:"csrf"`
}

type SessionManager struct {
	signingKey []byte
	expiry     time.Duration
}

func NewSessionManager(secret string, expiry time.Duration) (*SessionManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	return &SessionManager{signingKey: []byte(secret), expiry: expiry}, nil
}

// Issued is a freshly minted session: the bearer token plus the CSRF value
// the caller must echo on mutating requests.
type Issued struct {
	Token string
	CSRF  string
}

// Issue mints a session token for subject (a user ID, or LegacyAdminSubject)
// with a fresh random 256-bit csrf value embedded alongside it.
func (sm *SessionManager) Issue(subject, email, role string) (*Issued, error) {
	csrf, err := randomCSRF()
	if err != nil {
		return nil, fmt.Errorf("generating csrf value: %w", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: sm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(sm.expiry)),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	custom := SessionClaims{Subject: subject, Email: email, Role: role, CSRF: csrf}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Issued{Token: token, CSRF: csrf}, nil
}

// Verify checks the token's signature and expiry and returns its claims.
func (sm *SessionManager) Verify(raw string) (*SessionClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, apperr.Authentication("malformed session token")
	}

	var registered jwt.Claims
	var custom SessionClaims
	if err := tok.Claims(sm.signingKey, &registered, &custom); err != nil {
		return nil, apperr.Authentication("invalid session token signature")
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, 5*time.Second); err != nil {
		return nil, apperr.Authentication("session token expired or not yet valid")
	}

	return &custom, nil
}

// VerifyCSRF does a constant-time comparison of the csrf claim against the
// header value a mutating request must present (spec §4.10).
func VerifyCSRF(claims *SessionClaims, headerValue string) bool {
	if claims == nil || headerValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(claims.CSRF), []byte(headerValue)) == 1
}

func randomCSRF() (string, error) {
	b := make([]byte, 32) // 256 bits
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RoleLevel totally orders roles admin > manager > user, with the legacy
// sub="admin" sentinel treated as admin regardless of its nominal role
// claim (spec §4.10).
func RoleLevel(claims *SessionClaims) int {
	if claims.Subject == LegacyAdminSubject {
		return roleRank(models.RoleAdmin)
	}
	return roleRank(models.UserRole(claims.Role))
}

func roleRank(role models.UserRole) int {
	switch role {
	case models.RoleAdmin:
		return 3
	case models.RoleManager:
		return 2
	case models.RoleUser:
		return 1
	default:
		return 0
	}
}

// RequireRole reports whether claims meet or exceed minRole.
func RequireRole(claims *SessionClaims, minRole models.UserRole) bool {
	return RoleLevel(claims) >= roleRank(minRole)
}
