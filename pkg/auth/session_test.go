package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_IssueAndVerifyRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("a-session-secret-that-is-long-enough", time.Hour)
	require.NoError(t, err)

	issued, err := sm.Issue("user-1", "a@example.com", "manager")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.Len(t, issued.CSRF, 64) // 32 bytes hex-encoded

	claims, err := sm.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, issued.CSRF, claims.CSRF)
}

func TestSessionManager_RejectsShortSecret(t *testing.T) {
	_, err := NewSessionManager("too-short", time.Hour)
	assert.Error(t, err)
}

func TestSessionManager_RejectsExpiredToken(t *testing.T) {
	sm, err := NewSessionManager("a-session-secret-that-is-long-enough", time.Minute)
	require.NoError(t, err)
	// NewSessionManager replaces a non-positive expiry with the default, so
	// the negative lifetime is set on the manager directly.
	sm.expiry = -time.Minute
	issued, err := sm.Issue("user-1", "", "user")
	require.NoError(t, err)

	_, err = sm.Verify(issued.Token)
	assert.Error(t, err)
}

func TestVerifyCSRF_ConstantTimeMatch(t *testing.T) {
	claims := &SessionClaims{CSRF: "abc123"}
	assert.True(t, VerifyCSRF(claims, "abc123"))
	assert.False(t, VerifyCSRF(claims, "wrong"))
	assert.False(t, VerifyCSRF(claims, ""))
}

func TestRoleLevel_LegacyAdminSentinel(t *testing.T) {
	claims := &SessionClaims{Subject: LegacyAdminSubject, Role: ""}
	assert.True(t, RequireRole(claims, "admin"))
}

func TestRoleLevel_Ordering(t *testing.T) {
	admin := &SessionClaims{Subject: "u1", Role: "admin"}
	manager := &SessionClaims{Subject: "u2", Role: "manager"}
	user := &SessionClaims{Subject: "u3", Role: "user"}

	assert.True(t, RequireRole(admin, "manager"))
	assert.True(t, RequireRole(manager, "manager"))
	assert.False(t, RequireRole(user, "manager"))
}
