package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/auth"
)

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	addr := clientAddr(c)

	var userID, passwordHash, role string
	err := s.db.Pool.QueryRow(c.Request.Context(),
		`SELECT id, password_hash, role FROM users WHERE email = $1 AND is_active = true`, req.Email,
	).Scan(&userID, &passwordHash, &role)
	if err != nil {
		_ = s.loginLimiter.RecordFailure(c.Request.Context(), addr)
		s.auditWriter.RecordLogin(false, req.Email, addr, c.Request.UserAgent(), nil)
		writeError(c, apperr.Authentication("invalid email or password"))
		return
	}

	if !auth.VerifyPassword(req.Password, passwordHash) {
		_ = s.loginLimiter.RecordFailure(c.Request.Context(), addr)
		s.auditWriter.RecordLogin(false, req.Email, addr, c.Request.UserAgent(), nil)
		writeError(c, apperr.Authentication("invalid email or password"))
		return
	}

	_ = s.loginLimiter.Reset(c.Request.Context(), addr)

	issued, err := s.sessions.Issue(userID, req.Email, role)
	if err != nil {
		writeError(c, err)
		return
	}

	_, _ = s.db.Pool.Exec(c.Request.Context(), `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	s.auditWriter.RecordLogin(true, req.Email, addr, c.Request.UserAgent(), nil)

	c.JSON(http.StatusOK, loginResponse{Token: issued.Token, CSRFToken: issued.CSRF, Role: role})
}

// handleLogout is a no-op on the server side: session tokens are stateless
// JWTs with no server-side revocation list, so logout is purely a client
// action (discard the token). The endpoint exists so the audit trail
// records the event and future revocation support has a slot to land in.
func (s *Server) handleLogout(c *gin.Context) {
	claims, _ := sessionClaims(c)
	if claims != nil {
		s.auditWriter.RecordUserAction("logout", claims.Subject, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	}
	c.Status(http.StatusNoContent)
}
